package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarimai/tarim-web/internal/services"
)

func TestMarkdownRender(t *testing.T) {
	md := services.NewMarkdown()

	tests := []struct {
		name    string
		src     string
		want    []string
		notWant []string
	}{
		{
			name: "plain text",
			src:  "X",
			want: []string{"<p>X</p>"},
		},
		{
			name: "line breaks kept",
			src:  "birinci satır\nikinci satır",
			want: []string{"birinci satır<br>"},
		},
		{
			name: "list",
			src:  "- budama\n- gübreleme",
			want: []string{"<ul>", "<li>budama</li>"},
		},
		{
			name:    "raw html dropped",
			src:     "<script>alert(1)</script>",
			notWant: []string{"<script>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := md.Render(tt.src)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(got), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, string(got), w)
			}
		})
	}
}
