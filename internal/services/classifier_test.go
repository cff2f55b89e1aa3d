package services_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarimai/tarim-web/internal/models"
	"github.com/tarimai/tarim-web/internal/services"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

const classifierBody = `{
	"model_name": "apple",
	"predicted_class_id": 2,
	"predicted_class_name": "Apple scab",
	"confidence": 0.9,
	"all_predictions": [
		{"class_id": 2, "class_name": "Apple scab", "confidence": 0.9},
		{"class_id": 0, "class_name": "Black rot", "confidence": 0.05},
		{"class_id": 1, "class_name": "Cedar rust", "confidence": 0.03},
		{"class_id": 3, "class_name": "Healthy", "confidence": 0.01},
		{"class_id": 4, "class_name": "Powdery mildew", "confidence": 0.01}
	],
	"image_size": [640, 480],
	"processed_size": [224, 224],
	"processing_time": 0.042,
	"status": "success"
}`

func TestClassifierClassify(t *testing.T) {
	var gotPath, gotTopK, gotFileName, gotFileType string
	var gotData []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotTopK = r.FormValue("top_k")
		f, h, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		gotFileName = h.Filename
		gotFileType = h.Header.Get("Content-Type")
		gotData, _ = io.ReadAll(f)

		_, _ = w.Write([]byte(classifierBody))
	}))
	defer srv.Close()

	c := services.NewClassifier(services.APIOptions{BaseURL: srv.URL}, 0, discardLogger())

	res, err := c.Classify(context.Background(), models.Elma, models.Image{
		Name:        "yaprak.png",
		ContentType: "image/png",
		Data:        pngHeader,
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/models/apple/predict/file", gotPath)
	assert.Equal(t, "5", gotTopK)
	assert.Equal(t, "yaprak.png", gotFileName)
	assert.Equal(t, "image/png", gotFileType)
	assert.Equal(t, pngHeader, gotData)

	assert.Equal(t, "apple", res.ModelName)
	assert.Equal(t, "Apple scab", res.Top().ClassName)
	assert.Equal(t, "90.0", models.Percent(res.Top().Confidence))
	assert.Len(t, res.AllPredictions, 5)
	assert.Len(t, res.RunnerUps(), 3)
	assert.Equal(t, [2]int{640, 480}, res.ImageSize)
	assert.Equal(t, [2]int{224, 224}, res.ProcessedSize)
	assert.Equal(t, 42*time.Millisecond, res.ProcessingTime.Round(time.Millisecond))
	assert.EqualValues(t, 42, res.ProcessingMillis())
}

func TestClassifierModelRoutes(t *testing.T) {
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		_, _ = w.Write([]byte(classifierBody))
	}))
	defer srv.Close()

	c := services.NewClassifier(services.APIOptions{BaseURL: srv.URL}, 5, discardLogger())
	for _, cat := range []models.Category{models.Cay, models.Findik} {
		_, err := c.Classify(context.Background(), cat, models.Image{ContentType: "image/png", Data: pngHeader})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"/api/v1/models/tea/predict/file",
		"/api/v1/models/hazelnut/predict/file",
	}, gotPaths)
}

func TestClassifierFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := services.NewClassifier(services.APIOptions{BaseURL: srv.URL}, 5, discardLogger())

	_, err := c.Classify(context.Background(), models.Elma, models.Image{ContentType: "image/png", Data: pngHeader})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrUnexpectedStatus))

	_, err = c.Classify(context.Background(), models.Category(models.CategoryCount),
		models.Image{ContentType: "image/png", Data: pngHeader})
	assert.ErrorIs(t, err, models.ErrUnknownCategory)
}
