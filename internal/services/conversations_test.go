package services_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarimai/tarim-web/internal/models"
	"github.com/tarimai/tarim-web/internal/services"
)

func TestConversationsEmptyByDefault(t *testing.T) {
	store := services.NewConversations()

	for _, info := range models.Categories() {
		msgs := store.Messages(info.Category)
		require.NotNil(t, msgs, "category %s", info.ID)
		assert.Empty(t, msgs, "category %s", info.ID)
	}
}

func TestConversationsSetIsolated(t *testing.T) {
	store := services.NewConversations()

	elma := []models.Message{
		models.NewUserMessage("Elma ağacı ne zaman budanır?"),
		models.NewSystemMessage("Kış sonunda.", nil),
	}
	cay := []models.Message{models.NewUserMessage("Çay hasadı ne zaman?")}

	store.SetMessages(models.Elma, elma)
	store.SetMessages(models.Cay, cay)

	assert.Equal(t, elma, store.Messages(models.Elma))
	assert.Equal(t, cay, store.Messages(models.Cay))
	assert.Empty(t, store.Messages(models.Findik))

	store.SetMessages(models.Elma, nil)
	assert.Empty(t, store.Messages(models.Elma))
	assert.Equal(t, cay, store.Messages(models.Cay))
}

func TestConversationsNoAliasing(t *testing.T) {
	store := services.NewConversations()

	msgs := []models.Message{models.NewUserMessage("first")}
	store.SetMessages(models.Findik, msgs)
	msgs[0].Text = "changed"

	got := store.Messages(models.Findik)
	assert.Equal(t, "first", got[0].Text)

	got[0].Text = "changed again"
	assert.Equal(t, "first", store.Messages(models.Findik)[0].Text)
}

func TestConversationsConcurrentAccess(t *testing.T) {
	store := services.NewConversations()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := models.Category(i % models.CategoryCount)
			store.SetMessages(c, []models.Message{models.NewUserMessage("hi")})
			_ = store.Messages(c)
		}(i)
	}
	wg.Wait()

	for _, info := range models.Categories() {
		assert.Len(t, store.Messages(info.Category), 1)
	}
}
