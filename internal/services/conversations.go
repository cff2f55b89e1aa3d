package services

import (
	"slices"
	"sync"

	"github.com/tarimai/tarim-web/internal/models"
)

// Conversations implements the Store interface by keeping one ordered message sequence per category in
// memory. The mapping is total: every declared category has a sequence from construction on, possibly empty,
// so lookups never fail. Nothing is persisted; the history lives as long as the owning browsing session.
type Conversations struct {
	mu         sync.RWMutex
	byCategory [models.CategoryCount][]models.Message
}

// NewConversations creates a store with an empty conversation for every category.
func NewConversations() *Conversations {
	return &Conversations{}
}

// Messages returns the conversation of the given category in insertion order. The returned slice is a copy
// and is never nil.
func (c *Conversations) Messages(category models.Category) []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.byCategory[category]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// SetMessages replaces the whole conversation of the given category. Other categories are left untouched.
func (c *Conversations) SetMessages(category models.Category, messages []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byCategory[category] = slices.Clone(messages)
}
