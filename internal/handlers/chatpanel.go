package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/tarimai/tarim-web/internal/models"
)

var (
	// errPanelBusy is returned when a panel is asked to start a request while its previous one is still in
	// flight.
	errPanelBusy = errors.New("panel is busy")
	// errPanelGone is returned when a panel has been replaced by a category switch.
	errPanelGone = errors.New("panel was replaced")
)

// chatPanel is one mounted instance of the chat panel. It is bound to a single category for its whole
// lifetime and is idle or awaiting a response. All fields except id and category are guarded by the owning
// session's mutex.
type chatPanel struct {
	id       string
	category models.Category

	awaiting bool
	// lastEventID is the ID of the last event published for the panel.
	lastEventID string

	ctx    context.Context
	cancel context.CancelFunc
}

func newChatPanel(category models.Category) *chatPanel {
	ctx, cancel := newPanelContext()
	return &chatPanel{
		id:       uuid.New().String(),
		category: category,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// submit moves the panel from idle to awaiting a response, appending the user message to the conversation.
// Empty or whitespace-only text is rejected with ok=false and changes nothing.
func (s *session) submit(panel *chatPanel, text string) (msg models.Message, ok bool, err error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chat != panel {
		return models.Message{}, false, errPanelGone
	}
	if panel.awaiting {
		return models.Message{}, false, errPanelBusy
	}

	msg = models.NewUserMessage(text)
	panel.awaiting = true
	s.appendMessage(panel, msg)
	return msg, true, nil
}

// complete applies the outcome of the Q&A call and moves the panel back to idle. It reports false when the
// panel has been discarded in the meantime, in which case the response is dropped.
func (s *session) complete(panel *chatPanel, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chat != panel || panel.ctx.Err() != nil {
		return false
	}
	panel.awaiting = false
	s.appendMessage(panel, msg)
	return true
}

// answerMessage builds the system message for the outcome of a Q&A call.
func answerMessage(answer models.Answer, err error) models.Message {
	if err != nil {
		return models.NewSystemMessage(models.ChatApology, nil)
	}
	return models.NewSystemMessage(answer.Text, answer.Sources)
}
