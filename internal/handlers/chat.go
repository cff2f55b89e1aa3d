package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tarimai/tarim-web/internal/models"
	"github.com/tmaxmax/go-sse"
)

// HandleChats processes a question submitted from a chat panel through HTTP POST. It expects a "message" form
// field and the "panel_id" of the mounted chat panel.
//
// Empty or whitespace-only messages are ignored with 204 No Content. A submission to a panel that was replaced
// by a category switch, or to a panel that is still awaiting its previous answer, is refused with 409
// Conflict. Otherwise the user message is appended to the conversation of the panel's category, pushed to
// the panel's stream together with a typing indicator, and the request is answered with 202 Accepted. The
// question is then sent to the Q&A backend asynchronously; the answer, or the apology when the call fails, is
// appended and pushed to the same stream after the user message.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	text := r.FormValue("message")
	panelID := r.FormValue(panelIDField)

	sess, panel, ok := m.sessions.chatPanel(r, panelID)
	if !ok {
		m.logger.Warn("Chat panel not found", slog.String("panelID", panelID))
		http.Error(w, errPanelGone.Error(), http.StatusConflict)
		return
	}

	um, submitted, err := sess.submit(panel, text)
	if err != nil {
		m.logger.Warn("Question refused",
			slog.String("panelID", panelID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if !submitted {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	go m.answer(sess, panel, um.Text)
}

// answer asks the backend and applies the outcome to the panel. If the panel is discarded while the request
// is in flight, the request is cancelled and nothing is appended.
func (m Main) answer(sess *session, panel *chatPanel, question string) {
	ans, err := m.answerer.Ask(panel.ctx, panel.category, question)
	if err != nil {
		if panel.ctx.Err() != nil {
			m.logger.Debug("Question cancelled, panel was discarded",
				slog.String("panelID", panel.id),
				slog.String("category", panel.category.ID()))
			return
		}
		m.logger.Error("Error from Q&A backend",
			slog.String("category", panel.category.ID()),
			slog.String(errLoggerKey, err.Error()))
	} else {
		m.logger.Debug("Answer received",
			slog.String("category", panel.category.ID()),
			slog.String("status", ans.Status),
			slog.Duration("processingTime", ans.ProcessingTime),
			slog.Int("sources", len(ans.Sources)))
	}

	if !sess.complete(panel, answerMessage(ans, err)) {
		m.logger.Debug("Answer dropped, panel was discarded", slog.String("panelID", panel.id))
	}
}

// panelMounted publishes the replay anchor of a new chat panel. The event has no listener in the browser; its
// ID marks the point in the stream the freshly rendered panel starts from.
func (m Main) panelMounted(panel *chatPanel) error {
	e := &sse.Message{ID: sse.ID(panel.id), Type: mountedSSEType}
	e.AppendData(panel.id)
	return m.publish(panel, e)
}

// messageAppended renders msg, followed by the typing indicator while the panel awaits an answer, and
// publishes it on the panel's topic with the message ID as event ID.
func (m Main) messageAppended(panel *chatPanel, msg models.Message, awaiting bool) error {
	data, err := m.renderMessageEvent(msg, awaiting)
	if err != nil {
		m.logger.Error("Failed to render chat event",
			slog.String("panelID", panel.id),
			slog.String(errLoggerKey, err.Error()))
		return err
	}

	e := &sse.Message{ID: sse.ID(msg.ID), Type: messagesSSEType}
	e.AppendData(data)
	return m.publish(panel, e)
}

func (m Main) renderMessageEvent(msg models.Message, awaiting bool) (string, error) {
	view, err := m.messageView(msg)
	if err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "chat_message", view); err != nil {
		return "", fmt.Errorf("failed to execute chat_message template: %w", err)
	}
	if awaiting {
		if err := m.templates.ExecuteTemplate(&sb, "typing_indicator", nil); err != nil {
			return "", fmt.Errorf("failed to execute typing_indicator template: %w", err)
		}
	}
	return sb.String(), nil
}

func (m Main) publish(panel *chatPanel, e *sse.Message) error {
	err := m.sseSrv.Publish(e, chatPanelTopic(panel.id))
	if err != nil && !errors.Is(err, sse.ErrProviderClosed) {
		m.logger.Error("Failed to publish chat event",
			slog.String("panelID", panel.id),
			slog.String(errLoggerKey, err.Error()))
	}
	return err
}
