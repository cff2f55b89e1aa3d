package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/tarimai/tarim-web/internal/models"
)

type homePageData struct {
	Title    string
	Subtitle string
	Version  string

	Sidebar []categoryLink
	Active  models.CategoryInfo

	Chat  chatPanelData
	Image imagePanelData
}

type chatPanelData struct {
	PanelID  string
	Category models.CategoryInfo
	Messages []message
	Awaiting bool
	// LastEventID is the ID of the last chat event the rendered messages reflect.
	LastEventID string
}

type message struct {
	ID        string
	IsUser    bool
	Content   template.HTML
	Sources   []models.Source
	Timestamp time.Time
}

// categoryQueryParam is the navigation query parameter selecting the active category.
const categoryQueryParam = "category"

// HandleHome renders the shell: the category sidebar, the chat panel and the image analysis panel of the
// active category. The active category is taken from the "category" query parameter; missing or unknown
// values fall back to the default category. Navigating to another category discards the mounted panels and
// mounts fresh ones.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	category := models.ResolveCategory(r.URL.Query().Get(categoryQueryParam))

	sess := m.sessions.acquire(w, r)
	chat, image := sess.mount(category)

	chatData, err := m.chatPanelData(sess, chat)
	if err != nil {
		m.logger.Error("Failed to render messages",
			slog.String("category", category.ID()),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := homePageData{
		Title:    m.opts.Title,
		Subtitle: m.opts.Subtitle,
		Version:  m.opts.Version,
		Sidebar:  sidebar(category),
		Active:   category.Info(),
		Chat:     chatData,
		Image:    m.imagePanelView(sess, image),
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (m Main) chatPanelData(sess *session, panel *chatPanel) (chatPanelData, error) {
	msgs, awaiting, lastEventID := sess.conversation(panel)

	views := make([]message, len(msgs))
	for i, msg := range msgs {
		v, err := m.messageView(msg)
		if err != nil {
			return chatPanelData{}, err
		}
		views[i] = v
	}

	return chatPanelData{
		PanelID:     panel.id,
		Category:    panel.category.Info(),
		Messages:    views,
		Awaiting:    awaiting,
		LastEventID: lastEventID,
	}, nil
}

// messageView prepares a message for rendering. User text is escaped and shown verbatim, answers are
// rendered from markdown.
func (m Main) messageView(msg models.Message) (message, error) {
	content := template.HTML(template.HTMLEscapeString(msg.Text))
	if !msg.IsUser() {
		var err error
		content, err = m.markdown.Render(msg.Text)
		if err != nil {
			return message{}, err
		}
	}
	return message{
		ID:        msg.ID,
		IsUser:    msg.IsUser(),
		Content:   content,
		Sources:   msg.Sources,
		Timestamp: msg.Timestamp,
	}, nil
}
