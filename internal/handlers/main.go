package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	tarimweb "github.com/tarimai/tarim-web"
	"github.com/tarimai/tarim-web/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Answerer answers a free-text question within the scope of a category. Implementations make a single
// attempt; any failure is returned as an error.
type Answerer interface {
	Ask(ctx context.Context, category models.Category, question string) (models.Answer, error)
}

// Classifier classifies an image with the model serving a category, returning predictions ranked by
// confidence.
type Classifier interface {
	Classify(ctx context.Context, category models.Category, image models.Image) (models.Classification, error)
}

// Store holds the conversation of every category of one browsing session. Both methods are total over the
// declared categories: Messages returns an empty sequence for a category without history, and SetMessages
// replaces the sequence of one category without touching the others.
type Store interface {
	Messages(category models.Category) []models.Message
	SetMessages(category models.Category, messages []models.Message)
}

// MarkdownRenderer converts answer text to safe HTML.
type MarkdownRenderer interface {
	Render(src string) (template.HTML, error)
}

// Options tunes the behaviour of Main. Zero values select the defaults.
type Options struct {
	// Title is shown in the sidebar header and the page title.
	Title string
	// Subtitle is shown below the title in the sidebar header.
	Subtitle string
	// Version is shown in the sidebar footer.
	Version string
	// SessionTTL is how long an idle browsing session is kept.
	SessionTTL time.Duration
	// MaxImageBytes is the largest accepted upload.
	MaxImageBytes int64
	// MaxSessions caps the number of live browsing sessions. The least recently seen session is evicted
	// when a new one would exceed it.
	MaxSessions int
	// ReplayEvents is how many chat events are kept for streams that reconnect.
	ReplayEvents int
}

const (
	// DefaultMaxImageBytes is the upload limit used when Options.MaxImageBytes is not set.
	DefaultMaxImageBytes = 10 << 20
	// DefaultReplayEvents is the replay buffer size used when Options.ReplayEvents is not set.
	DefaultReplayEvents = 4096
)

// Main serves the shell page and both panels. It keeps one shell per browsing session, pushes chat answers
// to the browser over server-sent events, and delegates answering and classification to the external
// backend through Answerer and Classifier.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	answerer   Answerer
	classifier Classifier
	markdown   MarkdownRenderer

	sessions *sessions
	opts     Options

	logger *slog.Logger
}

const (
	errLoggerKey = "err"

	panelIDField     = "panel_id"
	lastEventIDField = "last_event_id"
)

// SSE event types for real-time updates.
var (
	messagesSSEType = sse.Type("messages")
	mountedSSEType  = sse.Type("mounted")
	closeSSEType    = sse.Type("closeChat")
)

// NewMain creates a new Main instance. newStore is called once per browsing session to create the store
// that holds its conversations. It parses the HTML templates from the embedded filesystem and fails if they
// are malformed.
func NewMain(
	answerer Answerer,
	classifier Classifier,
	markdown MarkdownRenderer,
	newStore func() Store,
	opts Options,
	logger *slog.Logger,
) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"percent": models.Percent,
	}).ParseFS(
		tarimweb.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	if opts.Title == "" {
		opts.Title = "Tarım AI"
	}
	if opts.Subtitle == "" {
		opts.Subtitle = "Akıllı tarım asistanınız"
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.ReplayEvents <= 0 {
		opts.ReplayEvents = DefaultReplayEvents
	}

	// Every chat event carries an ID, so a stream that connects late or reconnects gets what it missed
	// replayed in publish order.
	replayer, err := sse.NewFiniteReplayer(opts.ReplayEvents, false)
	if err != nil {
		return Main{}, fmt.Errorf("failed to create replayer: %w", err)
	}

	ss := newSessions(opts.SessionTTL, opts.MaxSessions, newStore)
	logger = logger.With(slog.String("module", "handlers"))

	m := Main{
		sseSrv: &sse.Server{
			Provider: &sse.Joe{Replayer: replayer},
			OnSession: func(w http.ResponseWriter, r *http.Request) ([]string, bool) {
				// Answers are published on a topic per chat panel, so a client only receives the answers of
				// the panel it has mounted.
				panelID := r.URL.Query().Get(panelIDField)
				if _, _, ok := ss.chatPanel(r, panelID); !ok {
					http.Error(w, errPanelGone.Error(), http.StatusConflict)
					return nil, false
				}
				return []string{sse.DefaultTopic, chatPanelTopic(panelID)}, true
			},
		},
		templates:  tmpl,
		answerer:   answerer,
		classifier: classifier,
		markdown:   markdown,
		sessions:   ss,
		opts:       opts,
		logger:     logger,
	}
	ss.events = m
	ss.startSweeper()

	return m, nil
}

func chatPanelTopic(panelID string) string {
	return fmt.Sprintf("chat-%s", panelID)
}

// HandleSSE streams the messages of one chat panel. The panel is selected with the panel_id query parameter
// and must belong to the caller's browsing session. The last_event_id query parameter names the last event
// the rendered page already reflects; later events are replayed first. A Last-Event-ID header sent by a
// reconnecting EventSource takes precedence.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get(lastEventIDField); id != "" && r.Header.Get("Last-Event-ID") == "" {
		r.Header.Set("Last-Event-ID", id)
	}
	m.sseSrv.ServeHTTP(w, r)
}

// HandleHealth reports that the server is up.
func (m Main) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Shutdown cancels every in-flight question and gracefully terminates the SSE server. It broadcasts a close
// message to all connected clients and waits up to 5 seconds for connections to terminate. After the
// timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.sessions.closeAll()

	e := &sse.Message{ID: sse.ID(uuid.New().String()), Type: closeSSEType}
	// A close event still needs data to be dispatched by the browser
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
