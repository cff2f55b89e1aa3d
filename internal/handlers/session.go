package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tarimai/tarim-web/internal/models"
)

const (
	// sessionCookieName is the name of the cookie carrying the browsing session ID.
	sessionCookieName = "tarim_session"
	// DefaultSessionTTL is how long an idle browsing session is kept in memory.
	DefaultSessionTTL = 2 * time.Hour
	// DefaultMaxSessions is the live session cap used when Options.MaxSessions is not set.
	DefaultMaxSessions = 10000
)

// panelEvents is notified, with the owning session locked, of every change a chat panel pushes to the
// browser. Calls for one panel happen in the order the changes are applied.
type panelEvents interface {
	panelMounted(panel *chatPanel) error
	messageAppended(panel *chatPanel, msg models.Message, awaiting bool) error
}

// session is the server side of one browsing session: the shell that owns the conversations of every
// category, and the panels currently mounted for the active category.
type session struct {
	id string

	mu       sync.Mutex
	store    Store
	events   panelEvents
	chat     *chatPanel
	image    *imagePanel
	lastSeen time.Time
}

// sessions keeps browsing sessions in memory. Nothing survives a restart.
type sessions struct {
	mu   sync.Mutex
	byID map[string]*session

	ttl      time.Duration
	max      int
	newStore func() Store
	events   panelEvents
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func newSessions(ttl time.Duration, maxSessions int, newStore func() Store) *sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &sessions{
		byID:     make(map[string]*session),
		ttl:      ttl,
		max:      maxSessions,
		newStore: newStore,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// startSweeper drops expired sessions periodically until closeAll is called.
func (s *sessions) startSweeper() {
	interval := max(s.ttl/4, time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *sessions) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
}

// lookup returns the live session referenced by the request cookie.
func (s *sessions) lookup(r *http.Request) (*session, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[cookie.Value]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.Sub(sess.lastSeen) > s.ttl {
		s.dropLocked(sess)
		return nil, false
	}
	sess.lastSeen = now
	return sess, true
}

// acquire returns the session of the request, creating one and setting its cookie if there is none.
func (s *sessions) acquire(w http.ResponseWriter, r *http.Request) *session {
	if sess, ok := s.lookup(r); ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	for len(s.byID) >= s.max {
		s.evictOldestLocked()
	}

	sess := &session{
		id:       uuid.New().String(),
		store:    s.newStore(),
		events:   s.events,
		lastSeen: s.now(),
	}
	s.byID[sess.id] = sess

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// chatPanel returns the chat panel with the given ID if it belongs to a live session.
func (s *sessions) chatPanel(r *http.Request, panelID string) (*session, *chatPanel, bool) {
	sess, ok := s.lookup(r)
	if !ok {
		return nil, nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.chat == nil || sess.chat.id != panelID {
		return nil, nil, false
	}
	return sess, sess.chat, true
}

// imagePanel returns the image panel with the given ID if it belongs to a live session.
func (s *sessions) imagePanel(r *http.Request, panelID string) (*session, *imagePanel, bool) {
	sess, ok := s.lookup(r)
	if !ok {
		return nil, nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.image == nil || sess.image.id != panelID {
		return nil, nil, false
	}
	return sess, sess.image, true
}

func (s *sessions) sweepLocked() {
	now := s.now()
	for _, sess := range s.byID {
		if now.Sub(sess.lastSeen) > s.ttl {
			s.dropLocked(sess)
		}
	}
}

func (s *sessions) evictOldestLocked() {
	var oldest *session
	for _, sess := range s.byID {
		if oldest == nil || sess.lastSeen.Before(oldest.lastSeen) {
			oldest = sess
		}
	}
	if oldest != nil {
		s.dropLocked(oldest)
	}
}

func (s *sessions) dropLocked(sess *session) {
	delete(s.byID, sess.id)
	sess.mu.Lock()
	if sess.chat != nil {
		sess.chat.cancel()
	}
	sess.mu.Unlock()
}

// closeAll stops the sweeper and cancels every in-flight request. It is used on shutdown.
func (s *sessions) closeAll() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byID {
		s.dropLocked(sess)
	}
}

// mount returns the panels for the active category. When the category differs from the one the panels were
// mounted for, both panels are discarded and recreated: the chat panel cancels its in-flight question and
// starts idle with a blank input, and the image panel starts without an image.
func (s *session) mount(category models.Category) (*chatPanel, *imagePanel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chat == nil || s.chat.category != category {
		if s.chat != nil {
			s.chat.cancel()
		}
		s.chat = newChatPanel(category)
		s.image = newImagePanel(category)
		s.announceLocked(s.chat)
	}
	return s.chat, s.image
}

// announceLocked publishes the replay anchor of a freshly mounted panel. Until the panel's first message is
// published, a stream connecting with this anchor receives every message of the panel.
func (s *session) announceLocked(panel *chatPanel) {
	if s.events == nil {
		return
	}
	if err := s.events.panelMounted(panel); err == nil {
		panel.lastEventID = panel.id
	}
}

// appendMessage adds msg to the conversation of the panel's category and pushes it to the panel's stream.
// It is the callback the chat panel writes through; the session stays the only writer of the store. The
// caller holds s.mu, so the stream sees messages in the order they are stored.
func (s *session) appendMessage(panel *chatPanel, msg models.Message) {
	msgs := s.store.Messages(panel.category)
	s.store.SetMessages(panel.category, append(msgs, msg))

	if s.events == nil {
		return
	}
	if err := s.events.messageAppended(panel, msg, panel.awaiting); err == nil {
		panel.lastEventID = msg.ID
	}
}

// conversation returns a snapshot of the messages of the panel's category together with the panel state to
// render: whether it awaits an answer, and the ID of the last event the snapshot reflects.
func (s *session) conversation(panel *chatPanel) ([]models.Message, bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Messages(panel.category), panel.awaiting, panel.lastEventID
}

func newPanelContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}
