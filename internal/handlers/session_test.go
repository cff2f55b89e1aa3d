package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarimai/tarim-web/internal/models"
)

type memStore struct {
	byCategory map[models.Category][]models.Message
}

func (s *memStore) Messages(c models.Category) []models.Message {
	return append([]models.Message{}, s.byCategory[c]...)
}

func (s *memStore) SetMessages(c models.Category, msgs []models.Message) {
	s.byCategory[c] = append([]models.Message(nil), msgs...)
}

func newMemStore() Store {
	return &memStore{byCategory: make(map[models.Category][]models.Message)}
}

// recordedEvent is one call to panelEvents. It records the panel state at the time of the call, which
// happens with the session locked.
type recordedEvent struct {
	panelID  string
	text     string
	awaiting bool
	stored   int
}

type recordingEvents struct {
	store  Store
	events []recordedEvent
}

func (r *recordingEvents) panelMounted(panel *chatPanel) error {
	r.events = append(r.events, recordedEvent{panelID: panel.id})
	return nil
}

func (r *recordingEvents) messageAppended(panel *chatPanel, msg models.Message, awaiting bool) error {
	r.events = append(r.events, recordedEvent{
		panelID:  panel.id,
		text:     msg.Text,
		awaiting: awaiting,
		stored:   len(r.store.Messages(panel.category)),
	})
	return nil
}

func TestSessionMount(t *testing.T) {
	sess := &session{store: newMemStore()}

	chat, image := sess.mount(models.Elma)
	again, againImage := sess.mount(models.Elma)
	assert.Same(t, chat, again)
	assert.Same(t, image, againImage)

	_, ok, err := sess.submit(chat, "soru")
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = sess.submit(chat, "ikinci soru")
	assert.ErrorIs(t, err, errPanelBusy)

	cay, cayImage := sess.mount(models.Cay)
	assert.NotSame(t, chat, cay)
	assert.NotSame(t, image, cayImage)
	assert.Error(t, chat.ctx.Err(), "replaced panel is cancelled")
	assert.False(t, cay.awaiting)

	_, _, err = sess.submit(chat, "geç soru")
	assert.ErrorIs(t, err, errPanelGone)
	assert.False(t, sess.complete(chat, models.NewSystemMessage("geç cevap", nil)))

	assert.Len(t, sess.store.Messages(models.Elma), 1)
	assert.Empty(t, sess.store.Messages(models.Cay))
}

func TestSessionComplete(t *testing.T) {
	sess := &session{store: newMemStore()}
	chat, _ := sess.mount(models.Findik)

	_, ok, err := sess.submit(chat, "  soru  ")
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, sess.complete(chat, answerMessage(models.Answer{}, errors.New("boom"))))
	msgs, awaiting, _ := sess.conversation(chat)
	assert.False(t, awaiting)
	require.Len(t, msgs, 2)
	assert.Equal(t, "  soru  ", msgs[0].Text)
	assert.Equal(t, models.ChatApology, msgs[1].Text)
	assert.Empty(t, msgs[1].Sources)
}

func TestSessionEventsFollowStoreOrder(t *testing.T) {
	store := newMemStore()
	events := &recordingEvents{store: store}
	sess := &session{store: store, events: events}

	chat, _ := sess.mount(models.Elma)
	_, _, mounted := sess.conversation(chat)
	assert.Equal(t, chat.id, mounted)

	um, ok, err := sess.submit(chat, "soru")
	require.NoError(t, err)
	require.True(t, ok)

	_, _, afterSubmit := sess.conversation(chat)
	assert.Equal(t, um.ID, afterSubmit)

	am := models.NewSystemMessage("cevap", nil)
	require.True(t, sess.complete(chat, am))

	_, _, afterAnswer := sess.conversation(chat)
	assert.Equal(t, am.ID, afterAnswer)

	assert.Equal(t, []recordedEvent{
		{panelID: chat.id},
		{panelID: chat.id, text: "soru", awaiting: true, stored: 1},
		{panelID: chat.id, text: "cevap", awaiting: false, stored: 2},
	}, events.events)

	// A replaced panel publishes nothing more.
	cay, _ := sess.mount(models.Cay)
	assert.False(t, sess.complete(chat, models.NewSystemMessage("geç", nil)))
	require.Len(t, events.events, 4)
	assert.Equal(t, recordedEvent{panelID: cay.id}, events.events[3])
}

func newTestSessions(ttl time.Duration, maxSessions int) (*sessions, *time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ss := newSessions(ttl, maxSessions, newMemStore)
	ss.now = func() time.Time { return now }
	return ss, &now
}

func sessionRequest(t *testing.T, ss *sessions) (*session, *http.Request) {
	t.Helper()
	w := httptest.NewRecorder()
	sess := ss.acquire(w, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, sessionCookieName, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	return sess, req
}

func TestSessionsExpire(t *testing.T) {
	ss, now := newTestSessions(time.Hour, 0)

	sess, req := sessionRequest(t, ss)
	chat, _ := sess.mount(models.Elma)

	*now = now.Add(30 * time.Minute)
	got, ok := ss.lookup(req)
	require.True(t, ok)
	assert.Same(t, sess, got)

	*now = now.Add(2 * time.Hour)
	_, ok = ss.lookup(req)
	assert.False(t, ok)
	assert.Error(t, chat.ctx.Err())

	fresh := ss.acquire(httptest.NewRecorder(), req)
	assert.NotSame(t, sess, fresh)
}

func TestSessionsSweep(t *testing.T) {
	ss, now := newTestSessions(time.Hour, 0)

	idle, _ := sessionRequest(t, ss)
	idleChat, _ := idle.mount(models.Cay)

	*now = now.Add(45 * time.Minute)
	active, activeReq := sessionRequest(t, ss)

	*now = now.Add(30 * time.Minute)
	ss.sweep()

	ss.mu.Lock()
	_, idleLive := ss.byID[idle.id]
	_, activeLive := ss.byID[active.id]
	ss.mu.Unlock()
	assert.False(t, idleLive)
	assert.True(t, activeLive)
	assert.Error(t, idleChat.ctx.Err())

	_, ok := ss.lookup(activeReq)
	assert.True(t, ok)
}

func TestSessionsCap(t *testing.T) {
	ss, now := newTestSessions(time.Hour, 2)

	first, firstReq := sessionRequest(t, ss)
	*now = now.Add(time.Minute)
	second, _ := sessionRequest(t, ss)
	*now = now.Add(time.Minute)

	// Touching the first session makes the second the least recently seen.
	_, ok := ss.lookup(firstReq)
	require.True(t, ok)

	*now = now.Add(time.Minute)
	third, _ := sessionRequest(t, ss)

	ss.mu.Lock()
	defer ss.mu.Unlock()
	assert.Len(t, ss.byID, 2)
	assert.Contains(t, ss.byID, first.id)
	assert.NotContains(t, ss.byID, second.id)
	assert.Contains(t, ss.byID, third.id)
}

func TestSessionsSweeperStopsOnClose(t *testing.T) {
	ss := newSessions(time.Hour, 0, newMemStore)
	ss.startSweeper()

	ss.closeAll()
	ss.closeAll()

	select {
	case <-ss.stop:
	default:
		t.Fatal("sweeper was not stopped")
	}
}
