package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/authnotify/internal/api"
	"github.com/nhle/authnotify/internal/feed"
	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/push"
	"github.com/nhle/authnotify/internal/session"
	"github.com/nhle/authnotify/internal/store"
	appsync "github.com/nhle/authnotify/internal/sync"
	"github.com/nhle/authnotify/internal/ui/authform"
	"github.com/nhle/authnotify/internal/ui/command"
	"github.com/nhle/authnotify/internal/ui/feedlist"
)

type refusingDialer struct{}

func (refusingDialer) Dial(context.Context, string) (push.Conn, error) {
	return nil, errors.New("connection refused")
}

func newTestModel(t *testing.T, handler http.Handler) (Model, Deps) {
	t.Helper()

	ctx := context.Background()
	log := zerolog.Nop()
	kv := store.NewMemoryKV()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	pushCfg := model.DefaultAppConfig().Push
	pushCfg.Retry.DelayMs = int(time.Hour / time.Millisecond)

	sessions := session.NewKVStore(kv)
	client := push.New(pushCfg, srv.URL, refusingDialer{}, sessions, log)
	agg := feed.New(ctx, store.NewNotificationStore(kv), log)
	apiClient := api.NewClient(srv.URL, time.Second)
	sup := appsync.New(client, agg, sessions, apiClient, model.SupervisorConfig{
		SettleDelayMs:    5,
		SubscribeDelayMs: 5,
		HealthIntervalMs: 1000,
		VerifyUser:       true,
	}, log)
	t.Cleanup(sup.Stop)

	deps := Deps{Feed: agg, Supervisor: sup, Sessions: sessions, API: apiClient, Log: log}
	m := New(ctx, deps)
	t.Cleanup(m.stopWatch)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), deps
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestFeedShortcuts(t *testing.T) {
	m, deps := newTestModel(t, http.NotFoundHandler())

	m, _ = update(t, m, runeKey("t"))
	m, _ = update(t, m, runeKey("t"))
	require.Len(t, deps.Feed.Notifications(), 2)
	assert.Equal(t, 2, deps.Feed.UnreadCount())

	m, _ = update(t, m, runeKey("m"))
	assert.Equal(t, 0, deps.Feed.UnreadCount())

	m, _ = update(t, m, runeKey("X"))
	assert.Empty(t, deps.Feed.Notifications())
	assert.Equal(t, "Notifications cleared", m.flash)
}

func TestSnapshotUpdatesBadge(t *testing.T) {
	m, _ := newTestModel(t, http.NotFoundHandler())

	list := []model.Notification{
		{ID: "a", Message: "New user registered: a@example.com", CreatedAt: time.Now()},
		{ID: "b", Message: "New user registered: b@example.com", Read: true, CreatedAt: time.Now()},
	}
	m, cmd := update(t, m, snapshotMsg{list: list})
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, m.unread)
	assert.Equal(t, 2, m.feedList.Len())
	assert.Contains(t, m.View(), "a@example.com")
}

func TestMarkReadMessage(t *testing.T) {
	m, deps := newTestModel(t, http.NotFoundHandler())

	n, ok := deps.Feed.Test()
	require.True(t, ok)

	update(t, m, feedlist.MarkReadMsg{ID: n.ID})
	assert.Equal(t, 0, deps.Feed.UnreadCount())
}

func TestHelpToggle(t *testing.T) {
	m, _ := newTestModel(t, http.NotFoundHandler())

	m, _ = update(t, m, runeKey("?"))
	assert.Equal(t, ViewHelp, m.currentView)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewFeed, m.currentView)
}

func TestUnknownCommand(t *testing.T) {
	m, _ := newTestModel(t, http.NotFoundHandler())

	m, _ = update(t, m, runeKey(":"))
	require.Equal(t, ViewCommand, m.currentView)

	m, _ = update(t, m, command.CommandMsg("bogus"))
	assert.Equal(t, ViewFeed, m.currentView)
	assert.Contains(t, m.flash, "bogus")
}

func TestConnectionStatusIdle(t *testing.T) {
	m, _ := newTestModel(t, http.NotFoundHandler())
	assert.Contains(t, m.connectionStatus(), "Not signed in")
}

func TestLoginStoresTokenAndStartsSupervisor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "hunter22" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"detail": "Incorrect email or password"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "token_type": "bearer"})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "email": "ann@example.com"})
	})
	m, deps := newTestModel(t, mux)

	m, cmd := update(t, m, runeKey("l"))
	require.Equal(t, ViewAuth, m.currentView)
	require.NotNil(t, cmd)

	_, cmd = update(t, m, authform.SubmitMsg{Mode: authform.ModeLogin, Email: "ann@example.com", Password: "wrong"})
	res := cmd().(authResultMsg)
	require.Error(t, res.err)
	assert.True(t, api.IsAuthError(res.err))

	_, cmd = update(t, m, authform.SubmitMsg{Mode: authform.ModeLogin, Email: "ann@example.com", Password: "hunter22"})
	res = cmd().(authResultMsg)
	require.NoError(t, res.err)

	tok, err := deps.Sessions.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
	assert.NotEqual(t, appsync.Idle, deps.Supervisor.State())

	m, _ = update(t, m, res)
	assert.Equal(t, ViewFeed, m.currentView)
	assert.Equal(t, "Signed in as ann@example.com", m.flash)
}

func TestRegisterAddsNotification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 2, "email": "bob@example.com"})
	})
	m, deps := newTestModel(t, mux)

	_, cmd := update(t, m, authform.SubmitMsg{Mode: authform.ModeRegister, Email: "bob@example.com", Password: "hunter22"})
	res := cmd().(authResultMsg)
	require.NoError(t, res.err)

	list := deps.Feed.Notifications()
	require.Len(t, list, 1)
	assert.Equal(t, "New user registered: bob@example.com", list[0].Message)
}

func TestLogoutClearsSession(t *testing.T) {
	m, deps := newTestModel(t, http.NotFoundHandler())
	ctx := context.Background()
	require.NoError(t, deps.Sessions.SetToken(ctx, "tok-123"))

	_, cmd := update(t, m, runeKey("L"))
	require.NotNil(t, cmd)
	msg := cmd().(loggedOutMsg)
	require.NoError(t, msg.err)

	_, err := deps.Sessions.Token(ctx)
	assert.ErrorIs(t, err, session.ErrNoToken)
	assert.Equal(t, appsync.Idle, deps.Supervisor.State())
}

func TestDetailView(t *testing.T) {
	m, deps := newTestModel(t, http.NotFoundHandler())

	n, ok := deps.Feed.Test()
	require.True(t, ok)
	m, _ = update(t, m, snapshotMsg{list: deps.Feed.Notifications()})

	m, _ = update(t, m, runeKey("o"))
	require.Equal(t, ViewDetail, m.currentView)
	assert.Contains(t, m.View(), n.ID)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, 0, deps.Feed.UnreadCount())

	deps.Feed.ClearAll()
	m, _ = update(t, m, snapshotMsg{list: deps.Feed.Notifications()})
	assert.Equal(t, ViewFeed, m.currentView)
}

func TestStartupWithoutSessionOpensLogin(t *testing.T) {
	m, deps := newTestModel(t, http.NotFoundHandler())

	msg := m.checkSession()()
	require.IsType(t, noSessionMsg{}, msg)
	m, _ = update(t, m, msg)
	assert.Equal(t, ViewAuth, m.currentView)
	assert.Equal(t, authform.ModeLogin, m.authForm.Mode())

	require.NoError(t, deps.Sessions.SetToken(context.Background(), "tok-123"))
	assert.Nil(t, m.checkSession()())
}

func TestArrivalToast(t *testing.T) {
	m, _ := newTestModel(t, http.NotFoundHandler())

	older := model.Notification{ID: "a", Message: "New user registered: a@example.com", CreatedAt: time.Now()}
	newer := model.Notification{ID: "b", Message: "New user registered: b@example.com", CreatedAt: time.Now()}

	m, _ = update(t, m, snapshotMsg{list: []model.Notification{older}})
	require.Equal(t, older.Message, m.flash)
	m, _ = update(t, m, toastExpiredMsg{id: "a", message: older.Message})
	assert.Empty(t, m.flash)

	// Same head again, e.g. after mark-read: no new toast.
	older.Read = true
	m, _ = update(t, m, snapshotMsg{list: []model.Notification{older}})
	assert.Empty(t, m.flash)

	m, _ = update(t, m, snapshotMsg{list: []model.Notification{newer, older}})
	assert.Equal(t, newer.Message, m.flash)
	assert.Contains(t, m.View(), newer.Message)

	// A stale expiry leaves the current toast alone.
	m, _ = update(t, m, toastExpiredMsg{id: "a", message: older.Message})
	assert.Equal(t, newer.Message, m.flash)

	m, _ = update(t, m, toastExpiredMsg{id: "b", message: newer.Message})
	assert.Empty(t, m.flash)
}

func TestToastExpiryKeepsLaterFlash(t *testing.T) {
	m, _ := newTestModel(t, http.NotFoundHandler())

	n := model.Notification{ID: "a", Message: "New user registered: a@example.com", CreatedAt: time.Now()}
	m, _ = update(t, m, snapshotMsg{list: []model.Notification{n}})
	m, _ = update(t, m, loggedOutMsg{})
	require.Equal(t, "Signed out", m.flash)

	m, _ = update(t, m, toastExpiredMsg{id: "a", message: n.Message})
	assert.Equal(t, "Signed out", m.flash)
}

func TestInitDoesNotWaitForTokenValidation(t *testing.T) {
	release := make(chan struct{})
	m, deps := newTestModel(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() { close(release) })
	require.NoError(t, deps.Sessions.SetToken(context.Background(), "tok-123"))

	done := make(chan tea.Cmd, 1)
	go func() { done <- m.Init() }()
	select {
	case cmd := <-done:
		assert.NotNil(t, cmd)
	case <-time.After(time.Second):
		t.Fatal("Init blocked on the session check")
	}
	assert.Equal(t, appsync.Idle, deps.Supervisor.State())
}
