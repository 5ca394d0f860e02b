// Package sync keeps the push connection in step with the sign-in state.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/authnotify/internal/logging"
	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/push"
	"github.com/nhle/authnotify/internal/session"
)

// State is the supervisor's view of the session.
type State int

const (
	// Idle means nobody is signed in and no connection is wanted.
	Idle State = iota
	// Establishing means a connection was requested but the subscription
	// is not confirmed yet.
	Establishing
	// Active means the subscriber is attached.
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Establishing:
		return "establishing"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// PushClient is the part of *push.Client the supervisor drives.
type PushClient interface {
	Connect()
	Disconnect()
	Subscribe(s push.Subscriber)
	Unsubscribe(s push.Subscriber)
	Status() push.State
}

// TokenValidator asks the server whether a token is still accepted. It
// returns an error wrapping session.ErrTokenRejected for a refused token;
// any other error is treated as transient.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) error
}

// Status is a point-in-time view for the status bar.
type Status struct {
	State      State
	Connection push.State
	Since      time.Time
}

// StatusMsg is a tea.Msg carrying the supervisor status after a change or
// health tick.
type StatusMsg struct {
	Status Status
}

// sessionTimeout bounds session reads and token validation.
const sessionTimeout = 10 * time.Second

// Supervisor starts and stops the push client as tokens come and go.
// Observe is the single transition function; Refresh feeds it from the
// session store.
type Supervisor struct {
	client    PushClient
	sub       push.Subscriber
	sessions  session.Store
	validator TokenValidator
	cfg       model.SupervisorConfig
	log       zerolog.Logger
	now       func() time.Time

	// snap mirrors state and since for readers that must not wait on mu,
	// which is held while the client connects.
	snap atomic.Pointer[snapshot]

	mu        gosync.Mutex
	state     State
	since     time.Time
	lastToken string
	gen       uint64
	settle    *time.Timer
	subscribe *time.Timer
	running   bool
	stopCh    chan struct{}
	statusCh  chan StatusMsg
}

type snapshot struct {
	state State
	since time.Time
}

// New creates an idle supervisor. validator may be nil.
func New(client PushClient, sub push.Subscriber, sessions session.Store, validator TokenValidator, cfg model.SupervisorConfig, log zerolog.Logger) *Supervisor {
	s := &Supervisor{
		client:    client,
		sub:       sub,
		sessions:  sessions,
		validator: validator,
		cfg:       cfg,
		log:       log.With().Str("component", "supervisor").Logger(),
		now:       time.Now,
		since:     time.Now(),
		statusCh:  make(chan StatusMsg, 16),
	}
	s.snap.Store(&snapshot{state: Idle, since: s.since})
	return s
}

// Observe reconciles the connection with token. An empty token means
// signed out.
func (s *Supervisor) Observe(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observeLocked(token)
}

func (s *Supervisor) observeLocked(token string) {
	if token == "" {
		s.lastToken = ""
		if s.state == Idle {
			return
		}
		s.teardownLocked()
		s.setStateLocked(Idle)
		s.log.Info().Msg("signed out, push channel stopped")
		return
	}

	if token == s.lastToken {
		return
	}
	s.lastToken = token
	s.establishLocked()
}

// establishLocked tears down any connection, then connects after the
// settle delay and subscribes after a further delay.
func (s *Supervisor) establishLocked() {
	s.teardownLocked()
	s.setStateLocked(Establishing)
	gen := s.gen

	s.log.Info().Str("token", logging.TokenPreview(s.lastToken)).Msg("establishing push channel")

	s.settle = time.AfterFunc(s.cfg.SettleDelay(), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}
		s.settle = nil
		s.client.Connect()

		s.subscribe = time.AfterFunc(s.cfg.SubscribeDelay(), func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if gen != s.gen {
				return
			}
			s.subscribe = nil
			s.client.Subscribe(s.sub)
			s.setStateLocked(Active)
		})
	})
}

// teardownLocked cancels pending establish steps and drops the
// connection and subscription.
func (s *Supervisor) teardownLocked() {
	s.gen++
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	if s.subscribe != nil {
		s.subscribe.Stop()
		s.subscribe = nil
	}
	s.client.Unsubscribe(s.sub)
	s.client.Disconnect()
}

func (s *Supervisor) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.since = s.now()
	s.snap.Store(&snapshot{state: st, since: s.since})
	s.sendStatusLocked()
}

func (s *Supervisor) sendStatusLocked() {
	msg := StatusMsg{Status: Status{State: s.state, Connection: s.client.Status(), Since: s.since}}
	select {
	case s.statusCh <- msg:
	default:
		// Drop if nobody is listening.
	}
}

// Refresh reads the session, validates the token and observes the
// result. A token that is expired or rejected by the server is cleared.
func (s *Supervisor) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()

	token, err := s.currentToken(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reading session")
	}
	s.Observe(token)
}

func (s *Supervisor) currentToken(ctx context.Context) (string, error) {
	token, err := s.sessions.Token(ctx)
	if errors.Is(err, session.ErrNoToken) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if _, err := session.InspectToken(token, s.now()); errors.Is(err, session.ErrTokenExpired) {
		s.log.Info().Msg("session token expired")
		s.clearToken(ctx)
		return "", nil
	}

	if s.validator == nil || !s.cfg.VerifyUser {
		return token, nil
	}

	s.mu.Lock()
	known := token == s.lastToken
	s.mu.Unlock()
	if known {
		return token, nil
	}

	if err := s.validator.ValidateToken(ctx, token); err != nil {
		if errors.Is(err, session.ErrTokenRejected) {
			s.log.Info().Msg("server rejected session token")
			s.clearToken(ctx)
			return "", nil
		}
		s.log.Warn().Err(err).Msg("could not validate token, keeping it")
	}
	return token, nil
}

func (s *Supervisor) clearToken(ctx context.Context) {
	if err := s.sessions.Clear(ctx); err != nil {
		s.log.Error().Err(err).Msg("clearing session token")
	}
}

// ReconnectNow forgets the last token and re-runs the establish sequence
// right away. The settle delays still apply.
func (s *Supervisor) ReconnectNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()

	s.mu.Lock()
	s.lastToken = ""
	s.mu.Unlock()

	token, err := s.currentToken(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reading session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastToken = ""
	s.observeLocked(token)
}

// Start runs the health loop until Stop or ctx is done. The returned
// tea.Cmd performs the first Refresh off the caller's goroutine, since
// validating the token may hit the network, and delivers the next
// StatusMsg. Callers outside a tea.Program call Refresh themselves.
func (s *Supervisor) Start(ctx context.Context) tea.Cmd {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	go s.healthLoop(ctx, stop)

	return tea.Batch(s.refreshCmd(ctx), s.WaitForStatus())
}

func (s *Supervisor) refreshCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		s.Refresh(ctx)
		return nil
	}
}

func (s *Supervisor) healthLoop(ctx context.Context, stop <-chan struct{}) {
	interval := s.cfg.HealthInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			s.Stop()
			return
		case <-ticker.C:
			if s.State() == Idle {
				// A sign-in the storage watcher cannot see, such as a
				// token put into the OS keyring by another process.
				s.Refresh(ctx)
				continue
			}
			s.checkHealth()
		}
	}
}

// checkHealth reconnects an authenticated session whose connection has
// dropped. Establish steps that are still pending are left alone.
func (s *Supervisor) checkHealth() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Idle || s.settle != nil {
		return
	}
	switch st := s.client.Status(); st {
	case push.Connected, push.Connecting:
	default:
		s.log.Info().Str("connection", st.String()).Msg("health check reconnecting")
		s.client.Connect()
	}
	s.sendStatusLocked()
}

// Stop halts the health loop, cancels pending timers and disconnects.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stopCh)
		s.running = false
	}
	s.lastToken = ""
	if s.state == Idle && s.settle == nil && s.subscribe == nil {
		return
	}
	s.teardownLocked()
	s.setStateLocked(Idle)
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	return s.snap.Load().state
}

// Status returns the supervisor and connection state together. It does
// not wait for an establish step in progress.
func (s *Supervisor) Status() Status {
	snap := s.snap.Load()
	return Status{State: snap.state, Connection: s.client.Status(), Since: snap.since}
}

// WaitForStatus returns a tea.Cmd that waits for the next status change.
// Call it again after handling each StatusMsg to keep listening.
func (s *Supervisor) WaitForStatus() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-s.statusCh
		if !ok {
			return nil
		}
		return msg
	}
}
