package app

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/authnotify/internal/api"
	"github.com/nhle/authnotify/internal/session"
	"github.com/nhle/authnotify/internal/ui/authform"
)

// authTimeout bounds a single login or registration round trip.
const authTimeout = 30 * time.Second

// submitAuth runs the login or registration described by msg.
func (m Model) submitAuth(msg authform.SubmitMsg) tea.Cmd {
	ctx := m.ctx
	deps := m.deps
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, authTimeout)
		defer cancel()

		switch msg.Mode {
		case authform.ModeRegister:
			if _, err := deps.API.Register(ctx, msg.Email, msg.Password); err != nil {
				return authResultMsg{mode: msg.Mode, email: msg.Email, err: err}
			}
			deps.Feed.NotifyNewUser(msg.Email)
		default:
			tok, err := deps.API.Login(ctx, msg.Email, msg.Password)
			if err != nil {
				return authResultMsg{mode: msg.Mode, email: msg.Email, err: err}
			}
			if err := deps.Sessions.SetToken(ctx, tok.AccessToken); err != nil {
				return authResultMsg{mode: msg.Mode, email: msg.Email, err: err}
			}
			deps.Supervisor.Refresh(ctx)
		}
		deps.Log.Info().Str("email", msg.Email).Msg("auth flow completed")
		return authResultMsg{mode: msg.Mode, email: msg.Email}
	}
}

// checkSession opens the sign-in form when no token is stored.
func (m Model) checkSession() tea.Cmd {
	ctx := m.ctx
	sessions := m.deps.Sessions
	return func() tea.Msg {
		if _, err := sessions.Token(ctx); errors.Is(err, session.ErrNoToken) {
			return noSessionMsg{}
		}
		return nil
	}
}

// logout clears the session and stops the push channel.
func (m Model) logout() tea.Cmd {
	ctx := m.ctx
	deps := m.deps
	return func() tea.Msg {
		err := deps.Sessions.Clear(ctx)
		deps.Supervisor.Observe("")
		return loggedOutMsg{err: err}
	}
}

// pingAPI checks a base URL entered in the settings view.
func pingAPI(ctx context.Context, baseURL string) error {
	return api.NewClient(baseURL, 0).Ping(ctx)
}

// reconnect re-runs the establish sequence.
func (m Model) reconnect() tea.Cmd {
	ctx := m.ctx
	sup := m.deps.Supervisor
	return func() tea.Msg {
		sup.ReconnectNow(ctx)
		return nil
	}
}
