package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/authnotify/internal/api"
	"github.com/nhle/authnotify/internal/feed"
	"github.com/nhle/authnotify/internal/keys"
	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/push"
	"github.com/nhle/authnotify/internal/session"
	appsync "github.com/nhle/authnotify/internal/sync"
	"github.com/nhle/authnotify/internal/theme"
	"github.com/nhle/authnotify/internal/ui"
	"github.com/nhle/authnotify/internal/ui/authform"
	"github.com/nhle/authnotify/internal/ui/command"
	"github.com/nhle/authnotify/internal/ui/config"
	"github.com/nhle/authnotify/internal/ui/detail"
	"github.com/nhle/authnotify/internal/ui/feedlist"
	helpview "github.com/nhle/authnotify/internal/ui/help"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewFeed ViewState = iota
	ViewHelp
	ViewCommand
	ViewAuth
	ViewSettings
	ViewDetail
)

// statusRefreshInterval is how often the header re-reads the connection
// state between supervisor events.
const statusRefreshInterval = time.Second

// toastDuration is how long a newly arrived notification stays in the
// footer.
const toastDuration = 5 * time.Second

// commands lists what the command palette accepts.
var commands = []string{
	"mark-all", "clear", "test", "reconnect", "settings", "login", "register", "logout", "quit",
}

// Deps are the long-lived collaborators the UI drives.
type Deps struct {
	Feed       *feed.Aggregator
	Supervisor *appsync.Supervisor
	Sessions   session.Store
	API        *api.Client
	Log        zerolog.Logger

	// Config and ConfigPath back the settings view.
	Config     *model.AppConfig
	ConfigPath string
}

// snapshotMsg carries the latest notification list.
type snapshotMsg struct {
	list []model.Notification
}

// statusTickMsg triggers a header refresh.
type statusTickMsg struct{}

// authResultMsg reports the outcome of a login or registration.
type authResultMsg struct {
	mode  authform.Mode
	email string
	err   error
}

// toastExpiredMsg clears the arrival toast for the notification id.
type toastExpiredMsg struct {
	id      string
	message string
}

// noSessionMsg is sent at startup when nobody is signed in.
type noSessionMsg struct{}

// loggedOutMsg reports that the session was cleared.
type loggedOutMsg struct {
	err error
}

// Model is the root Bubble Tea model: the notification feed plus the
// overlays around it.
type Model struct {
	ctx          context.Context
	deps         Deps
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	feedList     feedlist.Model
	helpView     helpview.Model
	commandView  command.Model
	authForm     authform.Model
	settings     config.Model
	detailView   detail.Model
	snapshots    <-chan []model.Notification
	stopWatch    func()
	status       appsync.Status
	unread       int
	flash        string
	newestID     string
	toastID      string
	ready        bool
}

// New creates the root model. The supervisor is started by Init.
func New(ctx context.Context, deps Deps) Model {
	k := keys.DefaultKeyMap()
	snapshots, stop := deps.Feed.Watch()
	if deps.Config == nil {
		deps.Config = model.DefaultAppConfig()
	}

	return Model{
		ctx:         ctx,
		deps:        deps,
		currentView: ViewFeed,
		keys:        k,
		feedList:    feedlist.New(k, 80, 22),
		helpView:    helpview.New(k, commands, 80, 22),
		commandView: command.New(commands, 80, 22),
		authForm:    authform.New(80, 22),
		settings:    config.New(deps.ConfigPath, deps.Config, pingAPI, 80, 22),
		detailView:  detail.New(k, 80, 22),
		snapshots:   snapshots,
		stopWatch:   stop,
	}
}

// Init starts the supervisor health loop and begins listening for feed
// snapshots. The first session refresh runs as a command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.deps.Supervisor.Start(m.ctx),
		m.waitForSnapshot(),
		m.checkSession(),
		statusTick(),
	)
}

func (m Model) waitForSnapshot() tea.Cmd {
	ch := m.snapshots
	return func() tea.Msg {
		list, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{list: list}
	}
}

// toastArrival shows the head of list in the footer when it changed since
// the last snapshot, and schedules its removal.
func (m *Model) toastArrival(list []model.Notification) tea.Cmd {
	if len(list) == 0 {
		m.newestID = ""
		return nil
	}
	head := list[0]
	if head.ID == m.newestID {
		return nil
	}
	m.newestID = head.ID
	m.flash = head.Message
	m.toastID = head.ID
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: head.ID, message: head.Message}
	})
}

func statusTick() tea.Cmd {
	return tea.Tick(statusRefreshInterval, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.feedList.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.authForm.SetSize(w, h)
		m.settings.SetSize(w, h)
		m.detailView.SetSize(w, h)
		return m.updateActiveView(msg)

	case snapshotMsg:
		m.unread = countUnread(msg.list)
		cmd := m.feedList.SetNotifications(msg.list)
		if m.currentView == ViewDetail && !m.detailView.Refresh(msg.list) {
			m.currentView = ViewFeed
		}
		return m, tea.Batch(cmd, m.toastArrival(msg.list), m.waitForSnapshot())

	case toastExpiredMsg:
		if msg.id == m.toastID && m.flash == msg.message {
			m.flash = ""
			m.toastID = ""
		}
		return m, nil

	case appsync.StatusMsg:
		m.status = msg.Status
		return m, m.deps.Supervisor.WaitForStatus()

	case statusTickMsg:
		m.status = m.deps.Supervisor.Status()
		return m, statusTick()

	case feedlist.MarkReadMsg:
		m.deps.Feed.MarkAsRead(msg.ID)
		return m, nil

	case detail.MarkReadMsg:
		m.deps.Feed.MarkAsRead(msg.ID)
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewFeed
		return m, nil

	case noSessionMsg:
		if m.currentView != ViewFeed {
			return m, nil
		}
		return m, m.executeCommand("login")

	case authform.SubmitMsg:
		m.flash = "Working..."
		return m, m.submitAuth(msg)

	case authform.CancelMsg:
		m.currentView = ViewFeed
		return m, nil

	case authResultMsg:
		if msg.err != nil {
			m.flash = ""
			return m, m.authForm.SetError(msg.err)
		}
		m.currentView = ViewFeed
		if msg.mode == authform.ModeRegister {
			m.flash = "Registered " + msg.email + ". Check the inbox to verify the address."
		} else {
			m.flash = "Signed in as " + msg.email
		}
		return m, nil

	case loggedOutMsg:
		if msg.err != nil {
			m.flash = "Sign out failed: " + msg.err.Error()
		} else {
			m.flash = "Signed out"
		}
		return m, nil

	case config.SavedMsg:
		m.currentView = ViewFeed
		m.flash = "Settings saved; restart to apply"
		return m, nil

	case config.SaveErrorMsg:
		m.currentView = ViewFeed
		m.flash = "Saving settings failed: " + msg.Err.Error()
		return m, nil

	case config.ConfigDoneMsg:
		m.currentView = ViewFeed
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		// Overlays with text input get every other key.
		if m.currentView == ViewAuth || m.currentView == ViewCommand || m.currentView == ViewSettings {
			return m.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}

		case key.Matches(msg, m.keys.Command):
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()
		}

		if m.currentView == ViewFeed {
			if cmd, handled := m.handleFeedKey(msg); handled {
				return m, cmd
			}
		}
	}

	return m.updateActiveView(msg)
}

// handleFeedKey runs the feed shortcuts. It reports false for keys that
// belong to the list itself.
func (m *Model) handleFeedKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit(), true
	case key.Matches(msg, m.keys.Open):
		n, ok := m.feedList.Selected()
		if !ok {
			return nil, true
		}
		m.detailView.SetNotification(n)
		m.currentView = ViewDetail
		return nil, true
	case key.Matches(msg, m.keys.MarkAll):
		return m.executeCommand("mark-all"), true
	case key.Matches(msg, m.keys.Clear):
		return m.executeCommand("clear"), true
	case key.Matches(msg, m.keys.Test):
		return m.executeCommand("test"), true
	case key.Matches(msg, m.keys.Reconnect):
		return m.executeCommand("reconnect"), true
	case key.Matches(msg, m.keys.Settings):
		return m.executeCommand("settings"), true
	case key.Matches(msg, m.keys.Login):
		return m.executeCommand("login"), true
	case key.Matches(msg, m.keys.Register):
		return m.executeCommand("register"), true
	case key.Matches(msg, m.keys.Logout):
		return m.executeCommand("logout"), true
	}
	return nil, false
}

// executeCommand handles a command string from the palette or a shortcut.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "mark-all", "read":
		m.deps.Feed.MarkAllAsRead()
	case "clear":
		m.deps.Feed.ClearAll()
		m.flash = "Notifications cleared"
	case "test":
		m.deps.Feed.Test()
	case "reconnect":
		m.flash = "Reconnecting..."
		return m.reconnect()
	case "settings":
		m.previousView = ViewFeed
		m.currentView = ViewSettings
		return m.settings.Start()
	case "login":
		m.previousView = ViewFeed
		m.currentView = ViewAuth
		return m.authForm.Start(authform.ModeLogin, "")
	case "register":
		m.previousView = ViewFeed
		m.currentView = ViewAuth
		return m.authForm.Start(authform.ModeRegister, "")
	case "logout":
		return m.logout()
	case "quit", "q":
		return m.quit()
	case "":
	default:
		m.flash = fmt.Sprintf("unknown command %q", cmd)
	}
	return nil
}

func (m *Model) quit() tea.Cmd {
	m.stopWatch()
	m.deps.Supervisor.Stop()
	return tea.Quit
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewFeed:
		m.feedList, cmd = m.feedList.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewAuth:
		m.authForm, cmd = m.authForm.Update(msg)
	case ViewSettings:
		m.settings, cmd = m.settings.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("authnotify", m.unread, m.connectionStatus())
	statusBar := m.layout.RenderStatusBar(m.keyHints())
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewAuth:
		return m.authForm.View()
	case ViewSettings:
		return m.settings.View()
	case ViewDetail:
		return m.detailView.View()
	default:
		return m.feedList.View()
	}
}

// connectionStatus describes the push channel for the header.
func (m Model) connectionStatus() string {
	if m.status.State == appsync.Idle {
		return theme.DimmedStyle.Render("Not signed in")
	}

	conn := m.status.Connection
	style := theme.ConnectionStyle(conn.String())
	switch conn {
	case push.Connected:
		return style.Render("Connected to notification server")
	case push.Connecting:
		return style.Render("Connecting...")
	default:
		if m.status.State == appsync.Establishing {
			return theme.ConnectionStyle(push.Connecting.String()).Render("Establishing...")
		}
		return style.Render("Disconnected")
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewAuth, ViewSettings:
		return "enter next/submit | esc cancel"
	case ViewDetail:
		return "enter mark read | j/k scroll | esc back"
	}

	if m.flash != "" {
		return m.flash
	}
	if m.status.State == appsync.Idle {
		return "l sign in | n register | t test | q quit | ? help"
	}
	return "enter read | m read all | X clear | r reconnect | s settings | L sign out | q quit"
}

func countUnread(list []model.Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}
