// Package config is the settings view: it edits the connection settings,
// checks that the API answers and writes the config file.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/theme"
)

// ConfigMode represents the current state of the settings view.
type ConfigMode int

const (
	ModeForm           ConfigMode = iota // Editing fields
	ModeValidating                       // Probing the API
	ModeValidateResult                   // Ping failed, asking what to do
)

// pingTimeout bounds the reachability check.
const pingTimeout = 5 * time.Second

// Pinger checks that an API answers at baseURL.
type Pinger func(ctx context.Context, baseURL string) error

// ConfigDoneMsg signals the settings view should close without saving.
type ConfigDoneMsg struct{}

// SavedMsg reports that the config file was written.
type SavedMsg struct {
	Config *model.AppConfig
}

// SaveErrorMsg reports that writing the config file failed.
type SaveErrorMsg struct {
	Err error
}

// ValidateResultMsg carries the result of the reachability check.
type ValidateResultMsg struct {
	BaseURL string
	Err     error
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	baseURL   string
	directURL string
	policy    string
	delayMs   string
	backend   string
	verify    bool
}

// Model is the Bubble Tea model for the settings view.
type Model struct {
	mode    ConfigMode
	path    string
	base    model.AppConfig
	ping    Pinger
	form    *huh.Form
	fb      *formBindings
	spinner spinner.Model
	pingErr error
	width   int
	height  int
}

// New creates a settings view editing cfg, saved to path.
func New(path string, cfg *model.AppConfig, ping Pinger, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		path:    path,
		base:    *cfg,
		ping:    ping,
		fb:      &formBindings{},
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Start loads the current values into a fresh form.
func (m *Model) Start() tea.Cmd {
	m.mode = ModeForm
	m.pingErr = nil
	*m.fb = formBindings{
		baseURL:   m.base.API.BaseURL,
		directURL: m.base.Push.DirectURL,
		policy:    m.base.Push.Retry.Policy,
		delayMs:   fmt.Sprint(m.base.Push.Retry.DelayMs),
		backend:   m.base.Session.Backend,
		verify:    m.base.Supervisor.VerifyUser,
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ValidateResultMsg:
		if m.mode != ModeValidating {
			return m, nil
		}
		if msg.Err != nil {
			m.pingErr = msg.Err
			m.mode = ModeValidateResult
			return m, nil
		}
		return m, m.save()

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeValidating:
			// Only allow escape during validation
			if msg.String() == "esc" {
				m.mode = ModeForm
				m.form = m.buildForm()
				return m, m.form.Init()
			}
			return m, nil
		case ModeValidateResult:
			return m.handleValidateResultKeys(msg)
		}
	}

	return m.updateForm(msg)
}

// handleValidateResultKeys lets the user retry, save anyway or go back.
func (m Model) handleValidateResultKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		return m.startValidating()
	case "s":
		return m, m.save()
	case "esc", "enter":
		m.mode = ModeForm
		m.form = m.buildForm()
		return m, m.form.Init()
	}
	return m, nil
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.mode != ModeForm {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.startValidating()
	case huh.StateAborted:
		return m, func() tea.Msg { return ConfigDoneMsg{} }
	}
	return m, cmd
}

func (m Model) startValidating() (Model, tea.Cmd) {
	m.mode = ModeValidating
	m.pingErr = nil
	return m, tea.Batch(m.spinner.Tick, m.validate())
}

// validate pings the edited base URL.
func (m Model) validate() tea.Cmd {
	ping := m.ping
	baseURL := strings.TrimSpace(m.fb.baseURL)
	return func() tea.Msg {
		if ping == nil {
			return ValidateResultMsg{BaseURL: baseURL}
		}
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return ValidateResultMsg{BaseURL: baseURL, Err: ping(ctx, baseURL)}
	}
}

// Config returns the edited settings applied over the original config.
func (m Model) Config() *model.AppConfig {
	cfg := m.base
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(m.fb.baseURL), "/")
	cfg.Push.DirectURL = strings.TrimSpace(m.fb.directURL)
	cfg.Push.Retry.Policy = m.fb.policy
	if n, err := parseDelay(m.fb.delayMs); err == nil {
		cfg.Push.Retry.DelayMs = n
	}
	cfg.Session.Backend = m.fb.backend
	cfg.Supervisor.VerifyUser = m.fb.verify
	return &cfg
}

func (m Model) save() tea.Cmd {
	cfg := m.Config()
	path := m.path
	return func() tea.Msg {
		if err := cfg.Validate(); err != nil {
			return SaveErrorMsg{Err: err}
		}
		if err := model.SaveConfig(path, cfg); err != nil {
			return SaveErrorMsg{Err: err}
		}
		return SavedMsg{Config: cfg}
	}
}

// Mode returns the current mode.
func (m Model) Mode() ConfigMode {
	return m.mode
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// View renders the settings view.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.HeaderStyle.Render("Settings"))
	b.WriteString("\n")
	b.WriteString(theme.DimmedStyle.Render(m.path))
	b.WriteString("\n\n")

	switch m.mode {
	case ModeValidating:
		b.WriteString(m.spinner.View())
		b.WriteString(" Checking " + strings.TrimSpace(m.fb.baseURL) + "...")
		b.WriteString("\n\n")
		b.WriteString(theme.HelpStyle.Render("esc: back"))
	case ModeValidateResult:
		b.WriteString(theme.ErrorStyle.Render("API not reachable: " + m.pingErr.Error()))
		b.WriteString("\n\n")
		b.WriteString(theme.HelpStyle.Render("r: retry | s: save anyway | esc: back"))
	default:
		if m.form != nil {
			b.WriteString(m.form.View())
		}
	}

	return lipgloss.NewStyle().Width(m.width).Height(m.height).Render(b.String())
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Placeholder("http://localhost:8000").
				Value(&m.fb.baseURL).
				Validate(validateURL("http", "https")),
			huh.NewInput().
				Title("Push URL").
				Description("Tried first; the derived and proxied URLs follow").
				Placeholder("ws://localhost:8000/api/notifications/ws").
				Value(&m.fb.directURL).
				Validate(validateOptionalURL("ws", "wss")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Reconnect policy").
				Options(
					huh.NewOption("Fixed delay", "fixed"),
					huh.NewOption("Exponential backoff", "exponential"),
				).
				Value(&m.fb.policy),
			huh.NewInput().
				Title("Reconnect delay (ms)").
				Value(&m.fb.delayMs).
				Validate(func(s string) error {
					_, err := parseDelay(s)
					return err
				}),
			huh.NewSelect[string]().
				Title("Session storage").
				Options(
					huh.NewOption("Local database", "kv"),
					huh.NewOption("System keyring", "keyring"),
				).
				Value(&m.fb.backend),
			huh.NewConfirm().
				Title("Check the token with the server on sign-in?").
				Value(&m.fb.verify),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w > 80 {
		w = 80
	}
	if w < 30 {
		w = 30
	}
	return w
}

func parseDelay(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, errors.New("delay must be a positive number of milliseconds")
	}
	return n, nil
}

func validateURL(schemes ...string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return errors.New("URL is required")
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return errors.New("not a valid URL")
		}
		for _, scheme := range schemes {
			if u.Scheme == scheme {
				return nil
			}
		}
		return fmt.Errorf("URL must start with %s://", strings.Join(schemes, ":// or "))
	}
}

func validateOptionalURL(schemes ...string) func(string) error {
	check := validateURL(schemes...)
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return check(s)
	}
}
