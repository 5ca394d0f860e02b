package authform

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/authnotify/internal/theme"
)

// Mode selects which flow the form drives.
type Mode int

const (
	ModeLogin Mode = iota
	ModeRegister
)

// minPasswordLength matches the server's registration rule.
const minPasswordLength = 8

// SubmitMsg is dispatched when the user completes the form.
type SubmitMsg struct {
	Mode     Mode
	Email    string
	Password string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	email    string
	password string
	confirm  string
}

// Model is the sign-in / registration form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	mode   Mode
	err    string
	width  int
	height int
}

// New creates an idle form; call Start to show it.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start resets the fields and builds the form for mode. email pre-fills
// the address field.
func (m *Model) Start(mode Mode, email string) tea.Cmd {
	m.mode = mode
	m.err = ""
	m.fb.email = email
	m.fb.password = ""
	m.fb.confirm = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// SetError shows a server-side failure above the form and restarts it
// with the email kept.
func (m *Model) SetError(err error) tea.Cmd {
	msg := err.Error()
	cmd := m.Start(m.mode, m.fb.email)
	m.err = msg
	return cmd
}

// Mode returns the flow the form is currently driving.
func (m Model) Mode() Mode {
	return m.mode
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		submit := SubmitMsg{
			Mode:     m.mode,
			Email:    strings.TrimSpace(m.fb.email),
			Password: m.fb.password,
		}
		return m, func() tea.Msg { return submit }
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "Sign In"
	if m.mode == ModeRegister {
		titleText = "Register User"
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render(titleText)

	content := title + "\n"
	if m.err != "" {
		content += theme.ErrorStyle.Render(m.err) + "\n\n"
	}
	content += m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	fields := []huh.Field{
		huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&m.fb.email).
			Validate(validateEmail),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&m.fb.password).
			Validate(m.validatePassword),
	}
	if m.mode == ModeRegister {
		fields = append(fields,
			huh.NewInput().
				Title("Confirm Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.confirm).
				Validate(m.validateConfirm),
		)
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("enter a valid email address")
	}
	return nil
}

func (m *Model) validatePassword(s string) error {
	if s == "" {
		return errors.New("password is required")
	}
	if m.mode == ModeRegister && len(s) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func (m *Model) validateConfirm(s string) error {
	if s != m.fb.password {
		return errors.New("passwords do not match")
	}
	return nil
}
