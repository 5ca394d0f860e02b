// Package detail shows one notification in full, including the fields of
// the event it came from.
package detail

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/authnotify/internal/keys"
	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// MarkReadMsg asks the parent to mark the shown notification as read.
type MarkReadMsg struct {
	ID string
}

// Model is the notification detail view component.
type Model struct {
	n        *model.Notification
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.MarkRead):
			if m.n != nil && !m.n.Read {
				id := m.n.ID
				return m, func() tea.Msg {
					return MarkReadMsg{ID: id}
				}
			}
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.n == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No notification selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.n == nil {
		return ""
	}

	n := m.n
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Message))

	state := theme.DimmedStyle.Render("read")
	if !n.Read {
		state = theme.BadgeStyle.Render("unread")
	}
	typeBadge := theme.UnreadMarkerStyle.Render(string(n.Type))
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, typeBadge, "  ", state))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-9s", label+":")), valStyle.Render(value))
	}

	if email := n.Email(); email != "" {
		sections = append(sections, row("Email", email))
	}
	if !n.CreatedAt.IsZero() {
		sections = append(sections, row("Received", n.CreatedAt.Local().Format(time.DateTime)))
	}
	sections = append(sections, row("ID", n.ID))

	if len(n.Payload) > 0 {
		sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
		separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
		sections = append(sections, "", separator, "")

		headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
		sections = append(sections, headerStyle.Render("Event data"))
		sections = append(sections, "")

		for _, k := range slices.Sorted(maps.Keys(n.Payload)) {
			sections = append(sections, row(k, formatValue(n.Payload[k])))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetNotification updates the notification being displayed.
func (m *Model) SetNotification(n model.Notification) {
	m.n = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Refresh re-renders the shown notification from list, keeping the scroll
// position. It reports false when the notification is gone.
func (m *Model) Refresh(list []model.Notification) bool {
	if m.n == nil {
		return false
	}
	for _, n := range list {
		if n.ID == m.n.ID {
			m.n = &n
			m.viewport.SetContent(m.renderContent())
			return true
		}
	}
	m.n = nil
	return false
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.viewport.SetContent(m.renderContent())
}

// formatValue prints strings as-is and everything else as compact JSON.
func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
