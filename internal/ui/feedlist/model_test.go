package feedlist

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/authnotify/internal/keys"
	"github.com/nhle/authnotify/internal/model"
)

func sample() []model.Notification {
	return []model.Notification{
		{ID: "b", Message: "New user registered: b@x.com"},
		{ID: "a", Message: "New user registered: a@x.com", Read: true},
	}
}

func TestEnterMarksSelectedRead(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	m.SetNotifications(sample())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, MarkReadMsg{ID: "b"}, cmd())
}

func TestEnterOnReadItemIsNoop(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	m.SetNotifications(sample()[1:])

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestSetNotificationsClampsCursor(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	m.SetNotifications(sample())
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})

	n, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "a", n.ID)

	m.SetNotifications(sample()[:1])
	n, ok = m.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", n.ID)

	m.SetNotifications(nil)
	_, ok = m.Selected()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "No notifications yet")
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "", relativeTime(now, time.Time{}))
	assert.Equal(t, "just now", relativeTime(now, now.Add(-10*time.Second)))
	assert.Equal(t, "5m ago", relativeTime(now, now.Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", relativeTime(now, now.Add(-3*time.Hour)))
	assert.Equal(t, "2d ago", relativeTime(now, now.Add(-48*time.Hour)))
	assert.Equal(t, "Feb 01", relativeTime(now, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}
