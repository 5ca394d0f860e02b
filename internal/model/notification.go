package model

import "time"

// NotificationType tags the kind of event a notification was built from.
type NotificationType string

const (
	// NotificationNewUser is emitted by the server when an account registers.
	NotificationNewUser NotificationType = "NEW_USER"
)

// MaxNotifications is the number of most recent notifications kept in the
// feed. Older entries are evicted first.
const MaxNotifications = 50

// Notification represents an alert surfaced to the signed-in user about
// activity on the server.
type Notification struct {
	// ID is the unique identifier for this notification within the feed.
	ID string `json:"id"`

	// Type identifies the event kind that produced this notification.
	Type NotificationType `json:"type"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was accepted by the client.
	CreatedAt time.Time `json:"createdAt"`

	// Payload holds the auxiliary fields of the originating event.
	Payload map[string]any `json:"data"`
}

// Email returns the email address carried in the payload, if any.
func (n Notification) Email() string {
	if n.Payload == nil {
		return ""
	}
	email, _ := n.Payload["email"].(string)
	return email
}
