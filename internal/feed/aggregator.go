// Package feed turns push-channel events into the notification list shown
// to the user and mirrors that list to durable storage.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/store"
)

const (
	unknownEmail = "Unknown User"
	testEmail    = "test@example.com"
	storeTimeout = 5 * time.Second
)

// Aggregator owns the in-memory notification list, newest first. Every
// mutation is written through to the NotificationStore before the
// mutating call returns.
type Aggregator struct {
	store *store.NotificationStore
	log   zerolog.Logger
	now   func() time.Time

	mu        sync.Mutex
	list      []model.Notification
	dirty     bool // last write to the store failed
	watchers  map[int]chan []model.Notification
	nextWatch int
}

// New creates an Aggregator seeded from st. A list that cannot be read or
// parsed is logged and replaced with an empty one.
func New(ctx context.Context, st *store.NotificationStore, log zerolog.Logger) *Aggregator {
	a := &Aggregator{
		store:    st,
		log:      log.With().Str("component", "feed").Logger(),
		now:      time.Now,
		watchers: make(map[int]chan []model.Notification),
	}
	a.list = a.load(ctx)
	return a
}

// SetClock replaces the time source used for ids and timestamps.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

func (a *Aggregator) load(ctx context.Context) []model.Notification {
	list, err := a.store.Load(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("discarding stored notifications")
		return nil
	}
	if len(list) > model.MaxNotifications {
		list = list[:model.MaxNotifications]
	}
	return list
}

// Reload replaces the in-memory list with the stored copy, picking up
// changes written by another process. While the last write failed the
// in-memory list stays authoritative: Reload retries the write instead.
func (a *Aggregator) Reload(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dirty {
		a.persistLocked()
		return
	}
	a.list = a.load(ctx)
	a.publishLocked()
}

// HandleMessage makes the Aggregator a push subscriber.
func (a *Aggregator) HandleMessage(payload any) {
	a.HandleEvent(payload)
}

// HandleEvent normalizes raw into a notification and prepends it. It
// reports false when the event was dropped: undecodable, untyped, or of a
// type that is not displayed.
func (a *Aggregator) HandleEvent(raw any) (model.Notification, bool) {
	ev, err := decodeEvent(raw)
	if err != nil {
		a.log.Warn().Err(err).Msg("dropping malformed event")
		return model.Notification{}, false
	}

	typ, _ := ev["type"].(string)
	if typ == "" {
		a.log.Warn().Interface("event", ev).Msg("dropping event without type")
		return model.Notification{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var n model.Notification
	switch model.NotificationType(typ) {
	case model.NotificationNewUser:
		n = a.newUserLocked(ev)
	default:
		a.log.Debug().Str("type", typ).Msg("ignoring unhandled event type")
		return model.Notification{}, false
	}

	a.list = append([]model.Notification{n}, a.list...)
	if len(a.list) > model.MaxNotifications {
		a.list = a.list[:model.MaxNotifications]
	}
	a.persistLocked()
	a.publishLocked()

	a.log.Info().Str("id", n.ID).Str("type", typ).Msg("notification added")
	return n, true
}

func (a *Aggregator) newUserLocked(ev map[string]any) model.Notification {
	data, _ := ev["data"].(map[string]any)

	email := stringField(data, "email")
	if email == "" {
		email = stringField(ev, "email")
	}
	if email == "" {
		email = unknownEmail
	}

	payload := data
	if payload == nil {
		payload = map[string]any{"email": email}
	}

	now := a.now()
	return model.Notification{
		ID:        a.uniqueIDLocked(fmt.Sprintf("%s-%s-%d", model.NotificationNewUser, email, now.UnixMilli())),
		Type:      model.NotificationNewUser,
		Message:   "New user registered: " + email,
		CreatedAt: now,
		Payload:   payload,
	}
}

// uniqueIDLocked suffixes base with -2, -3, ... until no entry uses it.
func (a *Aggregator) uniqueIDLocked(base string) string {
	taken := make(map[string]bool, len(a.list))
	for _, n := range a.list {
		taken[n.ID] = true
	}
	id := base
	for i := 2; taken[id]; i++ {
		id = fmt.Sprintf("%s-%d", base, i)
	}
	return id
}

func decodeEvent(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		return decodeJSON([]byte(v))
	case []byte:
		return decodeJSON(v)
	case json.RawMessage:
		return decodeJSON(v)
	case nil:
		return nil, fmt.Errorf("empty event")
	default:
		return nil, fmt.Errorf("unsupported event type %T", raw)
	}
}

func decodeJSON(data []byte) (map[string]any, error) {
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("event is not an object")
	}
	return ev, nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// MarkAsRead marks the notification with id as read. Unknown ids are
// ignored.
func (a *Aggregator) MarkAsRead(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.list {
		if a.list[i].ID != id {
			continue
		}
		if a.list[i].Read {
			return
		}
		a.list[i].Read = true
		a.persistLocked()
		a.publishLocked()
		return
	}
}

// MarkAllAsRead marks every notification as read.
func (a *Aggregator) MarkAllAsRead() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.list {
		a.list[i].Read = true
	}
	a.persistLocked()
	a.publishLocked()
}

// ClearAll empties the list and erases the stored copy.
func (a *Aggregator) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.list = nil
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := a.store.Clear(ctx)
	a.dirty = err != nil
	if err != nil {
		a.log.Error().Err(err).Msg("clearing stored notifications")
	}
	a.publishLocked()
}

// UnreadCount returns the number of unread notifications.
func (a *Aggregator) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for _, n := range a.list {
		if !n.Read {
			count++
		}
	}
	return count
}

// Notifications returns a copy of the list, newest first.
func (a *Aggregator) Notifications() []model.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// NotifyNewUser adds a NEW_USER notification for email right away, ahead
// of the matching server event.
func (a *Aggregator) NotifyNewUser(email string) (model.Notification, bool) {
	return a.HandleEvent(map[string]any{
		"type": string(model.NotificationNewUser),
		"data": map[string]any{"email": email},
	})
}

// Test adds a diagnostic notification.
func (a *Aggregator) Test() (model.Notification, bool) {
	return a.NotifyNewUser(testEmail)
}

// Watch returns a channel receiving a snapshot after every change. Slow
// readers only see the latest snapshot. Call the returned func to stop
// watching; it closes the channel.
func (a *Aggregator) Watch() (<-chan []model.Notification, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextWatch
	a.nextWatch++
	ch := make(chan []model.Notification, 1)
	a.watchers[id] = ch
	ch <- a.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.watchers, id)
			close(ch)
		})
	}
}

func (a *Aggregator) snapshotLocked() []model.Notification {
	out := make([]model.Notification, len(a.list))
	copy(out, a.list)
	return out
}

func (a *Aggregator) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := a.store.Save(ctx, a.list)
	a.dirty = err != nil
	if err != nil {
		a.log.Error().Err(err).Msg("saving notifications")
	}
}

func (a *Aggregator) publishLocked() {
	snap := a.snapshotLocked()
	for _, ch := range a.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
