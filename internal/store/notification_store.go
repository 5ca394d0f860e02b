package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nhle/authnotify/internal/model"
)

// NotificationStore persists the notification feed as a single JSON array
// under KeyNotifications.
type NotificationStore struct {
	kv KV
}

// NewNotificationStore wraps kv.
func NewNotificationStore(kv KV) *NotificationStore {
	return &NotificationStore{kv: kv}
}

// Load returns the persisted feed, newest first. A missing key yields an
// empty list.
func (s *NotificationStore) Load(ctx context.Context) ([]model.Notification, error) {
	raw, err := s.kv.Get(ctx, KeyNotifications)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading notifications: %w", err)
	}

	var list []model.Notification
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("unmarshaling notifications: %w", err)
	}
	return list, nil
}

// Save replaces the persisted feed with list.
func (s *NotificationStore) Save(ctx context.Context, list []model.Notification) error {
	if list == nil {
		list = []model.Notification{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshaling notifications: %w", err)
	}
	if err := s.kv.Set(ctx, KeyNotifications, string(data)); err != nil {
		return fmt.Errorf("saving notifications: %w", err)
	}
	return nil
}

// Clear erases the persisted feed.
func (s *NotificationStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyNotifications); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

// Raw returns the serialized feed exactly as stored, or "[]" when absent.
func (s *NotificationStore) Raw(ctx context.Context) (string, error) {
	raw, err := s.kv.Get(ctx, KeyNotifications)
	if errors.Is(err, ErrNotFound) {
		return "[]", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading notifications: %w", err)
	}
	return raw, nil
}
