package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/store"
	"github.com/nhle/authnotify/tests/testutil"
)

func sampleNotifications() []model.Notification {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []model.Notification{
		{
			ID:        "NEW_USER-b@x.com-2",
			Type:      model.NotificationNewUser,
			Message:   "New user registered: b@x.com",
			CreatedAt: created.Add(time.Second),
			Payload:   map[string]any{"email": "b@x.com"},
		},
		{
			ID:        "NEW_USER-a@x.com-1",
			Type:      model.NotificationNewUser,
			Message:   "New user registered: a@x.com",
			Read:      true,
			CreatedAt: created,
			Payload:   map[string]any{"email": "a@x.com"},
		},
	}
}

func TestNotificationStore_RoundTrip(t *testing.T) {
	ns := store.NewNotificationStore(testutil.NewTestStore(t))
	ctx := context.Background()
	want := sampleNotifications()

	require.NoError(t, ns.Save(ctx, want))

	got, err := ns.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Read, got[i].Read)
		assert.Equal(t, want[i].Message, got[i].Message)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		assert.Equal(t, want[i].Email(), got[i].Email())
	}
}

func TestNotificationStore_LoadMissing(t *testing.T) {
	ns := store.NewNotificationStore(store.NewMemoryKV())

	got, err := ns.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	raw, err := ns.Raw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestNotificationStore_LoadCorrupt(t *testing.T) {
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), store.KeyNotifications, "{not json"))

	_, err := store.NewNotificationStore(kv).Load(context.Background())
	assert.Error(t, err)
}

func TestNotificationStore_Clear(t *testing.T) {
	kv := testutil.NewTestStore(t)
	ns := store.NewNotificationStore(kv)
	ctx := context.Background()

	require.NoError(t, ns.Save(ctx, sampleNotifications()))
	require.NoError(t, ns.Clear(ctx))

	_, err := kv.Get(ctx, store.KeyNotifications)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := ns.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNotificationStore_SaveNilWritesEmptyArray(t *testing.T) {
	ns := store.NewNotificationStore(store.NewMemoryKV())
	ctx := context.Background()

	require.NoError(t, ns.Save(ctx, nil))

	raw, err := ns.Raw(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}
