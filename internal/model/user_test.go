package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	want := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, in := range []string{
		`"2023-06-01T12:00:00"`,
		`"2023-06-01T12:00:00Z"`,
		`"2023-06-01 12:00:00"`,
		`"2023-06-01T14:00:00+02:00"`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		assert.True(t, want.Equal(ts.Time), in)
	}

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`12`), &ts))
}

func TestUser_Decode(t *testing.T) {
	var u User
	err := json.Unmarshal([]byte(`{"id":1,"email":"a@x.com","created_at":"2023-06-01T12:00:00.123456","is_verified":true}`), &u)
	require.NoError(t, err)

	assert.Equal(t, 1, u.ID)
	assert.True(t, u.IsVerified)
	assert.Equal(t, 123456000, u.CreatedAt.Nanosecond())
}

func TestNotification_Email(t *testing.T) {
	assert.Equal(t, "", Notification{}.Email())
	assert.Equal(t, "a@x.com", Notification{Payload: map[string]any{"email": "a@x.com"}}.Email())
	assert.Equal(t, "", Notification{Payload: map[string]any{"email": 3}}.Email())
}
