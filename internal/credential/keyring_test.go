package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_SetGetDelete(t *testing.T) {
	k := NewWithBackend(keyring.NewArrayKeyring(nil))

	_, err := k.Get("access-token")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, k.Set("access-token", "abc"))
	v, err := k.Get("access-token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, k.Delete("access-token"))
	require.NoError(t, k.Delete("access-token"))

	_, err = k.Get("access-token")
	assert.ErrorIs(t, err, ErrNotFound)
}
