package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	v, err := New("secret")
	require.NoError(t, err)

	sealed, err := v.Seal("canvas-token-123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "canvas-token-123")

	plain, err := v.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "canvas-token-123", plain)
}

func TestSealUsesFreshNonce(t *testing.T) {
	v, err := New("secret")
	require.NoError(t, err)
	a, _ := v.Seal("same")
	b, _ := v.Seal("same")
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsOtherKey(t *testing.T) {
	a, _ := New("one")
	b, _ := New("two")
	sealed, err := a.Seal("token")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestOpenRejectsShortInput(t *testing.T) {
	v, _ := New("secret")
	_, err := v.Open("AAAA")
	assert.ErrorIs(t, err, ErrTampered)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
