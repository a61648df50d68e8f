package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinStoreTrustOnFirstUse(t *testing.T) {
	pins, err := NewPinStore("", nil)
	require.NoError(t, err)
	bob := testIdentity(t, "bob").Node()

	assert.False(t, pins.Pinned(bob))
	assert.True(t, pins.CheckNode(bob))
	assert.True(t, pins.Pinned(bob))
	assert.True(t, pins.CheckNode(bob))

	impostor := bob
	impostor.SigningKey = testIdentity(t, "mallory").Node().SigningKey
	assert.False(t, pins.CheckNode(impostor))

	pins.Forget(bob.Id)
	assert.True(t, pins.CheckNode(impostor))
	assert.False(t, pins.Pinned(bob))
}

func TestPinStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.yaml")
	bob := testIdentity(t, "bob").Node()
	impostor := bob
	impostor.SigningKey = testIdentity(t, "mallory").Node().SigningKey

	pins, err := NewPinStore(path, nil)
	require.NoError(t, err)
	require.True(t, pins.CheckNode(bob))

	reloaded, err := NewPinStore(path, nil)
	require.NoError(t, err)
	assert.True(t, reloaded.Pinned(bob))
	assert.False(t, reloaded.CheckNode(impostor))
}

func TestPinStoreRejectsMissingKey(t *testing.T) {
	pins, err := NewPinStore("", nil)
	require.NoError(t, err)
	bob := testIdentity(t, "bob").Node()
	bob.SigningKey = nil
	assert.False(t, pins.CheckNode(bob))
}
