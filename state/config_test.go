package state

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeConfigRoundTrip(t *testing.T) {
	id := testIdentity(t, "node1")
	cfg := NewLocalCfg(id)
	cfg.Listen = netip.MustParseAddrPort("127.0.0.1:57176")
	cfg.Peers = []netip.AddrPort{netip.MustParseAddrPort("10.0.0.2:57176")}
	cfg.LogPath = "/tmp/lattice.log"

	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, WriteNodeConfig(path, &cfg))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "listen: 127.0.0.1:57176")

	read, err := ReadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Id, read.Id)
	assert.Equal(t, cfg.Username, read.Username)
	assert.Equal(t, cfg.Listen, read.Listen)
	assert.Equal(t, cfg.Peers, read.Peers)
	assert.Equal(t, cfg.LogPath, read.LogPath)
	assert.True(t, read.SigningKey.Equal(id.SigningKey))
	assert.True(t, read.SessionKey.Equal(id.SessionKey))
	assert.NoError(t, NodeConfigValidator(read))

	ident := read.Identity()
	assert.Equal(t, id.Node().Id, ident.Node().Id)
}

func TestNodeConfigWithoutListen(t *testing.T) {
	cfg := NewLocalCfg(testIdentity(t, "node2"))
	cfg.Peers = []netip.AddrPort{netip.MustParseAddrPort("10.0.0.2:57176")}

	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, WriteNodeConfig(path, &cfg))
	read, err := ReadNodeConfig(path)
	require.NoError(t, err)
	assert.False(t, read.Listen.IsValid())
	assert.Equal(t, cfg.Peers, read.Peers)
}

func TestReadNodeConfigMissing(t *testing.T) {
	_, err := ReadNodeConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
