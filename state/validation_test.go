package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsernameValidator_Valid(t *testing.T) {
	assert.NoError(t, UsernameValidator("alice"))
	assert.NoError(t, UsernameValidator("Bob O'Neil"))
	assert.NoError(t, UsernameValidator("Zoë-2"))
	assert.NoError(t, UsernameValidator("田中"))
	assert.NoError(t, UsernameValidator(strings.Repeat("a", MaxUsernameLength)))
}

func TestUsernameValidator_Invalid(t *testing.T) {
	assert.Error(t, UsernameValidator(""))
	assert.Error(t, UsernameValidator(" alice"))
	assert.Error(t, UsernameValidator("alice\n"))
	assert.Error(t, UsernameValidator("al\tice"))
	assert.Error(t, UsernameValidator("a\x00b"))
	assert.Error(t, UsernameValidator(string([]byte{0xff, 0xfe})))
	assert.Error(t, UsernameValidator(strings.Repeat("a", MaxUsernameLength+1)))
}

func TestNodeConfigValidator(t *testing.T) {
	id := testIdentity(t, "node1")
	cfg := NewLocalCfg(id)
	assert.NoError(t, NodeConfigValidator(&cfg))

	bad := cfg
	bad.Id = 0
	assert.Error(t, NodeConfigValidator(&bad))

	bad = cfg
	bad.SessionKey = SessionPrivateKey{}
	assert.ErrorContains(t, NodeConfigValidator(&bad), "SessionKey")
}
