package core

import (
	"crypto/ecdh"
	"fmt"
	"time"

	"github.com/encodeous/lattice/state"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

type sessionKey struct {
	peer *ecdh.PublicKey
	key  []byte
}

// SessionKeys memoizes the per-peer AES keys derived with Diffie-Hellman.
// Concurrent lookups for the same peer share a single derivation.
type SessionKeys struct {
	profile state.ProfileProvider
	cache   *ttlcache.Cache[state.NodeId, sessionKey]
	group   singleflight.Group
}

func NewSessionKeys(profile state.ProfileProvider, ttl time.Duration) *SessionKeys {
	return &SessionKeys{
		profile: profile,
		cache: ttlcache.New[state.NodeId, sessionKey](
			ttlcache.WithTTL[state.NodeId, sessionKey](ttl),
			ttlcache.WithDisableTouchOnHit[state.NodeId, sessionKey](),
		),
	}
}

// Get returns the session key shared with node, deriving it on first use. A
// cached key is only reused while the node presents the same session public key.
func (k *SessionKeys) Get(node state.Node) ([]byte, error) {
	if node.SessionKey == nil {
		return nil, fmt.Errorf("node %s has no session key", node)
	}
	if item := k.cache.Get(node.Id); item != nil && item.Value().peer.Equal(node.SessionKey) {
		return item.Value().key, nil
	}
	flight := fmt.Sprintf("%d/%x", node.Id, node.SessionKey.Bytes())
	v, err, _ := k.group.Do(flight, func() (any, error) {
		key, err := state.DeriveSessionKey(k.profile.Identity().SessionKey, node.SessionKey)
		if err != nil {
			return nil, err
		}
		k.cache.Set(node.Id, sessionKey{peer: node.SessionKey, key: key}, ttlcache.DefaultTTL)
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("derive session key for %s: %w", node, err)
	}
	return v.([]byte), nil
}

// Clear forgets every derived key.
func (k *SessionKeys) Clear() {
	k.cache.DeleteAll()
}

// DeleteExpired drops keys older than the cache TTL.
func (k *SessionKeys) DeleteExpired() {
	k.cache.DeleteExpired()
}

func (k *SessionKeys) Len() int {
	return k.cache.Len()
}
