package state

import (
	"crypto/ecdh"
	"crypto/rsa"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
)

// NodeId is a stable 63-bit random identifier, unique per identity.
type NodeId int64

// NewNodeId returns a random positive id.
func NewNodeId() NodeId {
	return NodeId(rand.Int64N(math.MaxInt64) + 1)
}

func (id NodeId) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Transport identifies the kind of link a neighbour is reached over.
type Transport uint8

const (
	TransportUnknown Transport = iota
	TransportBluetooth
	TransportWifiDirect
	TransportTCP
	TransportMemory
)

func (t Transport) String() string {
	switch t {
	case TransportBluetooth:
		return "bluetooth"
	case TransportWifiDirect:
		return "wifi-direct"
	case TransportTCP:
		return "tcp"
	case TransportMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// Node is the public identity record of a mesh participant. Two nodes are the
// same participant iff their ids are equal.
type Node struct {
	Id         NodeId
	Username   string
	SigningKey *rsa.PublicKey
	SessionKey *ecdh.PublicKey
	// PrimarySource is the transport of the currently best route, informational only.
	PrimarySource Transport
}

func (n Node) Equal(o Node) bool {
	return n.Id == o.Id
}

func (n Node) String() string {
	return fmt.Sprintf("(%s: %s)", n.Id, n.Username)
}

// Identity is the private counterpart of a Node, owned by the local profile.
type Identity struct {
	Id         NodeId
	Username   string
	SigningKey *rsa.PrivateKey
	SessionKey *ecdh.PrivateKey
}

func (i *Identity) Node() Node {
	return Node{
		Id:         i.Id,
		Username:   i.Username,
		SigningKey: &i.SigningKey.PublicKey,
		SessionKey: i.SessionKey.PublicKey(),
	}
}

// ProfileProvider exposes the local identity used for signing and key agreement.
type ProfileProvider interface {
	Identity() *Identity
}

// StaticProfile is a ProfileProvider for an identity that never changes.
type StaticProfile struct {
	Id *Identity
}

func (p StaticProfile) Identity() *Identity {
	return p.Id
}
