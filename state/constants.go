package state

import "time"

var (
	// DefaultTTL is the number of forwards a new routed message may take.
	DefaultTTL = uint32(16)
	// MaxHops bounds the hop count accepted from neighbour reports.
	MaxHops = DefaultTTL

	AskNodesDelay     = time.Second * 30
	ResponseTimeout   = time.Second * 5
	SessionKeyTTL     = time.Minute * 10
	ErrorReplyBackoff = time.Second * 5
	HelloTimeout      = time.Second * 10

	// AcceptedReplay is the number of accepted messages replayed to new subscribers.
	AcceptedReplay = 64
	// SubscriberBuffer is the number of undelivered messages a subscriber may queue.
	SubscriberBuffer = 256

	// MaxTCPNeighbours caps concurrently accepted TCP links.
	MaxTCPNeighbours = 64

	MaxUsernameLength = 32
	MaxPacketSize     = 1 << 20
	SigningKeyBits    = 2048

	DefaultPort = 57176
)
