package service

import (
	"testing"

	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
	"github.com/stretchr/testify/assert"
)

func TestMemoryMessageStore(t *testing.T) {
	s := NewMemoryMessageStore()
	peer := state.NodeId(7)

	assert.True(t, s.Put(StoredMessage{Peer: peer, Outgoing: true, Text: protocol.Text{MsgId: 1, ChatId: 1, Timestamp: 20}}))
	assert.False(t, s.Put(StoredMessage{Peer: peer, Outgoing: true, Text: protocol.Text{MsgId: 1, ChatId: 1}}))
	// the same id in the other direction is a different message
	assert.True(t, s.Put(StoredMessage{Peer: peer, Text: protocol.Text{MsgId: 1, ChatId: 1, Timestamp: 10}}))
	assert.True(t, s.Put(StoredMessage{Peer: peer, Text: protocol.Text{MsgId: 2, ChatId: 2}}))

	chat := s.Chat(1)
	assert.Len(t, chat, 2)
	assert.False(t, chat[0].Outgoing, "ordered by timestamp")

	assert.Len(t, s.Undelivered(peer), 1)
	assert.True(t, s.MarkDelivered(peer, 1))
	assert.Empty(t, s.Undelivered(peer))
	assert.False(t, s.MarkDelivered(peer, 2))

	assert.True(t, s.MarkRead(peer, 2, false))
	assert.True(t, s.Chat(2)[0].Read)
	assert.False(t, s.MarkRead(peer, 2, true))
}
