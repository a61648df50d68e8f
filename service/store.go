package service

import (
	"slices"
	"sync"
	"time"

	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
)

// StoredMessage is a text message sent or received by this node.
type StoredMessage struct {
	Peer     state.NodeId
	Outgoing bool
	Text     protocol.Text
	// Delivered is set once the peer acknowledged an outgoing message.
	Delivered bool
	Read      bool
	Stored    time.Time
}

// MessageStore keeps the chat history. Messages are keyed by peer, direction
// and message id.
type MessageStore interface {
	// Put stores m, returning false if it was already stored.
	Put(m StoredMessage) bool
	MarkDelivered(peer state.NodeId, msgId uint64) bool
	MarkRead(peer state.NodeId, msgId uint64, outgoing bool) bool
	// Chat returns the messages of a chat, oldest first.
	Chat(chatId uint64) []StoredMessage
	// Undelivered returns outgoing messages to peer that were never acknowledged.
	Undelivered(peer state.NodeId) []StoredMessage
}

type messageKey struct {
	peer     state.NodeId
	outgoing bool
	msgId    uint64
}

type MemoryMessageStore struct {
	mu       sync.Mutex
	messages map[messageKey]*StoredMessage
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[messageKey]*StoredMessage)}
}

func (s *MemoryMessageStore) Put(m StoredMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := messageKey{m.Peer, m.Outgoing, m.Text.MsgId}
	if _, ok := s.messages[key]; ok {
		return false
	}
	if m.Stored.IsZero() {
		m.Stored = time.Now()
	}
	s.messages[key] = &m
	return true
}

func (s *MemoryMessageStore) MarkDelivered(peer state.NodeId, msgId uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageKey{peer, true, msgId}]
	if !ok {
		return false
	}
	m.Delivered = true
	return true
}

func (s *MemoryMessageStore) MarkRead(peer state.NodeId, msgId uint64, outgoing bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageKey{peer, outgoing, msgId}]
	if !ok {
		return false
	}
	m.Read = true
	return true
}

func (s *MemoryMessageStore) Chat(chatId uint64) []StoredMessage {
	return s.filter(func(m *StoredMessage) bool {
		return m.Text.ChatId == chatId
	})
}

func (s *MemoryMessageStore) Undelivered(peer state.NodeId) []StoredMessage {
	return s.filter(func(m *StoredMessage) bool {
		return m.Outgoing && !m.Delivered && m.Peer == peer
	})
}

func (s *MemoryMessageStore) filter(keep func(*StoredMessage) bool) []StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredMessage
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, *m)
		}
	}
	slices.SortFunc(out, func(a, b StoredMessage) int {
		if a.Text.Timestamp != b.Text.Timestamp {
			if a.Text.Timestamp < b.Text.Timestamp {
				return -1
			}
			return 1
		}
		return a.Stored.Compare(b.Stored)
	})
	return out
}
