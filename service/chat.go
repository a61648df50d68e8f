package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
)

// Chat is a conversation between a set of nodes.
type Chat struct {
	Id      uint64
	Name    string
	Members []state.NodeId
}

func (c Chat) HasMember(id state.NodeId) bool {
	return slices.Contains(c.Members, id)
}

// ChatService manages contacts and chat membership.
type ChatService struct {
	d    Dispatcher
	self state.NodeId
	log  *slog.Logger

	mu       sync.Mutex
	contacts map[state.NodeId]state.Node
	invites  map[state.NodeId]state.Node
	asked    map[state.NodeId]struct{}
	chats    map[uint64]Chat

	// OnContactInvitation is called when a node asks to become a contact.
	OnContactInvitation func(state.Node)
	// OnChat is called when a chat is joined through an invitation.
	OnChat func(Chat)
}

func NewChatService(d Dispatcher, self state.NodeId, log *slog.Logger) *ChatService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ChatService{
		d:                   d,
		self:                self,
		log:                 log.With("service", "chat"),
		contacts:            make(map[state.NodeId]state.Node),
		invites:             make(map[state.NodeId]state.Node),
		asked:               make(map[state.NodeId]struct{}),
		chats:               make(map[uint64]Chat),
		OnContactInvitation: func(state.Node) {},
		OnChat:              func(Chat) {},
	}
}

// InviteContact asks dest to become a contact. The answer arrives later.
func (c *ChatService) InviteContact(ctx context.Context, dest state.Node) error {
	c.mu.Lock()
	c.asked[dest.Id] = struct{}{}
	c.mu.Unlock()
	_, err := c.d.Request(ctx, &protocol.ContactInvitation{}, dest)
	return err
}

// AnswerInvitation accepts or declines a pending contact invitation.
func (c *ChatService) AnswerInvitation(ctx context.Context, from state.Node, accepted bool) error {
	c.mu.Lock()
	_, ok := c.invites[from.Id]
	delete(c.invites, from.Id)
	if ok && accepted {
		c.contacts[from.Id] = from
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no invitation from %s", core.ErrNotFound, from)
	}
	_, err := c.d.Request(ctx, &protocol.ContactInvitationAnswer{Accepted: accepted}, from)
	return err
}

// CreateChat starts a chat owned by this node.
func (c *ChatService) CreateChat(name string, members ...state.NodeId) Chat {
	chat := Chat{
		Id:      core.NewMessageId(),
		Name:    name,
		Members: append([]state.NodeId{c.self}, members...),
	}
	c.mu.Lock()
	c.chats[chat.Id] = chat
	c.mu.Unlock()
	return chat
}

// InviteToChat tells dest about a chat. dest must already be a member.
func (c *ChatService) InviteToChat(ctx context.Context, dest state.Node, chatId uint64) error {
	chat, ok := c.Chat(chatId)
	if !ok {
		return fmt.Errorf("%w: chat %d", core.ErrNotFound, chatId)
	}
	if !chat.HasMember(dest.Id) {
		return fmt.Errorf("%w: %s is not a member of %d", core.ErrBadRequest, dest, chatId)
	}
	_, err := c.d.Request(ctx, &protocol.ChatInvitation{ChatId: chatId}, dest)
	return err
}

// FetchChatInfo asks dest for the details of a chat.
func (c *ChatService) FetchChatInfo(ctx context.Context, dest state.Node, chatId uint64) (Chat, error) {
	resp, err := c.d.Request(ctx, &protocol.ChatInfoRequest{ChatId: chatId}, dest)
	if err != nil {
		return Chat{}, err
	}
	info, err := core.ExpectBody[*protocol.ChatInfoResponse](resp)
	if err != nil {
		return Chat{}, err
	}
	if info.ChatId != chatId {
		return Chat{}, fmt.Errorf("%w: asked for chat %d, got %d", core.ErrInvalidResponse, chatId, info.ChatId)
	}
	return Chat{Id: info.ChatId, Name: info.Name, Members: info.Members}, nil
}

func (c *ChatService) Chat(id uint64) (Chat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chat, ok := c.chats[id]
	return chat, ok
}

func (c *ChatService) Contacts() []state.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]state.Node, 0, len(c.contacts))
	for _, n := range c.contacts {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b state.Node) int {
		return cmp.Compare(a.Id, b.Id)
	})
	return out
}

// PendingInvitations returns the nodes waiting for an answer.
func (c *ChatService) PendingInvitations() []state.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]state.Node, 0, len(c.invites))
	for _, n := range c.invites {
		out = append(out, n)
	}
	return out
}

func (c *ChatService) Serve(ctx context.Context) error {
	var bg tasks
	defer bg.wait()
	return serve(ctx, c.d, c.log, func(ctx context.Context, m core.AcceptedMessage) {
		c.handle(ctx, m, &bg)
	})
}

func (c *ChatService) handle(ctx context.Context, m core.AcceptedMessage, bg *tasks) {
	switch p := m.Payload.(type) {
	case *protocol.ContactInvitation:
		c.mu.Lock()
		_, known := c.contacts[m.Sender.Id]
		if !known {
			c.invites[m.Sender.Id] = m.Sender
		}
		c.mu.Unlock()
		ack(c.d, c.log, m, protocol.NoError)
		if !known {
			c.log.Info("received contact invitation", "from", m.Sender)
			c.OnContactInvitation(m.Sender)
		}
	case *protocol.ContactInvitationAnswer:
		c.mu.Lock()
		_, asked := c.asked[m.Sender.Id]
		delete(c.asked, m.Sender.Id)
		if asked && p.Accepted {
			c.contacts[m.Sender.Id] = m.Sender
		}
		c.mu.Unlock()
		if !asked {
			ack(c.d, c.log, m, protocol.BadRequest)
			return
		}
		c.log.Info("contact invitation answered", "from", m.Sender, "accepted", p.Accepted)
		ack(c.d, c.log, m, protocol.NoError)
	case *protocol.ChatInvitation:
		ack(c.d, c.log, m, protocol.NoError)
		if _, ok := c.Chat(p.ChatId); ok {
			return
		}
		sender, chatId := m.Sender, p.ChatId
		bg.spawn(func() {
			chat, err := c.FetchChatInfo(ctx, sender, chatId)
			if err != nil {
				c.log.Warn("failed to fetch chat info", "chat", chatId, "from", sender, "error", err)
				return
			}
			c.mu.Lock()
			c.chats[chat.Id] = chat
			c.mu.Unlock()
			c.log.Info("joined chat", "chat", chat.Id, "name", chat.Name)
			c.OnChat(chat)
		})
	case *protocol.ChatInfoRequest:
		chat, ok := c.Chat(p.ChatId)
		if !ok || !chat.HasMember(m.Sender.Id) {
			ack(c.d, c.log, m, protocol.NotFound)
			return
		}
		err := c.d.Respond(m.Id, protocol.NoError, &protocol.ChatInfoResponse{
			ChatId:  chat.Id,
			Name:    chat.Name,
			Members: chat.Members,
		}, m.Sender)
		if err != nil {
			c.log.Debug("failed to send chat info", "to", m.Sender, "error", err)
		}
	}
}
