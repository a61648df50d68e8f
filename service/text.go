package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
	"golang.org/x/sync/errgroup"
)

// TextService sends and receives chat messages and read confirmations.
// Outgoing messages that were not acknowledged are redelivered when their
// recipient becomes reachable again.
type TextService struct {
	d     Dispatcher
	store MessageStore
	log   *slog.Logger

	// OnText is called for every newly received message.
	OnText func(StoredMessage)
}

func NewTextService(d Dispatcher, store MessageStore, log *slog.Logger) *TextService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &TextService{
		d:      d,
		store:  store,
		log:    log.With("service", "text"),
		OnText: func(StoredMessage) {},
	}
}

func (t *TextService) Store() MessageStore {
	return t.store
}

// SendText stores and sends a new message to dest, waiting for its
// acknowledgement. The message stays queued for redelivery if that fails.
func (t *TextService) SendText(ctx context.Context, dest state.Node, chatId uint64, text string, file *protocol.FileInfo) (protocol.Text, error) {
	return t.send(ctx, dest, protocol.Text{
		MsgId:     core.NewMessageId(),
		ChatId:    chatId,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		FileInfo:  file,
	})
}

// ForwardText sends a copy of a stored message to dest, keeping a reference to
// the original.
func (t *TextService) ForwardText(ctx context.Context, dest state.Node, chatId uint64, original protocol.Text) (protocol.Text, error) {
	return t.send(ctx, dest, protocol.Text{
		MsgId:         core.NewMessageId(),
		ChatId:        chatId,
		Text:          original.Text,
		Timestamp:     time.Now().UnixMilli(),
		OriginalMsgId: original.MsgId,
		FileInfo:      original.FileInfo,
	})
}

func (t *TextService) send(ctx context.Context, dest state.Node, msg protocol.Text) (protocol.Text, error) {
	t.store.Put(StoredMessage{Peer: dest.Id, Outgoing: true, Text: msg})
	return msg, t.deliver(ctx, dest, msg)
}

func (t *TextService) deliver(ctx context.Context, dest state.Node, msg protocol.Text) error {
	if _, err := t.d.Request(ctx, &msg, dest); err != nil {
		return err
	}
	t.store.MarkDelivered(dest.Id, msg.MsgId)
	return nil
}

// ConfirmRead marks a received message as read and tells its sender.
func (t *TextService) ConfirmRead(ctx context.Context, sender state.Node, msgId uint64) error {
	t.store.MarkRead(sender.Id, msgId, false)
	_, err := t.d.Request(ctx, &protocol.ReadConfirmation{MsgId: msgId}, sender)
	return err
}

func (t *TextService) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(ctx, t.d, t.log, t.handle)
	})
	g.Go(func() error {
		return t.redeliver(ctx)
	})
	return g.Wait()
}

func (t *TextService) handle(ctx context.Context, m core.AcceptedMessage) {
	switch p := m.Payload.(type) {
	case *protocol.Text:
		if p.Text == "" && p.FileInfo == nil {
			ack(t.d, t.log, m, protocol.BadRequest)
			return
		}
		stored := StoredMessage{Peer: m.Sender.Id, Text: *p}
		// duplicates are redeliveries whose ack was lost, so they are acked again
		if t.store.Put(stored) {
			t.log.Info("received message", "from", m.Sender, "chat", p.ChatId, "msg", p.MsgId)
			t.OnText(stored)
		}
		ack(t.d, t.log, m, protocol.NoError)
	case *protocol.ReadConfirmation:
		if !t.store.MarkRead(m.Sender.Id, p.MsgId, true) {
			ack(t.d, t.log, m, protocol.NotFound)
			return
		}
		ack(t.d, t.log, m, protocol.NoError)
	}
}

// redeliver retries unacknowledged messages whenever their recipient appears.
func (t *TextService) redeliver(ctx context.Context) error {
	sub := t.d.SubscribeNodes()
	defer sub.Close()
	var bg tasks
	defer bg.wait()

	seen := make(map[state.NodeId]struct{})
	for {
		select {
		case <-ctx.Done():
			return nil
		case nodes, ok := <-sub.C():
			if !ok {
				return nil
			}
			current := make(map[state.NodeId]struct{}, len(nodes))
			for _, node := range nodes {
				current[node.Id] = struct{}{}
				if _, ok := seen[node.Id]; ok {
					continue
				}
				pending := t.store.Undelivered(node.Id)
				if len(pending) == 0 {
					continue
				}
				bg.spawn(func() {
					for _, msg := range pending {
						if err := t.deliver(ctx, node, msg.Text); err != nil {
							t.log.Debug("redelivery failed", "to", node, "msg", msg.Text.MsgId, "error", err)
							return
						}
					}
					t.log.Info("redelivered messages", "to", node, "count", len(pending))
				})
			}
			seen = current
		}
	}
}
