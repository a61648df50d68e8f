package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreeNodeText(t *testing.T) {
	n := newNetwork(t, "one", "two", "three")
	n.connect("one", "two")
	n.connect("two", "three")
	n.converge()

	one, three := n.get("one"), n.get("three")
	received := make(chan StoredMessage, 1)
	three.text.OnText = func(m StoredMessage) { received <- m }

	sent, err := one.text.SendText(context.Background(), three.node(), 5, "hello from one", nil)
	require.NoError(t, err)

	select {
	case m := <-received:
		assert.Equal(t, "hello from one", m.Text.Text)
		assert.Equal(t, one.id.Id, m.Peer)
		assert.False(t, m.Outgoing)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	chat := one.text.Store().Chat(5)
	require.Len(t, chat, 1)
	assert.True(t, chat[0].Delivered)
	assert.False(t, chat[0].Read)

	require.NoError(t, three.text.ConfirmRead(context.Background(), one.node(), sent.MsgId))
	assert.True(t, one.text.Store().Chat(5)[0].Read)
	assert.True(t, three.text.Store().Chat(5)[0].Read)
}

func TestReadConfirmationUnknownMessage(t *testing.T) {
	n := newNetwork(t, "one", "two")
	n.connect("one", "two")
	n.converge()

	err := n.get("two").text.ConfirmRead(context.Background(), n.get("one").node(), 12345)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestEmptyTextRejected(t *testing.T) {
	n := newNetwork(t, "one", "two")
	n.connect("one", "two")
	n.converge()

	_, err := n.get("one").text.SendText(context.Background(), n.get("two").node(), 1, "", nil)
	assert.True(t, errors.Is(err, core.ErrBadRequest))

	withFile, err := n.get("one").text.SendText(context.Background(), n.get("two").node(), 1, "", &protocol.FileInfo{Name: "a.txt", Size: 3})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", withFile.FileInfo.Name)
}

func TestTextRedelivery(t *testing.T) {
	n := newNetwork(t, "one", "two")
	one, two := n.get("one"), n.get("two")

	_, err := one.text.SendText(context.Background(), two.node(), 1, "queued", nil)
	require.True(t, errors.Is(err, core.ErrNodeNotAvailable))
	assert.Len(t, one.text.Store().Undelivered(two.id.Id), 1)

	n.connect("one", "two")
	assert.Eventually(t, func() bool {
		return len(one.text.Store().Undelivered(two.id.Id)) == 0
	}, 5*time.Second, 20*time.Millisecond)

	chat := two.text.Store().Chat(1)
	require.Len(t, chat, 1)
	assert.Equal(t, "queued", chat[0].Text.Text)
}

func TestForwardText(t *testing.T) {
	n := newNetwork(t, "one", "two", "three")
	n.connect("one", "two")
	n.connect("two", "three")
	n.converge()

	original, err := n.get("one").text.SendText(context.Background(), n.get("two").node(), 1, "pass it on", nil)
	require.NoError(t, err)
	fwd, err := n.get("two").text.ForwardText(context.Background(), n.get("three").node(), 2, original)
	require.NoError(t, err)
	assert.Equal(t, original.MsgId, fwd.OriginalMsgId)

	chat := n.get("three").text.Store().Chat(2)
	require.Len(t, chat, 1)
	assert.Equal(t, original.MsgId, chat[0].Text.OriginalMsgId)
	assert.Equal(t, "pass it on", chat[0].Text.Text)
}
