package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/encodeous/lattice/perf"
	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
	"github.com/jellydator/ttlcache/v3"
)

var ErrClosed = errors.New("controller closed")

// AcceptedMessage is an authenticated, decrypted application payload.
type AcceptedMessage struct {
	Id      uint64
	Payload protocol.Payload
	Sender  state.Node
}

// Controller turns the Router's byte pipe into a signed, encrypted and
// correlated request/response channel.
type Controller struct {
	log      *slog.Logger
	router   *Router
	profile  state.ProfileProvider
	verifier NodeVerifier
	keys     *SessionKeys
	accepted *Broadcast[AcceptedMessage]
	nodes    *Broadcast[[]state.Node]
	// throttles error replies so two peers cannot bounce errors at each other
	replied *ttlcache.Cache[state.NodeId, struct{}]

	Timeout time.Duration
}

func NewController(router *Router, profile state.ProfileProvider, verifier NodeVerifier, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Controller{
		log:      log.With("module", "dispatch"),
		router:   router,
		profile:  profile,
		verifier: verifier,
		keys:     NewSessionKeys(profile, state.SessionKeyTTL),
		accepted: NewBroadcast[AcceptedMessage](state.AcceptedReplay, state.SubscriberBuffer),
		nodes:    NewBroadcast[[]state.Node](1, 8),
		replied: ttlcache.New[state.NodeId, struct{}](
			ttlcache.WithTTL[state.NodeId, struct{}](state.ErrorReplyBackoff),
			ttlcache.WithDisableTouchOnHit[state.NodeId, struct{}](),
		),
		Timeout: state.ResponseTimeout,
	}
	router.SetOnMessageReceived(c.handleMessage)
	router.SetOnNodesChanged(c.handleNodesChanged)
	return c
}

// Start schedules the periodic neighbour list refresh and the eviction of
// expired session keys and error reply marks.
func (c *Controller) Start(e *state.Env) {
	c.router.AskForNodes()
	e.RepeatTask(func(e *state.Env) error {
		c.router.AskForNodes()
		return nil
	}, state.AskNodesDelay)
	e.RepeatTask(func(e *state.Env) error {
		c.replied.DeleteExpired()
		c.keys.DeleteExpired()
		return nil
	}, state.ErrorReplyBackoff)
}

func (c *Controller) Close() {
	c.router.SetOnMessageReceived(func(ReceivedMessage) {})
	c.router.SetOnNodesChanged(func() {})
	c.accepted.Close()
	c.nodes.Close()
	c.replied.DeleteAll()
	c.keys.Clear()
}

func (c *Controller) Router() *Router {
	return c.router
}

func (c *Controller) Nodes() []state.Node {
	return c.router.Nodes()
}

// Subscribe returns a stream of every message accepted from now on.
func (c *Controller) Subscribe() *Subscription[AcceptedMessage] {
	return c.accepted.Subscribe(false)
}

// SubscribeNodes returns a stream of node list snapshots, starting with the latest.
func (c *Controller) SubscribeNodes() *Subscription[[]state.Node] {
	return c.nodes.Subscribe(true)
}

// Send encrypts and signs payload for dest and hands it to the router. The
// returned message id doubles as the request id of the payload.
func (c *Controller) Send(payload protocol.Payload, dest state.Node) (uint64, error) {
	key, err := c.keys.Get(dest)
	if err != nil {
		return 0, err
	}
	plain, err := protocol.MarshalPayload(payload)
	if err != nil {
		return 0, err
	}
	ct, err := state.Encrypt(key, plain)
	if err != nil {
		return 0, err
	}
	sig, err := state.Sign(c.profile.Identity().SigningKey, ct)
	if err != nil {
		return 0, err
	}
	return c.router.SendMessage(ct, sig, dest)
}

// Respond answers request requestId from dest.
func (c *Controller) Respond(requestId uint64, code protocol.ErrorCode, body protocol.ResponseBody, dest state.Node) error {
	_, err := c.Send(&protocol.Response{
		RequestId: requestId,
		Error:     code,
		Body:      body,
	}, dest)
	return err
}

// ReceiveResponse waits for the response to requestId. Responses accepted
// shortly before the call are still matched.
func (c *Controller) ReceiveResponse(ctx context.Context, requestId uint64) (*protocol.Response, error) {
	sub := c.accepted.Subscribe(true)
	defer sub.Close()
	return c.await(ctx, sub, requestId, nil)
}

// Request sends payload to dest and waits for its response.
func (c *Controller) Request(ctx context.Context, payload protocol.Payload, dest state.Node) (*protocol.Response, error) {
	sub := c.accepted.Subscribe(false)
	defer sub.Close()

	start := time.Now()
	id, err := c.Send(payload, dest)
	if err != nil {
		return nil, err
	}
	resp, err := c.await(ctx, sub, id, &dest.Id)
	if err == nil {
		perf.RequestLatency.Add(float64(time.Since(start).Microseconds()))
	}
	return resp, err
}

func (c *Controller) await(ctx context.Context, sub *Subscription[AcceptedMessage], requestId uint64, from *state.NodeId) (*protocol.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: no response to %d", ErrTimeout, requestId)
			}
			return nil, ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil, ErrClosed
			}
			resp, isResp := msg.Payload.(*protocol.Response)
			if !isResp || resp.RequestId != requestId {
				continue
			}
			if from != nil && msg.Sender.Id != *from {
				c.log.Warn("ignored response from unexpected node", "request", requestId, "from", msg.Sender)
				continue
			}
			if err := CodeError(resp.Error); err != nil {
				return resp, fmt.Errorf("%w: %s answered %s", err, msg.Sender, resp.Error)
			}
			return resp, nil
		}
	}
}

// ExpectBody extracts a response body of the expected type.
func ExpectBody[T protocol.ResponseBody](resp *protocol.Response) (T, error) {
	body, ok := resp.Body.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: expected %T, got %T", ErrInvalidResponse, zero, resp.Body)
	}
	return body, nil
}

func (c *Controller) handleNodesChanged() {
	c.keys.Clear()
	nodes := c.router.Nodes()
	c.log.Debug("nodes changed", "count", len(nodes))
	c.nodes.Publish(nodes)
}

func (c *Controller) handleMessage(m ReceivedMessage) {
	payload, err := c.open(m)
	if err != nil {
		perf.RejectedPerSecond.Add(1)
		c.log.Warn("rejected message", "id", m.Id, "from", m.Sender, "error", err)
		c.replyError(m, err)
		return
	}
	c.accepted.Publish(AcceptedMessage{
		Id:      m.Id,
		Payload: payload,
		Sender:  m.Sender,
	})
}

func (c *Controller) open(m ReceivedMessage) (protocol.Payload, error) {
	if !c.verifier.CheckNode(m.Sender) {
		return nil, ErrInvalidIdentity
	}
	if err := state.UsernameValidator(m.Sender.Username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := state.Verify(m.Sender.SigningKey, m.Payload, m.Signature); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	key, err := c.keys.Get(m.Sender)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotDecrypt, err)
	}
	plain, err := state.Decrypt(key, m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotDecrypt, err)
	}
	payload, err := protocol.UnmarshalPayload(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return payload, nil
}

func (c *Controller) replyError(m ReceivedMessage, cause error) {
	if _, found := c.replied.GetOrSet(m.Sender.Id, struct{}{}); found {
		return
	}
	err := c.Respond(m.Id, ErrorCode(cause), nil, m.Sender)
	if err != nil {
		c.log.Debug("failed to send error reply", "id", m.Id, "to", m.Sender, "error", err)
	}
}
