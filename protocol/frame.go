package protocol

import (
	"fmt"

	"github.com/encodeous/lattice/state"
	"google.golang.org/protobuf/encoding/protowire"
)

// Frame is a message exchanged between two direct neighbours. It is one of
// *HelloRequest, *HelloResponse, *AskNodesRequest, *AskNodesResponse or *Routed.
type Frame interface {
	frameField() protowire.Number
	encode(e *encoder) error
}

type HelloRequest struct {
	Node state.Node
}

type HelloResponse struct {
	Node state.Node
}

type AskNodesRequest struct{}

type NodeEntry struct {
	Node state.Node
	Hops uint32
}

type AskNodesResponse struct {
	Entries []NodeEntry
}

// Routed carries an opaque signed payload across the mesh.
type Routed struct {
	Id        uint64
	Src       state.NodeId
	Dest      state.NodeId
	Payload   []byte
	Signature []byte
	Ttl       uint32
}

const (
	fieldHelloRequest protowire.Number = iota + 1
	fieldHelloResponse
	fieldAskNodesRequest
	fieldAskNodesResponse
	fieldRouted
)

func (*HelloRequest) frameField() protowire.Number     { return fieldHelloRequest }
func (*HelloResponse) frameField() protowire.Number    { return fieldHelloResponse }
func (*AskNodesRequest) frameField() protowire.Number  { return fieldAskNodesRequest }
func (*AskNodesResponse) frameField() protowire.Number { return fieldAskNodesResponse }
func (*Routed) frameField() protowire.Number           { return fieldRouted }

func (m *HelloRequest) encode(e *encoder) error {
	return e.message(1, func(e *encoder) error { return encodeNode(e, m.Node) })
}

func (m *HelloResponse) encode(e *encoder) error {
	return e.message(1, func(e *encoder) error { return encodeNode(e, m.Node) })
}

func (m *AskNodesRequest) encode(e *encoder) error {
	return nil
}

func (m *AskNodesResponse) encode(e *encoder) error {
	for _, entry := range m.Entries {
		err := e.message(1, func(e *encoder) error {
			err := e.message(1, func(e *encoder) error { return encodeNode(e, entry.Node) })
			if err != nil {
				return err
			}
			e.uint(2, uint64(entry.Hops))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Routed) encode(e *encoder) error {
	e.uint(1, m.Id)
	e.int(2, int64(m.Src))
	e.int(3, int64(m.Dest))
	e.bytes(4, m.Payload)
	e.bytes(5, m.Signature)
	e.uint(6, uint64(m.Ttl))
	return nil
}

func encodeNode(e *encoder, n state.Node) error {
	signing, err := state.MarshalSigningKey(n.SigningKey)
	if err != nil {
		return fmt.Errorf("encode signing key of %s: %w", n, err)
	}
	session, err := state.MarshalSessionKey(n.SessionKey)
	if err != nil {
		return fmt.Errorf("encode session key of %s: %w", n, err)
	}
	e.int(1, int64(n.Id))
	e.string(2, n.Username)
	e.bytes(3, signing)
	e.bytes(4, session)
	return nil
}

func decodeNode(b []byte) (state.Node, error) {
	var (
		n                state.Node
		signing, session []byte
	)
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var v uint64
			v, err = f.uint()
			n.Id = state.NodeId(v)
		case 2:
			var v []byte
			v, err = f.bytes()
			n.Username = string(v)
		case 3:
			signing, err = f.bytes()
		case 4:
			session, err = f.bytes()
		}
		return err
	})
	if err != nil {
		return n, err
	}
	if n.SigningKey, err = state.ParseSigningKey(signing); err != nil {
		return n, fmt.Errorf("%w: node %s signing key: %v", ErrMalformed, n.Id, err)
	}
	if n.SessionKey, err = state.ParseSessionKey(session); err != nil {
		return n, fmt.Errorf("%w: node %s session key: %v", ErrMalformed, n.Id, err)
	}
	return n, nil
}

func decodeNodeField(b []byte) (state.Node, error) {
	var (
		n     state.Node
		found bool
	)
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		raw, err := f.bytes()
		if err != nil {
			return err
		}
		n, err = decodeNode(raw)
		found = true
		return err
	})
	if err == nil && !found {
		err = fmt.Errorf("%w: missing node", ErrMalformed)
	}
	return n, err
}

func decodeEntries(b []byte) (*AskNodesResponse, error) {
	resp := &AskNodesResponse{}
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		raw, err := f.bytes()
		if err != nil {
			return err
		}
		var (
			entry NodeEntry
			found bool
		)
		err = walk(raw, func(f field) error {
			var err error
			switch f.num {
			case 1:
				var v []byte
				if v, err = f.bytes(); err == nil {
					entry.Node, err = decodeNode(v)
					found = true
				}
			case 2:
				entry.Hops, err = f.uint32()
			}
			return err
		})
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: node entry without node", ErrMalformed)
		}
		resp.Entries = append(resp.Entries, entry)
		return nil
	})
	return resp, err
}

func decodeRouted(b []byte) (*Routed, error) {
	m := &Routed{}
	err := walk(b, func(f field) error {
		var (
			v   uint64
			err error
		)
		switch f.num {
		case 1:
			m.Id, err = f.uint()
		case 2:
			v, err = f.uint()
			m.Src = state.NodeId(v)
		case 3:
			v, err = f.uint()
			m.Dest = state.NodeId(v)
		case 4:
			m.Payload, err = f.bytes()
		case 5:
			m.Signature, err = f.bytes()
		case 6:
			m.Ttl, err = f.uint32()
		}
		return err
	})
	return m, err
}

func MarshalFrame(f Frame) ([]byte, error) {
	e := encoder{}
	if err := e.message(f.frameField(), f.encode); err != nil {
		return nil, err
	}
	return e.b, nil
}

func UnmarshalFrame(b []byte) (Frame, error) {
	return oneof(b, func(num protowire.Number, raw []byte) (Frame, error) {
		switch num {
		case fieldHelloRequest:
			n, err := decodeNodeField(raw)
			return &HelloRequest{Node: n}, err
		case fieldHelloResponse:
			n, err := decodeNodeField(raw)
			return &HelloResponse{Node: n}, err
		case fieldAskNodesRequest:
			return &AskNodesRequest{}, nil
		case fieldAskNodesResponse:
			return decodeEntries(raw)
		case fieldRouted:
			return decodeRouted(raw)
		}
		return nil, fmt.Errorf("%w: unknown frame type %d", ErrMalformed, num)
	})
}
