package protocol

import (
	"fmt"

	"github.com/encodeous/lattice/state"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrorCode is carried by every Response.
type ErrorCode uint32

const (
	NoError ErrorCode = iota
	BadSignature
	CannotDecrypt
	BadRequest
	NotFound
	InvalidIdentity
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "NO_ERROR"
	case BadSignature:
		return "BAD_SIGNATURE"
	case CannotDecrypt:
		return "CANNOT_DECRYPT"
	case BadRequest:
		return "BAD_REQUEST"
	case NotFound:
		return "NOT_FOUND"
	case InvalidIdentity:
		return "INVALID_IDENTITY"
	}
	return fmt.Sprintf("ERROR_%d", uint32(c))
}

// Payload is an application message carried encrypted inside Routed.Payload.
// It is one of *Response, *PhotoRequest, *Text, *ReadConfirmation,
// *ContactInvitation, *ContactInvitationAnswer, *ChatInvitation,
// *ChatInfoRequest or *FileDownloadRequest.
type Payload interface {
	payloadField() protowire.Number
	encode(e *encoder) error
}

// ResponseBody is one of *PhotoResponse, *ChatInfoResponse or *FileChunkResponse.
type ResponseBody interface {
	responseField() protowire.Number
	encode(e *encoder) error
}

type Response struct {
	RequestId uint64
	Error     ErrorCode
	Body      ResponseBody // may be nil
}

type PhotoRequest struct{}

type FileInfo struct {
	Name string
	Size uint64
	Mime string
}

type Text struct {
	MsgId         uint64
	ChatId        uint64
	Text          string
	Timestamp     int64 // unix milliseconds
	OriginalMsgId uint64
	FileInfo      *FileInfo
}

type ReadConfirmation struct {
	MsgId uint64
}

type ContactInvitation struct{}

type ContactInvitationAnswer struct {
	Accepted bool
}

type ChatInvitation struct {
	ChatId uint64
}

type ChatInfoRequest struct {
	ChatId uint64
}

type FileDownloadRequest struct {
	MsgId     uint64
	ChunkSize uint32
	Offset    uint64
}

type PhotoResponse struct {
	Photo []byte
}

type ChatInfoResponse struct {
	ChatId  uint64
	Name    string
	Members []state.NodeId
}

type FileChunkResponse struct {
	Offset    uint64
	Data      []byte
	TotalSize uint64
	Last      bool
}

const (
	fieldResponse protowire.Number = iota + 1
	fieldPhotoRequest
	fieldText
	fieldReadConfirmation
	fieldContactInvitation
	fieldContactInvitationAnswer
	fieldChatInvitation
	fieldChatInfoRequest
	fieldFileDownloadRequest
)

const (
	fieldPhotoResponse protowire.Number = iota + 10
	fieldChatInfoResponse
	fieldFileChunkResponse
)

func (*Response) payloadField() protowire.Number                { return fieldResponse }
func (*PhotoRequest) payloadField() protowire.Number            { return fieldPhotoRequest }
func (*Text) payloadField() protowire.Number                    { return fieldText }
func (*ReadConfirmation) payloadField() protowire.Number        { return fieldReadConfirmation }
func (*ContactInvitation) payloadField() protowire.Number       { return fieldContactInvitation }
func (*ContactInvitationAnswer) payloadField() protowire.Number { return fieldContactInvitationAnswer }
func (*ChatInvitation) payloadField() protowire.Number          { return fieldChatInvitation }
func (*ChatInfoRequest) payloadField() protowire.Number         { return fieldChatInfoRequest }
func (*FileDownloadRequest) payloadField() protowire.Number     { return fieldFileDownloadRequest }

func (*PhotoResponse) responseField() protowire.Number     { return fieldPhotoResponse }
func (*ChatInfoResponse) responseField() protowire.Number  { return fieldChatInfoResponse }
func (*FileChunkResponse) responseField() protowire.Number { return fieldFileChunkResponse }

func (m *Response) encode(e *encoder) error {
	e.uint(1, m.RequestId)
	e.uint(2, uint64(m.Error))
	if m.Body != nil {
		return e.message(m.Body.responseField(), m.Body.encode)
	}
	return nil
}

func (m *PhotoRequest) encode(e *encoder) error      { return nil }
func (m *ContactInvitation) encode(e *encoder) error { return nil }

func (m *Text) encode(e *encoder) error {
	e.uint(1, m.MsgId)
	e.uint(2, m.ChatId)
	e.string(3, m.Text)
	e.int(4, m.Timestamp)
	e.uint(5, m.OriginalMsgId)
	if m.FileInfo != nil {
		return e.message(6, func(e *encoder) error {
			e.string(1, m.FileInfo.Name)
			e.uint(2, m.FileInfo.Size)
			e.string(3, m.FileInfo.Mime)
			return nil
		})
	}
	return nil
}

func (m *ReadConfirmation) encode(e *encoder) error {
	e.uint(1, m.MsgId)
	return nil
}

func (m *ContactInvitationAnswer) encode(e *encoder) error {
	e.bool(1, m.Accepted)
	return nil
}

func (m *ChatInvitation) encode(e *encoder) error {
	e.uint(1, m.ChatId)
	return nil
}

func (m *ChatInfoRequest) encode(e *encoder) error {
	e.uint(1, m.ChatId)
	return nil
}

func (m *FileDownloadRequest) encode(e *encoder) error {
	e.uint(1, m.MsgId)
	e.uint(2, uint64(m.ChunkSize))
	e.uint(3, m.Offset)
	return nil
}

func (m *PhotoResponse) encode(e *encoder) error {
	e.bytes(1, m.Photo)
	return nil
}

func (m *ChatInfoResponse) encode(e *encoder) error {
	e.uint(1, m.ChatId)
	e.string(2, m.Name)
	for _, member := range m.Members {
		e.b = protowire.AppendTag(e.b, 3, protowire.VarintType)
		e.b = protowire.AppendVarint(e.b, uint64(member))
	}
	return nil
}

func (m *FileChunkResponse) encode(e *encoder) error {
	e.uint(1, m.Offset)
	e.bytes(2, m.Data)
	e.uint(3, m.TotalSize)
	e.bool(4, m.Last)
	return nil
}

// scalars decodes a flat message of varint and bytes fields into dst.
func scalars(b []byte, dst map[protowire.Number]any) error {
	return walk(b, func(f field) error {
		target, ok := dst[f.num]
		if !ok {
			return nil
		}
		switch t := target.(type) {
		case *uint64:
			v, err := f.uint()
			*t = v
			return err
		case *uint32:
			v, err := f.uint32()
			*t = v
			return err
		case *int64:
			v, err := f.uint()
			*t = int64(v)
			return err
		case *bool:
			v, err := f.uint()
			*t = v != 0
			return err
		case *string:
			v, err := f.bytes()
			*t = string(v)
			return err
		case *[]byte:
			v, err := f.bytes()
			*t = v
			return err
		}
		return fmt.Errorf("unsupported target %T", target)
	})
}

func decodeResponse(b []byte) (*Response, error) {
	m := &Response{}
	var code uint64
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			v, err := f.uint()
			m.RequestId = v
			return err
		case 2:
			v, err := f.uint()
			code = v
			return err
		case fieldPhotoResponse, fieldChatInfoResponse, fieldFileChunkResponse:
			if m.Body != nil {
				return fmt.Errorf("%w: more than one response body", ErrMalformed)
			}
			raw, err := f.bytes()
			if err != nil {
				return err
			}
			m.Body, err = decodeResponseBody(f.num, raw)
			return err
		}
		return nil
	})
	m.Error = ErrorCode(code)
	return m, err
}

func decodeResponseBody(num protowire.Number, b []byte) (ResponseBody, error) {
	switch num {
	case fieldPhotoResponse:
		m := &PhotoResponse{}
		return m, scalars(b, map[protowire.Number]any{1: &m.Photo})
	case fieldChatInfoResponse:
		m := &ChatInfoResponse{}
		err := walk(b, func(f field) error {
			switch f.num {
			case 1:
				v, err := f.uint()
				m.ChatId = v
				return err
			case 2:
				v, err := f.bytes()
				m.Name = string(v)
				return err
			case 3:
				v, err := f.uint()
				m.Members = append(m.Members, state.NodeId(v))
				return err
			}
			return nil
		})
		return m, err
	case fieldFileChunkResponse:
		m := &FileChunkResponse{}
		return m, scalars(b, map[protowire.Number]any{
			1: &m.Offset,
			2: &m.Data,
			3: &m.TotalSize,
			4: &m.Last,
		})
	}
	return nil, fmt.Errorf("%w: unknown response body %d", ErrMalformed, num)
}

func decodeText(b []byte) (*Text, error) {
	m := &Text{}
	err := walk(b, func(f field) error {
		if f.num != 6 {
			return nil
		}
		raw, err := f.bytes()
		if err != nil {
			return err
		}
		m.FileInfo = &FileInfo{}
		return scalars(raw, map[protowire.Number]any{
			1: &m.FileInfo.Name,
			2: &m.FileInfo.Size,
			3: &m.FileInfo.Mime,
		})
	})
	if err != nil {
		return nil, err
	}
	return m, scalars(b, map[protowire.Number]any{
		1: &m.MsgId,
		2: &m.ChatId,
		3: &m.Text,
		4: &m.Timestamp,
		5: &m.OriginalMsgId,
	})
}

func MarshalPayload(p Payload) ([]byte, error) {
	e := encoder{}
	if err := e.message(p.payloadField(), p.encode); err != nil {
		return nil, err
	}
	return e.b, nil
}

func UnmarshalPayload(b []byte) (Payload, error) {
	return oneof(b, func(num protowire.Number, raw []byte) (Payload, error) {
		switch num {
		case fieldResponse:
			return decodeResponse(raw)
		case fieldPhotoRequest:
			return &PhotoRequest{}, nil
		case fieldText:
			return decodeText(raw)
		case fieldReadConfirmation:
			m := &ReadConfirmation{}
			return m, scalars(raw, map[protowire.Number]any{1: &m.MsgId})
		case fieldContactInvitation:
			return &ContactInvitation{}, nil
		case fieldContactInvitationAnswer:
			m := &ContactInvitationAnswer{}
			return m, scalars(raw, map[protowire.Number]any{1: &m.Accepted})
		case fieldChatInvitation:
			m := &ChatInvitation{}
			return m, scalars(raw, map[protowire.Number]any{1: &m.ChatId})
		case fieldChatInfoRequest:
			m := &ChatInfoRequest{}
			return m, scalars(raw, map[protowire.Number]any{1: &m.ChatId})
		case fieldFileDownloadRequest:
			m := &FileDownloadRequest{}
			return m, scalars(raw, map[protowire.Number]any{
				1: &m.MsgId,
				2: &m.ChunkSize,
				3: &m.Offset,
			})
		}
		return nil, fmt.Errorf("%w: unknown payload type %d", ErrMalformed, num)
	})
}
