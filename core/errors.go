package core

import (
	"errors"

	"github.com/encodeous/lattice/protocol"
)

var (
	// ErrNodeNotAvailable is returned when no route to the destination is known.
	ErrNodeNotAvailable = errors.New("node not available")
	ErrInvalidIdentity  = errors.New("invalid identity")
	ErrBadSignature     = errors.New("bad signature")
	ErrCannotDecrypt    = errors.New("cannot decrypt")
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("not found")
	// ErrRejected is returned when the peer answered with an application error.
	ErrRejected = errors.New("request rejected")
	ErrTimeout  = errors.New("request timed out")
	// ErrInvalidResponse is returned for a response of the wrong shape.
	ErrInvalidResponse = errors.New("invalid response")
)

// CodeError maps a response error code onto the matching sentinel error.
func CodeError(code protocol.ErrorCode) error {
	switch code {
	case protocol.NoError:
		return nil
	case protocol.BadSignature:
		return ErrBadSignature
	case protocol.CannotDecrypt:
		return ErrCannotDecrypt
	case protocol.BadRequest:
		return ErrBadRequest
	case protocol.NotFound:
		return ErrNotFound
	case protocol.InvalidIdentity:
		return ErrInvalidIdentity
	}
	return ErrRejected
}

// ErrorCode is the inverse of CodeError for errors raised on the receive path.
func ErrorCode(err error) protocol.ErrorCode {
	switch {
	case err == nil:
		return protocol.NoError
	case errors.Is(err, ErrBadSignature):
		return protocol.BadSignature
	case errors.Is(err, ErrCannotDecrypt):
		return protocol.CannotDecrypt
	case errors.Is(err, ErrNotFound):
		return protocol.NotFound
	case errors.Is(err, ErrInvalidIdentity):
		return protocol.InvalidIdentity
	}
	return protocol.BadRequest
}
