package protocol

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/encodeous/lattice/state"
)

var ErrPacketSize = errors.New("packet size is invalid")

// ReadFrame reads one length-delimited frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var length uint32

	err := binary.Read(r, binary.BigEndian, &length)
	if err != nil {
		return nil, err
	}

	if length == 0 || length > uint32(state.MaxPacketSize) {
		return nil, ErrPacketSize
	}

	data := make([]byte, length)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFrame writes frame to w prefixed with its big-endian length.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) == 0 || len(frame) > state.MaxPacketSize {
		return ErrPacketSize
	}

	out := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(out, uint32(len(frame)))
	copy(out[4:], frame)

	_, err := w.Write(out)
	return err
}
