// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/mtqueue/internal/bufpool"
)

// HeaderSize is the size of the fixed frame header: a big-endian command
// code followed by a big-endian payload length.
const HeaderSize = 8

// DefaultMaxPayload bounds the payload a stream reader accepts.
const DefaultMaxPayload = 64 * 1024

var (
	// ErrMalformedFrame is returned for frames that are too short, carry an
	// unknown command, or whose payload cannot be parsed.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrFrameTooLarge is returned by ReadFrame when the declared payload
	// length exceeds the reader's limit. The stream cannot be resynchronized.
	ErrFrameTooLarge = errors.New("frame exceeds maximum payload size")
)

// Command identifies the kind of record carried by a frame.
type Command uint32

const (
	CommandRequest Command = iota + 1
	CommandResponse
	CommandSubmit
	CommandEmpty
	CommandReq
	CommandBye
)

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return c >= CommandRequest && c <= CommandBye
}

func (c Command) String() string {
	switch c {
	case CommandRequest:
		return "REQUEST"
	case CommandResponse:
		return "RESPONSE"
	case CommandSubmit:
		return "SUBMIT"
	case CommandEmpty:
		return "EMPTY"
	case CommandReq:
		return "REQ"
	case CommandBye:
		return "BYE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(c))
	}
}

// Frame is one header-plus-payload unit.
type Frame struct {
	Command Command
	Payload []byte
}

// Encode returns the wire representation of a frame.
func Encode(cmd Command, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, cmd, len(payload))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decode parses a complete frame held in b.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes is shorter than header", ErrMalformedFrame, len(b))
	}

	cmd := Command(binary.BigEndian.Uint32(b[0:4]))
	if !cmd.Valid() {
		return Frame{}, fmt.Errorf("%w: unknown command %d", ErrMalformedFrame, uint32(cmd))
	}

	size := binary.BigEndian.Uint32(b[4:8])
	if uint64(size) != uint64(len(b)-HeaderSize) {
		return Frame{}, fmt.Errorf("%w: declared payload %d, have %d", ErrMalformedFrame, size, len(b)-HeaderSize)
	}

	f := Frame{Command: cmd}
	if size > 0 {
		f.Payload = b[HeaderSize:]
	}
	return f, nil
}

// ReadFrame reads one frame from a stream. A frame with an unknown command
// is consumed in full and reported as ErrMalformedFrame so the caller can
// skip it and keep reading. Any other error leaves the stream unusable.
func ReadFrame(r io.Reader, maxPayload int) (Frame, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}

	cmd, size, err := DecodeHeader(r)
	if err != nil {
		return Frame{}, err
	}
	if uint64(size) > uint64(maxPayload) {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, maxPayload)
	}

	payload, err := DecodeBytes(r, size)
	if err != nil {
		return Frame{}, err
	}

	if !cmd.Valid() {
		return Frame{}, fmt.Errorf("%w: unknown command %d", ErrMalformedFrame, uint32(cmd))
	}

	return Frame{Command: cmd, Payload: payload}, nil
}

// WriteFrame writes one frame to w in a single Write call.
func WriteFrame(w io.Writer, cmd Command, payload []byte) error {
	buf := bufpool.Get(HeaderSize + len(payload))
	defer bufpool.Put(buf)

	putHeader(buf, cmd, len(payload))
	copy(buf[HeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}

func putHeader(b []byte, cmd Command, size int) {
	binary.BigEndian.PutUint32(b[0:4], uint32(cmd))
	binary.BigEndian.PutUint32(b[4:8], uint32(size))
}
