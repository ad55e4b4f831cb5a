// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	submit := &Submit{
		ID:      1,
		Account: 7,
		Company: 3,
		SPID:    "100001",
		SPCode:  "10690001",
		Phone:   "13800000000",
		MsgFmt:  8,
		Length:  2,
		Content: []byte("hi"),
	}

	tests := []struct {
		name    string
		cmd     Command
		payload []byte
	}{
		{"request", CommandRequest, (&Request{ID: 42, Type: RequestPush, Addr: "10.0.0.1"}).Marshal()},
		{"response", CommandResponse, (&Response{ID: 42, Host: "tcp://127.0.0.1:5001"}).Marshal()},
		{"submit", CommandSubmit, submit.Marshal()},
		{"empty", CommandEmpty, nil},
		{"req", CommandReq, nil},
		{"bye", CommandBye, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Encode(tt.cmd, tt.payload)
			require.Len(t, raw, HeaderSize+len(tt.payload))

			f, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, f.Command)
			assert.Equal(t, len(tt.payload), len(f.Payload))

			assert.Equal(t, raw, Encode(f.Command, f.Payload))
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	unknown := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(unknown[0:4], 99)

	mismatch := Encode(CommandSubmit, []byte{1, 2, 3})
	binary.BigEndian.PutUint32(mismatch[4:8], 10)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty buffer", nil},
		{"shorter than header", []byte{0, 0, 0, 1}},
		{"unknown command", unknown},
		{"length mismatch", mismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestRequestMarshal(t *testing.T) {
	tests := []Request{
		{ID: 42, Type: RequestPush, Addr: "192.168.1.10"},
		{ID: 1, Type: RequestPull},
		{ID: -5, Type: RequestPush, Addr: "x"},
	}

	for _, want := range tests {
		got, err := UnmarshalRequest(want.Marshal())
		require.NoError(t, err)
		assert.Equal(t, want, *got)
	}
}

func TestResponseMarshal(t *testing.T) {
	want := Response{ID: 42, Host: "tcp://0.0.0.0:5024"}
	got, err := UnmarshalResponse(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestSubmitMarshal(t *testing.T) {
	want := Submit{
		ID:      9,
		Account: 7,
		Company: 2,
		SPID:    "900001",
		SPCode:  "106900010001",
		Phone:   "13800000000",
		MsgFmt:  15,
		Length:  5,
		Content: []byte("hello"),
	}

	raw := want.Marshal()
	got, err := UnmarshalSubmit(raw)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	// Content must not alias the input buffer.
	raw[len(raw)-1] = 'X'
	assert.Equal(t, []byte("hello"), got.Content)

	assert.Equal(t, raw[:len(raw)-1], got.Marshal()[:len(raw)-1])
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	raw := (&Request{ID: 3, Type: RequestPull}).Marshal()
	// field 15, varint 1
	raw = append(raw, 0x78, 0x01)

	got, err := UnmarshalRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, RequestPull, got.Type)
}

func TestUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"truncated varint", []byte{0x08, 0xff}},
		{"truncated bytes", []byte{0x1a, 0x05, 'a'}},
		{"wrong wire type", []byte{0x0a, 0x01, 'a'}},
		{"field zero", []byte{0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalRequest(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedFrame)

			_, err = UnmarshalSubmit(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestReadWriteFrame(t *testing.T) {
	var buf bytes.Buffer

	payload := (&Request{ID: 42, Type: RequestPush}).Marshal()
	require.NoError(t, WriteFrame(&buf, CommandRequest, payload))
	require.NoError(t, WriteFrame(&buf, CommandBye, nil))

	f, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, CommandRequest, f.Command)
	assert.Equal(t, payload, f.Payload)

	f, err = ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, CommandBye, f.Command)
	assert.Empty(t, f.Payload)

	_, err = ReadFrame(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameUnknownCommandKeepsStreamAligned(t *testing.T) {
	var buf bytes.Buffer

	bad := Encode(CommandBye, []byte{1, 2, 3})
	binary.BigEndian.PutUint32(bad[0:4], 77)
	buf.Write(bad)
	require.NoError(t, WriteFrame(&buf, CommandReq, nil))

	_, err := ReadFrame(&buf, 0)
	require.ErrorIs(t, err, ErrMalformedFrame)

	f, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, CommandReq, f.Command)
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, CommandSubmit, make([]byte, 100)))

	_, err := ReadFrame(&buf, 10)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
	assert.False(t, errors.Is(err, ErrMalformedFrame))
}

func TestReadFrameTruncated(t *testing.T) {
	raw := Encode(CommandSubmit, []byte("abcdef"))

	_, err := ReadFrame(bytes.NewReader(raw[:HeaderSize+2]), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "SUBMIT", CommandSubmit.String())
	assert.Equal(t, "UNKNOWN(42)", Command(42).String())
	assert.Equal(t, "PULL", RequestPull.String())
	assert.False(t, Command(0).Valid())
	assert.True(t, CommandBye.Valid())
}
