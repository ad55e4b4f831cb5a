// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"io"
)

// DecodeHeader reads a frame header from r and returns the command code
// and the declared payload length.
func DecodeHeader(r io.Reader) (Command, uint32, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, err
	}

	return Command(binary.BigEndian.Uint32(hdr[0:4])), binary.BigEndian.Uint32(hdr[4:8]), nil
}

// DecodeBytes reads exactly n bytes from r.
func DecodeBytes(r io.Reader, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}
