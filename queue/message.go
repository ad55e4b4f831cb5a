// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue

// Field bounds of a queued message.
const (
	MaxSPIDLen    = 6
	MaxSPCodeLen  = 20
	MaxPhoneLen   = 11
	MaxContentLen = 256
)

// Message is an outbound MT message waiting for pickup.
type Message struct {
	ID      int64
	Account int64
	Company int64
	SPID    string
	SPCode  string
	Phone   string
	MsgFmt  int32
	Length  int32
	Content []byte
}

// Bound truncates text fields and content to their limits and clamps
// Length so it never points past the stored content.
func (m *Message) Bound() *Message {
	m.SPID = truncate(m.SPID, MaxSPIDLen)
	m.SPCode = truncate(m.SPCode, MaxSPCodeLen)
	m.Phone = truncate(m.Phone, MaxPhoneLen)
	if len(m.Content) > MaxContentLen {
		m.Content = m.Content[:MaxContentLen]
	}
	if m.Length < 0 || int(m.Length) > len(m.Content) {
		m.Length = int32(len(m.Content))
	}
	return m
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
