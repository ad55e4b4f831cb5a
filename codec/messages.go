// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// RequestType selects the data-plane role a client asks for.
type RequestType int32

const (
	RequestPush RequestType = 1
	RequestPull RequestType = 2
)

func (t RequestType) String() string {
	switch t {
	case RequestPush:
		return "PUSH"
	case RequestPull:
		return "PULL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Request is the control-plane request a client sends to obtain a
// dedicated data endpoint.
type Request struct {
	ID   int64
	Type RequestType
	Addr string
}

// Response carries the endpoint of the worker spawned for a Request.
type Response struct {
	ID   int64
	Host string
}

// Submit carries one MT message on the data plane.
type Submit struct {
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

// Marshal encodes the request payload.
func (r *Request) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(r.ID))
	b = appendVarint(b, 2, uint64(int64(r.Type)))
	b = appendString(b, 3, r.Addr)
	return b
}

// UnmarshalRequest decodes a Request payload.
func UnmarshalRequest(b []byte) (*Request, error) {
	r := &Request{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeVarint(typ, b)
			r.ID = int64(v)
			return n
		case 2:
			v, n := consumeVarint(typ, b)
			r.Type = RequestType(int32(v))
			return n
		case 3:
			v, n := consumeBytes(typ, b)
			r.Addr = string(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return r, nil
}

// Marshal encodes the response payload.
func (r *Response) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(r.ID))
	b = appendString(b, 2, r.Host)
	return b
}

// UnmarshalResponse decodes a Response payload.
func UnmarshalResponse(b []byte) (*Response, error) {
	r := &Response{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := consumeVarint(typ, b)
			r.ID = int64(v)
			return n
		case 2:
			v, n := consumeBytes(typ, b)
			r.Host = string(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	if err != nil {
		return nil, fmt.Errorf("response: %w", err)
	}
	return r, nil
}

// Marshal encodes the submit payload.
func (s *Submit) Marshal() []byte {
	b := make([]byte, 0, 64+len(s.Content))
	b = appendVarint(b, 1, uint64(s.ID))
	b = appendVarint(b, 2, uint64(s.Account))
	b = appendVarint(b, 3, uint64(s.Company))
	b = appendString(b, 4, s.SPID)
	b = appendString(b, 5, s.SPCode)
	b = appendString(b, 6, s.Phone)
	b = appendVarint(b, 7, uint64(int64(s.MsgFmt)))
	b = appendVarint(b, 8, uint64(int64(s.Length)))
	if len(s.Content) > 0 {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Content)
	}
	return b
}

// UnmarshalSubmit decodes a Submit payload. Content is copied out of b.
func UnmarshalSubmit(b []byte) (*Submit, error) {
	s := &Submit{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1, 2, 3, 7, 8:
			v, n := consumeVarint(typ, b)
			switch num {
			case 1:
				s.ID = int64(v)
			case 2:
				s.Account = int64(v)
			case 3:
				s.Company = int64(v)
			case 7:
				s.MsgFmt = int32(v)
			case 8:
				s.Length = int32(v)
			}
			return n
		case 4, 5, 6:
			v, n := consumeBytes(typ, b)
			switch num {
			case 4:
				s.SPID = string(v)
			case 5:
				s.SPCode = string(v)
			case 6:
				s.Phone = string(v)
			}
			return n
		case 9:
			v, n := consumeBytes(typ, b)
			if n >= 0 {
				s.Content = append([]byte(nil), v...)
			}
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	return s, nil
}

// consumeFields walks the fields of an encoded record. fn consumes the
// value of one field and returns the number of bytes read, or a negative
// protowire error code.
func consumeFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int) {
	if typ != protowire.VarintType {
		return 0, errCodeFieldType
	}
	return protowire.ConsumeVarint(b)
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int) {
	if typ != protowire.BytesType {
		return nil, errCodeFieldType
	}
	return protowire.ConsumeBytes(b)
}

// errCodeFieldType is outside protowire's error codes, so ParseError
// reports it as a generic parse error.
const errCodeFieldType = -100

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
