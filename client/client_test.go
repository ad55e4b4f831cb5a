// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/absmach/mtqueue/codec"
	"github.com/absmach/mtqueue/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValidate(t *testing.T) {
	assert.ErrorIs(t, (&Options{ID: 1}).Validate(), ErrNoServer)
	assert.ErrorIs(t, NewOptions("127.0.0.1:5024", 0).Validate(), ErrInvalidID)
	assert.ErrorIs(t, NewOptions("127.0.0.1:5024", -1).Validate(), ErrInvalidID)
	assert.NoError(t, NewOptions("127.0.0.1:5024", 1).Validate())
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
		wantErr  bool
	}{
		{"tcp://10.0.0.1:5025", "10.0.0.1:5025", false},
		{"tcp://0.0.0.0:5025", "192.168.1.9:5025", false},
		{"tcp://*:5026", "192.168.1.9:5026", false},
		{"127.0.0.1:6000", "127.0.0.1:6000", false},
		{"tcp://[::1]:5025", "[::1]:5025", false},
		{"tcp://[::]:5027", "192.168.1.9:5027", false},
		{"tcp://::1:5025", "", true},
		{"tcp://nohost", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got, err := resolveEndpoint(tt.endpoint, "192.168.1.9:5024")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeControl answers every request with the given reply, or stays silent
// when reply is nil.
func fakeControl(t *testing.T, reply func(req *codec.Request) *codec.Response) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				conn := transport.NewConn(c, 0)
				f, err := conn.ReadFrame(time.Second)
				if err != nil {
					return
				}
				req, err := codec.UnmarshalRequest(f.Payload)
				if err != nil {
					return
				}
				if resp := reply(req); resp != nil {
					_ = conn.WriteFrame(codec.CommandResponse, resp.Marshal(), time.Second)
				}
				time.Sleep(200 * time.Millisecond)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestRequest(t *testing.T) {
	got := make(chan *codec.Request, 1)
	addr := fakeControl(t, func(req *codec.Request) *codec.Response {
		got <- req
		return &codec.Response{ID: req.ID, Host: "tcp://0.0.0.0:7001"}
	})

	opts := NewOptions(addr, 42)
	opts.Addr = "10.1.1.1"

	endpoint, err := Request(context.Background(), opts, codec.RequestPull)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", endpoint)
	assert.Equal(t, &codec.Request{ID: 42, Type: codec.RequestPull, Addr: "10.1.1.1"}, <-got)
}

func TestRequestNoResponse(t *testing.T) {
	addr := fakeControl(t, func(*codec.Request) *codec.Response { return nil })

	opts := NewOptions(addr, 42)
	opts.RequestTimeout = 50 * time.Millisecond

	_, err := Request(context.Background(), opts, codec.RequestPush)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestRequestInvalidOptions(t *testing.T) {
	_, err := Request(context.Background(), NewOptions("127.0.0.1:1", 0), codec.RequestPush)
	assert.ErrorIs(t, err, ErrInvalidID)
}
