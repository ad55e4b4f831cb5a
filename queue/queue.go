// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrQueueFull is returned by Push when the queue is at capacity and
	// the drop policy rejects new messages.
	ErrQueueFull = errors.New("queue is full")

	// ErrNilMessage is returned by Push for a nil message.
	ErrNilMessage = errors.New("nil message")
)

// DropPolicy decides what a full queue does with an incoming message.
type DropPolicy string

const (
	// DropNewest rejects the incoming message.
	DropNewest DropPolicy = "newest"
	// DropOldest evicts the head of the queue to make room.
	DropOldest DropPolicy = "oldest"
)

// Options configures queue capacity. MaxDepth 0 means unbounded.
type Options struct {
	MaxDepth   int
	DropPolicy DropPolicy

	// OnDrop is called with the queue lock held for every message the
	// capacity policy discards. evicted is true when a queued message was
	// displaced to make room. It must not call back into the queue.
	OnDrop func(msg *Message, evicted bool)
}

// Node is one link of the queue.
type Node struct {
	msg  *Message
	next *Node
}

// Message returns the message held by the node.
func (n *Node) Message() *Message {
	return n.msg
}

// Queue is a FIFO of pending messages for one client identity.
type Queue struct {
	id      int64
	opts    Options
	dropped atomic.Uint64

	mu   sync.Mutex
	len  int
	head *Node
	tail *Node
}

// New creates an empty queue for the given identity.
func New(id int64, opts Options) *Queue {
	if opts.DropPolicy == "" {
		opts.DropPolicy = DropNewest
	}
	return &Queue{id: id, opts: opts}
}

// ID returns the identity the queue belongs to.
func (q *Queue) ID() int64 {
	return q.id
}

// Push appends msg at the tail and returns its node.
func (q *Queue) Push(msg *Message) (*Node, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	node := &Node{msg: msg}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.opts.MaxDepth > 0 && q.len >= q.opts.MaxDepth {
		q.dropped.Add(1)
		if q.opts.DropPolicy != DropOldest {
			q.notifyDrop(msg, false)
			return nil, ErrQueueFull
		}
		q.notifyDrop(q.unlinkHead().msg, true)
	}

	if q.len > 0 {
		q.tail.next = node
		q.tail = node
	} else {
		q.head = node
		q.tail = node
	}
	q.len++

	return node, nil
}

// Pop removes and returns the head message. It reports false if the queue
// was empty and never blocks.
func (q *Queue) Pop() (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.len == 0 {
		return nil, false
	}

	return q.unlinkHead().msg, true
}

// Requeue puts msg back at the head, ahead of everything queued. It is used
// when a popped message could not be handed over and ignores MaxDepth.
func (q *Queue) Requeue(msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	node := &Node{msg: msg, next: q.head}
	q.head = node
	if q.len == 0 {
		q.tail = node
	}
	q.len++
	return nil
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}

// Dropped returns how many messages the capacity policy discarded.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue) notifyDrop(msg *Message, evicted bool) {
	if q.opts.OnDrop != nil {
		q.opts.OnDrop(msg, evicted)
	}
}

// unlinkHead must be called with q.mu held and q.len > 0.
func (q *Queue) unlinkHead() *Node {
	node := q.head
	q.len--
	if q.len == 0 {
		q.head = nil
		q.tail = nil
	} else {
		q.head = node.next
	}
	node.next = nil
	return node
}
