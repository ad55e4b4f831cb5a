// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"context"
	"strconv"

	"github.com/absmach/mtqueue/queue"
	"github.com/go-redis/redis/v8"
)

// DefaultKey is the Redis hash queue depths are published to.
const DefaultKey = "mt.queue"

// RedisSink publishes depths to a Redis hash mapping identity to depth.
type RedisSink struct {
	client *redis.Client
	key    string
}

var _ BatchSink = (*RedisSink)(nil)

// NewRedisSink creates a sink writing to the hash at key.
func NewRedisSink(client *redis.Client, key string) *RedisSink {
	if key == "" {
		key = DefaultKey
	}
	return &RedisSink{client: client, key: key}
}

// Reset deletes the hash.
func (s *RedisSink) Reset(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// Record sets the depth of one identity.
func (s *RedisSink) Record(ctx context.Context, id int64, depth int) error {
	return s.client.HSet(ctx, s.key, strconv.FormatInt(id, 10), depth).Err()
}

// Publish replaces the hash with depths in one MULTI/EXEC transaction.
func (s *RedisSink) Publish(ctx context.Context, depths []queue.Depth) error {
	fields := make([]interface{}, 0, 2*len(depths))
	for _, d := range depths {
		fields = append(fields, strconv.FormatInt(d.ID, 10), d.Depth)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields...)
		}
		return nil
	})
	return err
}
