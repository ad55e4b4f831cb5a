// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// CachedStore keeps accounts as Redis hashes named <prefix><id> in front of
// another Store. Redis failures fall through to the backing store.
type CachedStore struct {
	client *redis.Client
	store  Store
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps store with a Redis hash cache. ttl 0 keeps entries
// until they are invalidated.
func NewCachedStore(client *redis.Client, store Store, prefix string, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		client: client,
		store:  store,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedStore) key(id int64) string {
	return c.prefix + strconv.FormatInt(id, 10)
}

// Account returns the cached account, loading it from the backing store
// on a miss.
func (c *CachedStore) Account(ctx context.Context, id int64) (Account, error) {
	key := c.key(id)

	fields, err := c.client.HGetAll(ctx, key).Result()
	switch {
	case err != nil:
		c.logger.Warn("account cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	case len(fields) > 0:
		acc, err := decodeAccount(fields)
		if err == nil {
			return acc, nil
		}
		c.logger.Warn("discarding corrupt account cache entry", slog.String("key", key), slog.String("error", err.Error()))
	}

	acc, err := c.store.Account(ctx, id)
	if err != nil {
		return Account{}, err
	}

	_, err = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeAccount(acc))
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("account cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return acc, nil
}

// Channels reads through to the backing store.
func (c *CachedStore) Channels(ctx context.Context, accountID int64) ([]Channel, error) {
	return c.store.Channels(ctx, accountID)
}

// Invalidate drops the cached entry for id.
func (c *CachedStore) Invalidate(ctx context.Context, id int64) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

func encodeAccount(a Account) map[string]interface{} {
	return map[string]interface{}{
		"id":             a.ID,
		"username":       a.Username,
		"spcode":         a.SPCode,
		"company":        a.Company,
		"charge_type":    a.ChargeType,
		"ip_addr":        a.IPAddr,
		"concurrent":     a.Concurrent,
		"route":          a.Route,
		"extended":       boolField(a.Extended),
		"policy":         a.Policy,
		"check_template": boolField(a.CheckTemplate),
		"check_keyword":  boolField(a.CheckKeyword),
	}
}

func decodeAccount(fields map[string]string) (Account, error) {
	var (
		a   Account
		err error
	)
	ints := []struct {
		name string
		dst  *int64
	}{
		{"id", &a.ID},
		{"company", &a.Company},
		{"route", &a.Route},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.ParseInt(fields[f.name], 10, 64); err != nil {
			return Account{}, fmt.Errorf("field %s: %w", f.name, err)
		}
	}

	smalls := []struct {
		name string
		dst  *int
	}{
		{"charge_type", &a.ChargeType},
		{"concurrent", &a.Concurrent},
		{"policy", &a.Policy},
	}
	for _, f := range smalls {
		if *f.dst, err = strconv.Atoi(fields[f.name]); err != nil {
			return Account{}, fmt.Errorf("field %s: %w", f.name, err)
		}
	}

	a.Username = fields["username"]
	a.SPCode = fields["spcode"]
	a.IPAddr = fields["ip_addr"]
	a.Extended = fields["extended"] == "1"
	a.CheckTemplate = fields["check_template"] == "1"
	a.CheckKeyword = fields["check_keyword"] == "1"
	return a, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
