// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	accountQuery = `SELECT id, username, spcode, company, charge_type, ip_addr, concurrent,
		route, extended, policy, check_template, check_keyword
		FROM account WHERE id = $1`
	channelsQuery = `SELECT id, acc, weight, operator FROM channels WHERE acc = $1 ORDER BY weight ASC`
)

// PostgresStore reads accounts from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Account returns the account with the given id.
func (s *PostgresStore) Account(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, accountQuery, id).Scan(
		&a.ID, &a.Username, &a.SPCode, &a.Company, &a.ChargeType, &a.IPAddr, &a.Concurrent,
		&a.Route, &a.Extended, &a.Policy, &a.CheckTemplate, &a.CheckKeyword,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return Account{}, fmt.Errorf("failed to query account %d: %w", id, err)
	}
	return a, nil
}

// Channels returns the channels of an account ordered by weight.
func (s *PostgresStore) Channels(ctx context.Context, accountID int64) ([]Channel, error) {
	rows, err := s.pool.Query(ctx, channelsQuery, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.Account, &c.Weight, &c.Operator); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}
	return channels, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
