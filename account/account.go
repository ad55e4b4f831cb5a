// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package account looks up gateway accounts and their routing channels.
package account

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("account not found")

// Account is a gateway customer account. Its id is the client identity
// used on the control plane.
type Account struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	SPCode        string `json:"spcode"`
	Company       int64  `json:"company"`
	ChargeType    int    `json:"charge_type"`
	IPAddr        string `json:"ip_addr"`
	Concurrent    int    `json:"concurrent"`
	Route         int64  `json:"route"`
	Extended      bool   `json:"extended"`
	Policy        int    `json:"policy"`
	CheckTemplate bool   `json:"check_template"`
	CheckKeyword  bool   `json:"check_keyword"`
}

// Channel is a carrier route assigned to an account. Lower weights are
// preferred.
type Channel struct {
	ID       int64 `json:"id"`
	Account  int64 `json:"account"`
	Weight   int   `json:"weight"`
	Operator int   `json:"operator"`
}

// Store reads accounts and channels.
type Store interface {
	Account(ctx context.Context, id int64) (Account, error)
	Channels(ctx context.Context, accountID int64) ([]Channel, error)
}

// Limits exposes the per-account concurrent worker limit of a Store.
type Limits struct {
	Store Store
}

// Concurrent returns how many workers the account may hold at once.
func (l Limits) Concurrent(ctx context.Context, id int64) (int, error) {
	acc, err := l.Store.Account(ctx, id)
	if err != nil {
		return 0, err
	}
	return acc.Concurrent, nil
}
