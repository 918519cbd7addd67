// Package statestore persists small string properties: usage counters, tier
// state and rolling histories.
package statestore

import (
	"context"
	"errors"
)

var ErrNotInteger = errors.New("value_not_integer")

// Store is a key/value property store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Incrementer is implemented by stores that can add to an integer value atomically.
type Incrementer interface {
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
}

// Lister is implemented by stores that can enumerate keys by prefix.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}
