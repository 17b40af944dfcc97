package session

import (
	"context"
	"errors"
)

// KeySessionID is the key under which the session identifier is persisted.
const KeySessionID = "sessionId"

var (
	ErrStoreClosed  = errors.New("session store closed")
	ErrEmptyKey     = errors.New("session store key is empty")
	ErrEmptyValue   = errors.New("session store value is empty")
	ErrUnknownStore = errors.New("unknown session store kind")
)

// Store is a small durable key-value store. Set is idempotent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func validateKV(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == "" {
		return ErrEmptyValue
	}
	return nil
}
