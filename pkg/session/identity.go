package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NewID returns a fresh random session identifier.
func NewID() string {
	return uuid.NewString()
}

// LoadOrCreateID returns the persisted session identifier, or generates one
// with gen, persists it, and returns it. created reports whether a new id was
// generated. A nil gen uses NewID.
func LoadOrCreateID(ctx context.Context, store Store, gen func() string) (id string, created bool, err error) {
	if store == nil {
		return "", false, errors.New("session store is nil")
	}
	if gen == nil {
		gen = NewID
	}

	id, ok, err := store.Get(ctx, KeySessionID)
	if err != nil {
		return "", false, errors.Wrap(err, "could not load session id")
	}
	if ok && id != "" {
		return id, false, nil
	}

	id = gen()
	if err := store.Set(ctx, KeySessionID, id); err != nil {
		return id, true, errors.Wrap(err, "could not persist session id")
	}
	return id, true, nil
}
