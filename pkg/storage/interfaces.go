package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("storage: pending request not found")
	ErrDuplicateID  = errors.New("storage: pending request id already stored")
	ErrPendingLimit = errors.New("storage: pending request limit reached")
)

// Kind discriminates what a stored correlation record was issued for.
// Response validation only consumes KindAuthnRequest records; a record of
// any other kind correlating to a response is rejected by the engine.
type Kind string

const (
	KindAuthnRequest  Kind = "authn_request"
	KindLogoutRequest Kind = "logout_request"
)

// PendingRequest is an outstanding outbound request awaiting its response.
// It is written when the request is issued and consumed at most once when a
// response carrying its ID arrives.
type PendingRequest struct {
	ID         string
	Kind       Kind
	Issuer     string
	RelayState string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Validate checks the fields the caller must supply. ExpiresAt may be left
// zero; adapters fill it from their retention policy.
func (r PendingRequest) Validate() error {
	if r.ID == "" {
		return errors.New("storage: pending request id is required")
	}
	if r.Kind == "" {
		return errors.New("storage: pending request kind is required")
	}
	return nil
}

// Expired reports whether the record's deadline has passed at the given
// instant. The deadline itself counts as expired.
func (r PendingRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// RequestStore persists outstanding request identifiers. Consume is the
// single-use read the anti-replay guarantee depends on: once an ID has been
// consumed it must never be retrievable again, whichever adapter backs the
// store. Consume returns ErrNotFound for unknown, expired, or already
// consumed IDs.
type RequestStore interface {
	Store(ctx context.Context, request PendingRequest) error
	Consume(ctx context.Context, id string) (PendingRequest, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
