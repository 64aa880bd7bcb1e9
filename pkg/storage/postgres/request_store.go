package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/porthorian/websso/pkg/storage"
)

const (
	// The conflict arm only fires when the stored record has already
	// expired, so re-issuing an ID is allowed while a live duplicate is
	// reported through the affected-row count.
	storeRequestQuery = `
INSERT INTO websso.pending_requests (
  id, kind, issuer, relay_state, created_at, expires_at
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET
  kind = EXCLUDED.kind,
  issuer = EXCLUDED.issuer,
  relay_state = EXCLUDED.relay_state,
  created_at = EXCLUDED.created_at,
  expires_at = EXCLUDED.expires_at
WHERE pending_requests.expires_at <= $5
`

	consumeRequestQuery = `
DELETE FROM websso.pending_requests
WHERE id = $1
RETURNING id, kind, issuer, relay_state, created_at, expires_at
`

	purgeExpiredQuery = `DELETE FROM websso.pending_requests WHERE expires_at <= $1`
)

func (a *Adapter) Store(ctx context.Context, request storage.PendingRequest) error {
	if err := a.requirePreparedStatements(); err != nil {
		return err
	}
	if err := request.Validate(); err != nil {
		return err
	}

	now := a.clock.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	if request.ExpiresAt.IsZero() {
		request.ExpiresAt = a.policy.Deadline(request.CreatedAt)
	}

	result, err := a.stmts.storeRequest.ExecContext(
		ctx,
		request.ID,
		string(request.Kind),
		request.Issuer,
		request.RelayState,
		request.CreatedAt,
		request.ExpiresAt,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrDuplicateID
	}
	return nil
}

func (a *Adapter) Consume(ctx context.Context, id string) (storage.PendingRequest, error) {
	if err := a.requirePreparedStatements(); err != nil {
		return storage.PendingRequest{}, err
	}
	if id == "" {
		return storage.PendingRequest{}, storage.ErrNotFound
	}

	row := a.stmts.consumeRequest.QueryRowContext(ctx, id)
	request, err := scanPendingRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PendingRequest{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PendingRequest{}, err
	}

	// The row is gone either way; an expired record reads as absent.
	if request.Expired(a.clock.Now().UTC()) {
		return storage.PendingRequest{}, storage.ErrNotFound
	}
	return request, nil
}

func (a *Adapter) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := a.requirePreparedStatements(); err != nil {
		return 0, err
	}

	result, err := a.stmts.purgeExpired.ExecContext(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanPendingRequest(s scanner) (storage.PendingRequest, error) {
	var (
		request storage.PendingRequest
		kind    string
	)

	if err := s.Scan(
		&request.ID,
		&kind,
		&request.Issuer,
		&request.RelayState,
		&request.CreatedAt,
		&request.ExpiresAt,
	); err != nil {
		return storage.PendingRequest{}, err
	}

	request.Kind = storage.Kind(kind)
	request.CreatedAt = request.CreatedAt.UTC()
	request.ExpiresAt = request.ExpiresAt.UTC()

	return request, nil
}
