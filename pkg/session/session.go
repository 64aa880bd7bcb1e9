// Package session manages the local sessions a service provider establishes
// after response validation. The identity provider's session bounds carry
// into the local record so single logout can find and end it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var ErrNotFound = errors.New("session: not found")

const DefaultTTL = 8 * time.Hour

// Record is one local session. IssuerEntityID and SessionIndex tie it back
// to the identity provider session that produced it.
type Record struct {
	ID             string
	Subject        string
	IssuerEntityID string
	SessionIndex   string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Attributes     map[string][]string
}

func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

type Manager interface {
	// Establish stores the record, filling ID, CreatedAt and ExpiresAt, and
	// returns the stored form.
	Establish(ctx context.Context, record Record) (Record, error)

	// Resolve returns the live session with the given ID. Expired and
	// revoked sessions read as ErrNotFound.
	Resolve(ctx context.Context, id string) (Record, error)

	Revoke(ctx context.Context, id string) error

	// RevokeByIndex ends every session tied to the given provider session.
	// Single logout requests name sessions this way.
	RevokeByIndex(ctx context.Context, issuerEntityID, sessionIndex string) (int, error)
}

type Config struct {
	TTL   time.Duration
	Clock clockwork.Clock
}

type MemoryManager struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clockwork.Clock
	records map[string]Record
}

var _ Manager = (*MemoryManager)(nil)

func NewMemoryManager(config Config) *MemoryManager {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &MemoryManager{
		ttl:     config.TTL,
		clock:   config.Clock,
		records: map[string]Record{},
	}
}

func (m *MemoryManager) Establish(_ context.Context, record Record) (Record, error) {
	now := m.clock.Now().UTC()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now

	// The local session never outlives the provider session bound the
	// record arrived with.
	deadline := now.Add(m.ttl)
	if record.ExpiresAt.IsZero() || deadline.Before(record.ExpiresAt) {
		record.ExpiresAt = deadline
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return record, nil
}

func (m *MemoryManager) Resolve(_ context.Context, id string) (Record, error) {
	now := m.clock.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if record.Expired(now) {
		delete(m.records, id)
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (m *MemoryManager) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryManager) RevokeByIndex(_ context.Context, issuerEntityID, sessionIndex string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	revoked := 0
	for id, record := range m.records {
		if record.IssuerEntityID == issuerEntityID && record.SessionIndex == sessionIndex {
			delete(m.records, id)
			revoked++
		}
	}
	return revoked, nil
}

func (m *MemoryManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
