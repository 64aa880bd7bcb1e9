package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/porthorian/websso/pkg/storage"
)

type Config struct {
	Policy storage.RetentionPolicy
	Clock  clockwork.Clock
}

// Adapter is an in-process request store. Consume holds the write lock for
// the whole read-and-delete so two responses racing on the same ID can
// never both succeed.
type Adapter struct {
	mu      sync.Mutex
	policy  storage.RetentionPolicy
	clock   clockwork.Clock
	entries map[string]storage.PendingRequest
}

var _ storage.RequestStore = (*Adapter)(nil)

func NewAdapter(config Config) *Adapter {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Adapter{
		policy:  config.Policy.Normalize(),
		clock:   config.Clock,
		entries: map[string]storage.PendingRequest{},
	}
}

func (a *Adapter) Store(ctx context.Context, request storage.PendingRequest) error {
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

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.entries[request.ID]; ok && !existing.Expired(now) {
		return storage.ErrDuplicateID
	}

	if a.policy.MaxPending > 0 && len(a.entries) >= a.policy.MaxPending {
		a.pruneLocked(now)
		if len(a.entries) >= a.policy.MaxPending {
			return storage.ErrPendingLimit
		}
	}

	a.entries[request.ID] = request
	return nil
}

func (a *Adapter) Consume(ctx context.Context, id string) (storage.PendingRequest, error) {
	if id == "" {
		return storage.PendingRequest{}, storage.ErrNotFound
	}

	now := a.clock.Now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	found, ok := a.entries[id]
	if !ok {
		return storage.PendingRequest{}, storage.ErrNotFound
	}
	delete(a.entries, id)

	if found.Expired(now) {
		return storage.PendingRequest{}, storage.ErrNotFound
	}
	return found, nil
}

func (a *Adapter) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pruneLocked(now.UTC()), nil
}

// Len reports how many records are held, expired or not.
func (a *Adapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *Adapter) pruneLocked(now time.Time) int64 {
	var purged int64
	for id, found := range a.entries {
		if found.Expired(now) {
			delete(a.entries, id)
			purged++
		}
	}
	return purged
}
