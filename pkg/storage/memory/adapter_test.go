package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/porthorian/websso/pkg/storage"
	"github.com/porthorian/websso/pkg/storage/testsuite"
)

var reference = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

func TestAdapterContract(t *testing.T) {
	suite := testsuite.PersistenceSuite{
		NewStore: func(t *testing.T) storage.RequestStore {
			return NewAdapter(Config{})
		},
	}
	suite.Run(t)
}

func TestConsumeExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(reference)
	adapter := NewAdapter(Config{
		Policy: storage.RetentionPolicy{TTL: time.Minute},
		Clock:  clock,
	})
	ctx := context.Background()

	request := storage.PendingRequest{ID: "id-expiring", Kind: storage.KindAuthnRequest}
	if err := adapter.Store(ctx, request); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	clock.Advance(time.Minute)

	if _, err := adapter.Consume(ctx, request.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Consume of expired record returned %v, want ErrNotFound", err)
	}
	if got := adapter.Len(); got != 0 {
		t.Fatalf("expired record not removed on consume, %d left", got)
	}
}

func TestStoreReplacesExpiredDuplicate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(reference)
	adapter := NewAdapter(Config{
		Policy: storage.RetentionPolicy{TTL: time.Minute},
		Clock:  clock,
	})
	ctx := context.Background()

	request := storage.PendingRequest{ID: "id-reissued", Kind: storage.KindAuthnRequest}
	if err := adapter.Store(ctx, request); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	clock.Advance(2 * time.Minute)

	if err := adapter.Store(ctx, request); err != nil {
		t.Fatalf("re-storing after expiry failed: %v", err)
	}
	if _, err := adapter.Consume(ctx, request.ID); err != nil {
		t.Fatalf("Consume of re-stored record failed: %v", err)
	}
}

func TestPendingLimit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(reference)
	adapter := NewAdapter(Config{
		Policy: storage.RetentionPolicy{TTL: time.Minute, MaxPending: 2},
		Clock:  clock,
	})
	ctx := context.Background()

	for _, id := range []string{"id-1", "id-2"} {
		if err := adapter.Store(ctx, storage.PendingRequest{ID: id, Kind: storage.KindAuthnRequest}); err != nil {
			t.Fatalf("Store %s failed: %v", id, err)
		}
	}
	if err := adapter.Store(ctx, storage.PendingRequest{ID: "id-3", Kind: storage.KindAuthnRequest}); !errors.Is(err, storage.ErrPendingLimit) {
		t.Fatalf("Store over limit returned %v, want ErrPendingLimit", err)
	}

	// Room frees up once existing records expire.
	clock.Advance(2 * time.Minute)
	if err := adapter.Store(ctx, storage.PendingRequest{ID: "id-3", Kind: storage.KindAuthnRequest}); err != nil {
		t.Fatalf("Store after expiry failed: %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(reference)
	adapter := NewAdapter(Config{
		Policy: storage.RetentionPolicy{TTL: time.Minute},
		Clock:  clock,
	})
	ctx := context.Background()

	if err := adapter.Store(ctx, storage.PendingRequest{ID: "id-old", Kind: storage.KindAuthnRequest}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	clock.Advance(30 * time.Second)
	if err := adapter.Store(ctx, storage.PendingRequest{ID: "id-new", Kind: storage.KindAuthnRequest}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	purged, err := adapter.PurgeExpired(ctx, reference.Add(75*time.Second))
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged %d records, want 1", purged)
	}
	if got := adapter.Len(); got != 1 {
		t.Fatalf("%d records left, want 1", got)
	}
}
