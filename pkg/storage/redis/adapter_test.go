package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/porthorian/websso/pkg/storage"
	"github.com/porthorian/websso/pkg/storage/testsuite"
)

func newTestAdapter(t *testing.T, policy storage.RetentionPolicy) *Adapter {
	t.Helper()

	server := miniredis.RunT(t)
	adapter := NewAdapter(Config{
		Address: server.Addr(),
		Policy:  policy,
	})
	t.Cleanup(func() {
		if err := adapter.Close(); err != nil {
			t.Errorf("close adapter: %v", err)
		}
	})
	return adapter
}

func TestAdapterContract(t *testing.T) {
	suite := testsuite.PersistenceSuite{
		NewStore: func(t *testing.T) storage.RequestStore {
			return newTestAdapter(t, storage.RetentionPolicy{})
		},
	}
	suite.Run(t)
}

func TestConsumeAfterServerExpiry(t *testing.T) {
	server := miniredis.RunT(t)
	adapter := NewAdapter(Config{
		Address: server.Addr(),
		Policy:  storage.RetentionPolicy{TTL: time.Minute},
	})
	defer adapter.Close()
	ctx := context.Background()

	request := storage.PendingRequest{ID: "id-expiring", Kind: storage.KindAuthnRequest}
	if err := adapter.Store(ctx, request); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := adapter.Consume(ctx, request.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Consume of expired record returned %v, want ErrNotFound", err)
	}
}

func TestStoreRejectsPastExpiry(t *testing.T) {
	adapter := newTestAdapter(t, storage.RetentionPolicy{})

	request := storage.PendingRequest{
		ID:        "id-stale",
		Kind:      storage.KindAuthnRequest,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := adapter.Store(context.Background(), request); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("Store returned %v, want ErrInvalidTTL", err)
	}
}

func TestNamespacesDoNotCollide(t *testing.T) {
	server := miniredis.RunT(t)
	first := NewAdapter(Config{Address: server.Addr(), Namespace: "sp-one"})
	second := NewAdapter(Config{Address: server.Addr(), Namespace: "sp-two"})
	defer first.Close()
	defer second.Close()
	ctx := context.Background()

	request := storage.PendingRequest{ID: "id-shared", Kind: storage.KindAuthnRequest}
	if err := first.Store(ctx, request); err != nil {
		t.Fatalf("Store in first namespace failed: %v", err)
	}

	if _, err := second.Consume(ctx, request.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("record leaked across namespaces: %v", err)
	}
	if _, err := first.Consume(ctx, request.ID); err != nil {
		t.Fatalf("Consume in first namespace failed: %v", err)
	}
}
