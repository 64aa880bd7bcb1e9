package testsuite

import (
	"context"
	"errors"
	"testing"

	"github.com/porthorian/websso/pkg/storage"
)

// PersistenceSuite runs the adapter-independent contract every request
// store must satisfy. Expiry depends on each backend's clock and is
// covered by the adapter's own tests.
type PersistenceSuite struct {
	NewStore func(t *testing.T) storage.RequestStore
}

func (s PersistenceSuite) Run(t *testing.T) {
	if s.NewStore == nil {
		t.Fatal("testsuite: NewStore factory is required")
	}

	t.Run("store and consume round trip", s.testRoundTrip)
	t.Run("consume is single use", s.testSingleUse)
	t.Run("unknown id", s.testUnknownID)
	t.Run("duplicate id", s.testDuplicateID)
	t.Run("rejects incomplete records", s.testValidation)
	t.Run("ids are independent", s.testIndependentIDs)
}

func (s PersistenceSuite) testRoundTrip(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	request := storage.PendingRequest{
		ID:         "id-roundtrip",
		Kind:       storage.KindAuthnRequest,
		Issuer:     "https://sp.example.org/metadata",
		RelayState: "/dashboard",
	}
	if err := store.Store(ctx, request); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := store.Consume(ctx, request.ID)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if got.ID != request.ID || got.Kind != request.Kind {
		t.Fatalf("identity fields mismatch: %+v", got)
	}
	if got.Issuer != request.Issuer || got.RelayState != request.RelayState {
		t.Fatalf("payload fields mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.ExpiresAt.IsZero() {
		t.Fatalf("adapter must fill retention timestamps: %+v", got)
	}
	if !got.ExpiresAt.After(got.CreatedAt) {
		t.Fatalf("expiry %v must follow creation %v", got.ExpiresAt, got.CreatedAt)
	}
}

func (s PersistenceSuite) testSingleUse(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	request := storage.PendingRequest{ID: "id-single-use", Kind: storage.KindAuthnRequest}
	if err := store.Store(ctx, request); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if _, err := store.Consume(ctx, request.ID); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}
	if _, err := store.Consume(ctx, request.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second Consume returned %v, want ErrNotFound", err)
	}
}

func (s PersistenceSuite) testUnknownID(t *testing.T) {
	store := s.NewStore(t)

	if _, err := store.Consume(context.Background(), "id-never-stored"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Consume returned %v, want ErrNotFound", err)
	}
}

func (s PersistenceSuite) testDuplicateID(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	request := storage.PendingRequest{ID: "id-duplicate", Kind: storage.KindAuthnRequest}
	if err := store.Store(ctx, request); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := store.Store(ctx, request); !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("second Store returned %v, want ErrDuplicateID", err)
	}
}

func (s PersistenceSuite) testValidation(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	if err := store.Store(ctx, storage.PendingRequest{Kind: storage.KindAuthnRequest}); err == nil {
		t.Fatal("Store accepted a record without an id")
	}
	if err := store.Store(ctx, storage.PendingRequest{ID: "id-no-kind"}); err == nil {
		t.Fatal("Store accepted a record without a kind")
	}
}

func (s PersistenceSuite) testIndependentIDs(t *testing.T) {
	store := s.NewStore(t)
	ctx := context.Background()

	first := storage.PendingRequest{ID: "id-first", Kind: storage.KindAuthnRequest}
	second := storage.PendingRequest{ID: "id-second", Kind: storage.KindLogoutRequest}
	if err := store.Store(ctx, first); err != nil {
		t.Fatalf("Store first failed: %v", err)
	}
	if err := store.Store(ctx, second); err != nil {
		t.Fatalf("Store second failed: %v", err)
	}

	if _, err := store.Consume(ctx, first.ID); err != nil {
		t.Fatalf("Consume first failed: %v", err)
	}
	got, err := store.Consume(ctx, second.ID)
	if err != nil {
		t.Fatalf("Consume second failed: %v", err)
	}
	if got.Kind != storage.KindLogoutRequest {
		t.Fatalf("kind not preserved: %+v", got)
	}
}
