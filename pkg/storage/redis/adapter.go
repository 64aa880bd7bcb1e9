package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/porthorian/websso/pkg/storage"
)

var (
	ErrInvalidTTL = errors.New("redis storage: record expires in the past")
)

const defaultNamespace = "websso"

type Config struct {
	Address     string
	Username    string
	Password    string
	Database    int
	Namespace   string
	DialTimeout time.Duration
	Policy      storage.RetentionPolicy
	Clock       clockwork.Clock
}

// Adapter stores pending requests as namespaced keys with a server-side
// TTL. Single use rides on GETDEL, duplicate detection on SET NX; both are
// atomic on the server so concurrent consumers cannot double-spend an ID.
type Adapter struct {
	client    *redis.Client
	namespace string
	policy    storage.RetentionPolicy
	clock     clockwork.Clock
}

var _ storage.RequestStore = (*Adapter)(nil)

type record struct {
	ID         string       `json:"id"`
	Kind       storage.Kind `json:"kind"`
	Issuer     string       `json:"issuer,omitempty"`
	RelayState string       `json:"relay_state,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

func NewAdapter(config Config) *Adapter {
	if config.Namespace == "" {
		config.Namespace = defaultNamespace
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Address,
		Username:    config.Username,
		Password:    config.Password,
		DB:          config.Database,
		DialTimeout: config.DialTimeout,
	})

	return &Adapter{
		client:    client,
		namespace: config.Namespace,
		policy:    config.Policy.Normalize(),
		clock:     config.Clock,
	}
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *Adapter) Close() error {
	return a.client.Close()
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

	ttl := request.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	payload, err := json.Marshal(record{
		ID:         request.ID,
		Kind:       request.Kind,
		Issuer:     request.Issuer,
		RelayState: request.RelayState,
		CreatedAt:  request.CreatedAt,
		ExpiresAt:  request.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("redis storage: encode record: %w", err)
	}

	stored, err := a.client.SetNX(ctx, a.key(request.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis storage: store record: %w", err)
	}
	if !stored {
		return storage.ErrDuplicateID
	}
	return nil
}

func (a *Adapter) Consume(ctx context.Context, id string) (storage.PendingRequest, error) {
	if id == "" {
		return storage.PendingRequest{}, storage.ErrNotFound
	}

	payload, err := a.client.GetDel(ctx, a.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.PendingRequest{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PendingRequest{}, fmt.Errorf("redis storage: consume record: %w", err)
	}

	var decoded record
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return storage.PendingRequest{}, fmt.Errorf("redis storage: decode record: %w", err)
	}

	request := storage.PendingRequest{
		ID:         decoded.ID,
		Kind:       decoded.Kind,
		Issuer:     decoded.Issuer,
		RelayState: decoded.RelayState,
		CreatedAt:  decoded.CreatedAt,
		ExpiresAt:  decoded.ExpiresAt,
	}
	if request.Expired(a.clock.Now().UTC()) {
		return storage.PendingRequest{}, storage.ErrNotFound
	}
	return request, nil
}

// PurgeExpired is satisfied by the server-side TTL; there is never anything
// left to remove.
func (a *Adapter) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (a *Adapter) key(id string) string {
	return a.namespace + ":request:" + id
}
