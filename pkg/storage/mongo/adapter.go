package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/porthorian/websso/pkg/storage"
)

const (
	defaultDatabase       = "websso"
	defaultCollection     = "pending_requests"
	defaultConnectTimeout = 10 * time.Second
)

type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	Policy         storage.RetentionPolicy
	Clock          clockwork.Clock
}

// Adapter stores pending requests in a collection with a TTL index on the
// expiry field. The server's TTL monitor removes stale records lazily, so
// Consume re-checks expiry before trusting a document it removed.
type Adapter struct {
	client     *mongo.Client
	collection *mongo.Collection
	policy     storage.RetentionPolicy
	clock      clockwork.Clock
}

var _ storage.RequestStore = (*Adapter)(nil)

type record struct {
	ID         string    `bson:"_id"`
	Kind       string    `bson:"kind"`
	Issuer     string    `bson:"issuer,omitempty"`
	RelayState string    `bson:"relay_state,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

func NewAdapter(ctx context.Context, config Config) (*Adapter, error) {
	if config.URI == "" {
		return nil, errors.New("mongo storage: uri is required")
	}
	if config.Database == "" {
		config.Database = defaultDatabase
	}
	if config.Collection == "" {
		config.Collection = defaultCollection
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	connectCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo storage: connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo storage: ping: %w", err)
	}

	adapter := &Adapter{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		policy:     config.Policy.Normalize(),
		clock:      config.Clock,
	}

	if err := adapter.initialize(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return adapter, nil
}

func (a *Adapter) initialize(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"expires_at": 1},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("mongo storage: create expiry index: %w", err)
	}
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
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

	doc := record{
		ID:         request.ID,
		Kind:       string(request.Kind),
		Issuer:     request.Issuer,
		RelayState: request.RelayState,
		CreatedAt:  request.CreatedAt,
		ExpiresAt:  request.ExpiresAt,
	}

	_, err := a.collection.InsertOne(ctx, doc)
	if err == nil {
		return nil
	}
	if !isDuplicate(err) {
		return fmt.Errorf("mongo storage: store record: %w", err)
	}

	// The TTL monitor removes expired documents lazily; replace the stale
	// one in place instead of reporting a duplicate.
	result, replaceErr := a.collection.ReplaceOne(
		ctx,
		bson.M{"_id": request.ID, "expires_at": bson.M{"$lte": now}},
		doc,
	)
	if replaceErr != nil {
		return fmt.Errorf("mongo storage: replace expired record: %w", replaceErr)
	}
	if result.MatchedCount == 0 {
		return storage.ErrDuplicateID
	}
	return nil
}

func (a *Adapter) Consume(ctx context.Context, id string) (storage.PendingRequest, error) {
	if id == "" {
		return storage.PendingRequest{}, storage.ErrNotFound
	}

	var doc record
	err := a.collection.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.PendingRequest{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PendingRequest{}, fmt.Errorf("mongo storage: consume record: %w", err)
	}

	request := storage.PendingRequest{
		ID:         doc.ID,
		Kind:       storage.Kind(doc.Kind),
		Issuer:     doc.Issuer,
		RelayState: doc.RelayState,
		CreatedAt:  doc.CreatedAt.UTC(),
		ExpiresAt:  doc.ExpiresAt.UTC(),
	}
	if request.Expired(a.clock.Now().UTC()) {
		return storage.PendingRequest{}, storage.ErrNotFound
	}
	return request, nil
}

func (a *Adapter) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := a.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("mongo storage: purge expired: %w", err)
	}
	return result.DeletedCount, nil
}

func isDuplicate(err error) bool {
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	return false
}
