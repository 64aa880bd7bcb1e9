package websso

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/porthorian/websso/pkg/confirmation"
	oerrors "github.com/porthorian/websso/pkg/errors"
	"github.com/porthorian/websso/pkg/metadata"
	"github.com/porthorian/websso/pkg/protocol/saml"
	"github.com/porthorian/websso/pkg/skew"
	"github.com/porthorian/websso/pkg/storage"
	"github.com/porthorian/websso/pkg/trust"
)

type Config struct {
	ServiceProvider metadata.ServiceProvider
	TrustVerifier   trust.Verifier
	RequestStore    storage.RequestStore
	Providers       *metadata.Registry
	Confirmations   *confirmation.Registry
	ConditionPolicy ConditionPolicy
	Skew            skew.Windows
	Clock           clockwork.Clock
	Logger          logr.Logger
	Runtime         RuntimeConfig
}

type Client struct {
	consumer      Consumer
	requests      storage.RequestStore
	clock         clockwork.Clock
	logger        logr.Logger
	closeResource func() error
}

func New(consumer Consumer, config Config) (*Client, error) {
	closeResource, resolvedConfig, err := config.initialize(context.Background())
	if err != nil {
		return nil, err
	}

	if consumer == nil {
		_ = closeResource()
		return nil, oerrors.ErrMissingConsumer
	}

	return &Client{
		consumer:      consumer,
		requests:      resolvedConfig.RequestStore,
		clock:         resolvedConfig.Clock,
		logger:        resolvedConfig.Logger,
		closeResource: closeResource,
	}, nil
}

func NewDefault(config Config) (*Client, error) {
	closeResource, resolvedConfig, err := config.initialize(context.Background())
	if err != nil {
		return nil, err
	}

	consumer, err := NewConsumer(resolvedConfig)
	if err != nil {
		_ = closeResource()
		return nil, err
	}

	return &Client{
		consumer:      consumer,
		requests:      resolvedConfig.RequestStore,
		clock:         resolvedConfig.Clock,
		logger:        resolvedConfig.Logger,
		closeResource: closeResource,
	}, nil
}

// Consume validates a parsed response and returns the credential it vouches
// for. Rejections surface as *errors.Error values; the code is logged here
// so operators see which check failed while callers map every failure to a
// single user-facing rejection.
func (c *Client) Consume(ctx context.Context, response *saml.Response, vc ValidationContext) (Credential, error) {
	if c == nil || c.consumer == nil {
		return Credential{}, oerrors.ErrMissingConsumer
	}

	credential, err := c.consumer.ConsumeResponse(ctx, response, vc)
	if err != nil {
		if oerrors.IsInternalCode(err) {
			c.logger.Error(err, "response validation could not complete", "peer", vc.PeerEntityID)
		} else {
			c.logger.V(1).Info("response rejected",
				"peer", vc.PeerEntityID,
				"code", string(oerrors.CodeOf(err)),
				"reason", err.Error(),
			)
		}
		return Credential{}, err
	}

	c.logger.V(1).Info("response accepted",
		"peer", vc.PeerEntityID,
		"assertion", credential.Assertion.ID,
	)
	return credential, nil
}

// ConsumeDocument parses a raw response document and validates it.
func (c *Client) ConsumeDocument(ctx context.Context, document []byte, vc ValidationContext) (Credential, error) {
	if c == nil || c.consumer == nil {
		return Credential{}, oerrors.ErrMissingConsumer
	}

	response, err := saml.ParseResponse(document)
	if err != nil {
		return Credential{}, oerrors.Wrap(oerrors.CodeUnknown, "failed to parse response document", err)
	}
	return c.Consume(ctx, response, vc)
}

// TrackRequest records an outbound request so the response correlating to it
// is accepted exactly once. A record with no ID gets a generated one; the
// returned record carries the ID the response must name in InResponseTo.
func (c *Client) TrackRequest(ctx context.Context, record storage.PendingRequest) (storage.PendingRequest, error) {
	if c == nil || c.requests == nil {
		return storage.PendingRequest{}, oerrors.ErrMissingRequestStore
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Kind == "" {
		record.Kind = storage.KindAuthnRequest
	}
	if record.CreatedAt.IsZero() && c.clock != nil {
		record.CreatedAt = c.clock.Now().UTC()
	}

	if err := c.requests.Store(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateID) || errors.Is(err, storage.ErrPendingLimit) {
			return storage.PendingRequest{}, err
		}
		return storage.PendingRequest{}, oerrors.Wrap(oerrors.CodeStorageUnavailable, "failed to track request", err)
	}
	return record, nil
}

func (c *Client) Close() error {
	if c == nil || c.closeResource == nil {
		return nil
	}

	err := c.closeResource()
	if err != nil {
		return oerrors.Wrap(oerrors.CodeUnknown, "failed to close client resources", err)
	}
	c.closeResource = nil
	c.consumer = nil
	c.requests = nil
	return nil
}
