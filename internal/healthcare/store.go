// Package healthcare is the record store: an owner, an add-only set of
// authorized providers and an append-only ledger per patient.
//
// A Store starts Uninitialized. Initialize sets the owner exactly once and
// moves it to Active; before that every other operation fails with
// types.ErrNotInitialized.
package healthcare

import (
	"context"
	"time"

	"github.com/medrex/healthcare-records/internal/events"
	"github.com/medrex/healthcare-records/internal/gateway"
	"github.com/medrex/healthcare-records/internal/ledger"
	"github.com/medrex/healthcare-records/internal/query"
	"github.com/medrex/healthcare-records/internal/registry"
	"github.com/medrex/healthcare-records/internal/storage"
	"github.com/medrex/healthcare-records/pkg/logger"
	"github.com/medrex/healthcare-records/pkg/monitoring"
	"github.com/medrex/healthcare-records/pkg/types"
)

// Store wires the registry, ledger, write gateway and query service over
// one backend.
type Store struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	gateway  *gateway.WriteGateway
	query    *query.Service
	logger   *logger.Logger

	clock     gateway.Clock
	publisher events.Publisher
	metrics   *monitoring.MetricsCollector
}

type options struct {
	clock     gateway.Clock
	publisher events.Publisher
	metrics   *monitoring.MetricsCollector
	maxField  int
	location  *time.Location
}

// Option configures a Store.
type Option func(*options)

// WithClock sets the clock used to timestamp records.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithPublisher sets the post-commit event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithFieldLimit bounds the byte length of record text fields.
func WithFieldLimit(n int) Option {
	return func(o *options) { o.maxField = n }
}

// WithLocation sets the time zone of RecordView.RecordedAt.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// New creates a store over backend. State already in the backend is picked
// up, so a reopened store stays Active.
func New(backend storage.Backend, log *logger.Logger, opts ...Option) *Store {
	o := options{
		clock:     time.Now,
		publisher: events.NopPublisher{},
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(&o)
	}

	reg := registry.New(backend, log)
	led := ledger.New(backend, log)

	return &Store{
		registry: reg,
		ledger:   led,
		gateway: gateway.New(reg, led, log,
			gateway.WithClock(o.clock),
			gateway.WithPublisher(o.publisher),
			gateway.WithMetrics(o.metrics),
			gateway.WithFieldLimit(o.maxField),
		),
		query:     query.New(led, o.location, o.metrics),
		logger:    log,
		clock:     o.clock,
		publisher: o.publisher,
		metrics:   o.metrics,
	}
}

// Initialize makes caller the owner. It fails with ErrAlreadyInitialized on
// every call after the first.
func (s *Store) Initialize(ctx context.Context, caller types.Identity) error {
	if err := s.registry.Initialize(ctx, caller); err != nil {
		s.logger.Audit(ctx, caller.String(), "initialize", "registry", false, map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	s.logger.Audit(ctx, caller.String(), "initialize", "registry", true, nil)

	event := events.New(events.TypeStoreInitialized, caller.String(), s.clock())
	err := s.publisher.Publish(ctx, event)
	s.metrics.RecordEventPublished(event.Type, err == nil)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("event_type", event.Type).Error("Failed to publish event")
	}
	return nil
}

// AuthorizeProvider adds provider to the authorized set. Only the owner may
// call it; anyone else gets ErrUnauthorized (wrapping ErrNotOwner).
func (s *Store) AuthorizeProvider(ctx context.Context, caller, provider types.Identity) error {
	if err := s.requireActive(ctx); err != nil {
		return err
	}
	return s.gateway.SubmitAuthorization(ctx, caller, provider)
}

// AddRecord appends a record for patientID and returns its record ID.
func (s *Store) AddRecord(ctx context.Context, caller types.Identity, patientID, patientName, diagnosis, treatment string) (uint64, error) {
	if err := s.requireActive(ctx); err != nil {
		return 0, err
	}
	return s.gateway.SubmitRecord(ctx, caller, patientID, patientName, diagnosis, treatment)
}

// GetOwner returns the owner identity.
func (s *Store) GetOwner(ctx context.Context) (types.Identity, error) {
	return s.registry.Owner(ctx)
}

// GetPatientRecords returns the patient's records in insertion order.
func (s *Store) GetPatientRecords(ctx context.Context, patientID string) ([]types.RecordView, error) {
	if err := s.requireActive(ctx); err != nil {
		return nil, err
	}
	return s.query.QueryRecords(ctx, patientID)
}

// GetPatientRecord returns a single record.
func (s *Store) GetPatientRecord(ctx context.Context, patientID string, recordID uint64) (types.RecordView, error) {
	if err := s.requireActive(ctx); err != nil {
		return types.RecordView{}, err
	}
	return s.query.QueryRecord(ctx, patientID, recordID)
}

// IsAuthorized reports whether identity may add records.
func (s *Store) IsAuthorized(ctx context.Context, identity types.Identity) (bool, error) {
	if err := s.requireActive(ctx); err != nil {
		return false, err
	}
	return s.registry.IsAuthorized(ctx, identity)
}

// Initialized reports whether the store is Active.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	return s.registry.Initialized(ctx)
}

func (s *Store) requireActive(ctx context.Context) error {
	active, err := s.registry.Initialized(ctx)
	if err != nil {
		return err
	}
	if !active {
		return types.ErrNotInitialized
	}
	return nil
}
