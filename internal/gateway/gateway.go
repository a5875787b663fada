// Package gateway is the single mutation entry point of the store. It checks
// input and caller authorization before anything reaches the ledger or the
// registry, and publishes change events once a write has committed.
package gateway

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/medrex/healthcare-records/internal/events"
	"github.com/medrex/healthcare-records/pkg/logger"
	"github.com/medrex/healthcare-records/pkg/monitoring"
	"github.com/medrex/healthcare-records/pkg/types"
)

// DefaultMaxFieldLength bounds each free-text record field, in bytes.
const DefaultMaxFieldLength = 4096

const (
	actionAddRecord         = "add_record"
	actionAuthorizeProvider = "authorize_provider"
)

// Registry is the part of the identity registry the gateway needs.
type Registry interface {
	IsAuthorized(ctx context.Context, provider types.Identity) (bool, error)
	Authorize(ctx context.Context, caller, provider types.Identity) (bool, error)
}

// Ledger is the part of the record ledger the gateway needs.
type Ledger interface {
	Append(ctx context.Context, patientID types.PatientID, rec types.NewRecord, authoredAt time.Time) (uint64, error)
}

// Clock supplies write timestamps.
type Clock func() time.Time

// WriteGateway validates and authorizes writes.
type WriteGateway struct {
	registry  Registry
	ledger    Ledger
	logger    *logger.Logger
	clock     Clock
	publisher events.Publisher
	metrics   *monitoring.MetricsCollector
	maxField  int
}

// Option configures a WriteGateway.
type Option func(*WriteGateway)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(g *WriteGateway) { g.clock = clock }
}

// WithPublisher sets the post-commit event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(g *WriteGateway) { g.publisher = p }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.MetricsCollector) Option {
	return func(g *WriteGateway) { g.metrics = m }
}

// WithFieldLimit sets the maximum byte length of a text field.
func WithFieldLimit(n int) Option {
	return func(g *WriteGateway) {
		if n > 0 {
			g.maxField = n
		}
	}
}

// New creates a gateway over registry and ledger.
func New(registry Registry, ledger Ledger, log *logger.Logger, opts ...Option) *WriteGateway {
	g := &WriteGateway{
		registry:  registry,
		ledger:    ledger,
		logger:    log,
		clock:     time.Now,
		publisher: events.NopPublisher{},
		maxField:  DefaultMaxFieldLength,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SubmitRecord appends a record for rawPatientID on behalf of caller and
// returns the assigned record ID. The patient ID is checked first, then the
// caller, then the field contents. Nothing is written unless all pass.
func (g *WriteGateway) SubmitRecord(ctx context.Context, caller types.Identity, rawPatientID, patientName, diagnosis, treatment string) (uint64, error) {
	start := time.Now()
	defer func() { g.metrics.RecordOperation(actionAddRecord, time.Since(start)) }()

	ctx, span := monitoring.StartSpan(ctx, "gateway.SubmitRecord", attribute.String("caller", caller.String()))
	defer span.End()

	patientID, err := types.ParsePatientID(rawPatientID)
	if err != nil {
		return 0, g.reject(ctx, actionAddRecord, caller, rawPatientID, "invalid_patient_id", err)
	}
	span.SetAttributes(attribute.String("patient_id", patientID.String()))

	authorized, err := g.registry.IsAuthorized(ctx, caller)
	if err != nil {
		monitoring.RecordError(span, err)
		return 0, err
	}
	if !authorized {
		g.logger.Security(ctx, "unauthorized_record_write", caller.String(), map[string]interface{}{
			"patient_id": patientID.String(),
		})
		return 0, g.reject(ctx, actionAddRecord, caller, patientID.String(), "unauthorized",
			types.ErrUnauthorized.WithDetail("caller", caller.String()))
	}

	fields := map[string]string{
		"patient_name": patientName,
		"diagnosis":    diagnosis,
		"treatment":    treatment,
	}
	for _, name := range []string{"patient_name", "diagnosis", "treatment"} {
		if err := g.validateField(name, fields[name]); err != nil {
			return 0, g.reject(ctx, actionAddRecord, caller, patientID.String(), "invalid_input", err)
		}
	}

	authoredAt := g.clock()
	recordID, err := g.ledger.Append(ctx, patientID, types.NewRecord{
		PatientName: patientName,
		Diagnosis:   diagnosis,
		Treatment:   treatment,
		AuthoredBy:  caller,
	}, authoredAt)
	if err != nil {
		monitoring.RecordError(span, err)
		g.logger.Audit(ctx, caller.String(), actionAddRecord, patientID.String(), false, map[string]interface{}{
			"error": err.Error(),
		})
		return 0, err
	}

	span.SetAttributes(attribute.Int64("record_id", int64(recordID)))
	g.metrics.RecordAppend()
	g.logger.RecordAppended(ctx, patientID.String(), recordID, caller.String())
	g.logger.Audit(ctx, caller.String(), actionAddRecord, patientID.String(), true, map[string]interface{}{
		"record_id": recordID,
	})

	event := events.New(events.TypeRecordAppended, caller.String(), authoredAt)
	event.PatientID = patientID.String()
	event.RecordID = recordID
	g.publish(ctx, event)

	return recordID, nil
}

// SubmitAuthorization adds provider to the authorized set. A non-owner
// caller gets ErrUnauthorized wrapping ErrNotOwner.
func (g *WriteGateway) SubmitAuthorization(ctx context.Context, caller, provider types.Identity) error {
	start := time.Now()
	defer func() { g.metrics.RecordOperation(actionAuthorizeProvider, time.Since(start)) }()

	ctx, span := monitoring.StartSpan(ctx, "gateway.SubmitAuthorization",
		attribute.String("caller", caller.String()),
		attribute.String("provider", provider.String()),
	)
	defer span.End()

	added, err := g.registry.Authorize(ctx, caller, provider)
	if err != nil {
		if errors.Is(err, types.ErrNotOwner) {
			g.logger.Security(ctx, "non_owner_authorization", caller.String(), map[string]interface{}{
				"provider": provider.String(),
			})
			return g.reject(ctx, actionAuthorizeProvider, caller, provider.String(), "not_owner",
				types.ErrUnauthorized.WithDetail("caller", caller.String()).WithCause(err))
		}
		if errors.Is(err, types.ErrInvalidIdentity) {
			return g.reject(ctx, actionAuthorizeProvider, caller, provider.String(), "invalid_identity", err)
		}
		monitoring.RecordError(span, err)
		g.logger.Audit(ctx, caller.String(), actionAuthorizeProvider, provider.String(), false, map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	g.logger.Audit(ctx, caller.String(), actionAuthorizeProvider, provider.String(), true, map[string]interface{}{
		"added": added,
	})
	if !added {
		return nil
	}

	g.metrics.RecordProviderAuthorized()
	event := events.New(events.TypeProviderAuthorized, caller.String(), g.clock())
	event.Provider = provider.String()
	g.publish(ctx, event)

	return nil
}

func (g *WriteGateway) validateField(name, value string) error {
	if !utf8.ValidString(value) {
		return types.ErrInvalidInput.WithDetail("field", name).WithDetail("reason", "not valid UTF-8")
	}
	if len(value) > g.maxField {
		return types.ErrInvalidInput.WithDetail("field", name).WithDetail("max_length", g.maxField)
	}
	return nil
}

func (g *WriteGateway) reject(ctx context.Context, action string, caller types.Identity, resource, reason string, err error) error {
	g.metrics.RecordRejection(action, reason)
	g.logger.Audit(ctx, caller.String(), action, resource, false, map[string]interface{}{
		"reason": reason,
	})
	return err
}

// publish runs after commit. A failed publish is logged and counted; the
// write it describes stands.
func (g *WriteGateway) publish(ctx context.Context, event events.Event) {
	err := g.publisher.Publish(ctx, event)
	g.metrics.RecordEventPublished(event.Type, err == nil)
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).WithField("event_type", event.Type).Error("Failed to publish event")
	}
}
