// Package query serves public, read-only views of patient ledgers.
package query

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/medrex/healthcare-records/pkg/monitoring"
	"github.com/medrex/healthcare-records/pkg/types"
)

// Ledger is the read side of the record ledger.
type Ledger interface {
	RecordsFor(ctx context.Context, patientID types.PatientID) ([]types.Record, error)
	Record(ctx context.Context, patientID types.PatientID, recordID uint64) (types.Record, error)
}

// Service projects ledger records into display views. Reads are not
// authorization-checked.
type Service struct {
	ledger   Ledger
	location *time.Location
	metrics  *monitoring.MetricsCollector
}

// New creates a query service rendering timestamps in loc (UTC when nil).
func New(ledger Ledger, loc *time.Location, metrics *monitoring.MetricsCollector) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{ledger: ledger, location: loc, metrics: metrics}
}

// QueryRecords returns every record of the patient in insertion order. An
// unknown patient yields an empty slice.
func (s *Service) QueryRecords(ctx context.Context, rawPatientID string) ([]types.RecordView, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperation("query_records", time.Since(start)) }()

	ctx, span := monitoring.StartSpan(ctx, "query.QueryRecords")
	defer span.End()

	patientID, err := types.ParsePatientID(rawPatientID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("patient_id", patientID.String()))

	records, err := s.ledger.RecordsFor(ctx, patientID)
	if err != nil {
		monitoring.RecordError(span, err)
		return nil, err
	}

	views := make([]types.RecordView, len(records))
	for i, record := range records {
		views[i] = record.View(s.location)
	}
	span.SetAttributes(attribute.Int("record_count", len(views)))
	return views, nil
}

// QueryRecord returns one record, or ErrRecordNotFound.
func (s *Service) QueryRecord(ctx context.Context, rawPatientID string, recordID uint64) (types.RecordView, error) {
	ctx, span := monitoring.StartSpan(ctx, "query.QueryRecord")
	defer span.End()

	patientID, err := types.ParsePatientID(rawPatientID)
	if err != nil {
		return types.RecordView{}, err
	}

	record, err := s.ledger.Record(ctx, patientID, recordID)
	if err != nil {
		return types.RecordView{}, err
	}
	return record.View(s.location), nil
}
