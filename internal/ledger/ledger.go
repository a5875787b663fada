// Package ledger is the append-only, per-patient record log.
//
// Each patient has a head entry holding the last assigned record ID and
// timestamp. An append writes the new record (create-only) and the advanced
// head in one atomic batch, so readers that observe head N always find
// records 1..N.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/medrex/healthcare-records/internal/storage"
	"github.com/medrex/healthcare-records/pkg/logger"
	"github.com/medrex/healthcare-records/pkg/types"
)

// FirstRecordID is the ID given to a patient's first record.
const FirstRecordID uint64 = 1

// head tracks the tail of one patient's log.
type head struct {
	LastID        uint64 `json:"last_id"`
	LastTimestamp int64  `json:"last_timestamp"`
}

// Ledger stores records per patient. Appends to one patient serialize on
// that patient's lock; different patients never contend.
type Ledger struct {
	backend storage.Backend
	locks   *keyedMutex
	logger  *logger.Logger
}

// New creates a ledger over backend.
func New(backend storage.Backend, log *logger.Logger) *Ledger {
	return &Ledger{
		backend: backend,
		locks:   newKeyedMutex(),
		logger:  log,
	}
}

// Append assigns the next record ID for patientID and stores the record.
// The stored timestamp is authoredAt, clamped so it never precedes the
// patient's previous record.
func (l *Ledger) Append(ctx context.Context, patientID types.PatientID, rec types.NewRecord, authoredAt time.Time) (uint64, error) {
	unlock := l.locks.Lock(patientID.String())
	defer unlock()

	h, err := l.readHead(ctx, patientID)
	if err != nil {
		return 0, err
	}
	if h.LastID == math.MaxUint64 {
		return 0, types.NewInternalError(fmt.Sprintf("record IDs exhausted for patient %s", patientID), nil)
	}

	timestamp := authoredAt.Unix()
	if timestamp < h.LastTimestamp {
		timestamp = h.LastTimestamp
	}

	record := types.Record{
		RecordID:    h.LastID + 1,
		PatientName: rec.PatientName,
		Diagnosis:   rec.Diagnosis,
		Treatment:   rec.Treatment,
		Timestamp:   timestamp,
		AuthoredBy:  rec.AuthoredBy,
	}
	next := head{LastID: record.RecordID, LastTimestamp: timestamp}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return 0, types.NewInternalError("failed to marshal record", err)
	}
	headJSON, err := json.Marshal(next)
	if err != nil {
		return 0, types.NewInternalError("failed to marshal ledger head", err)
	}

	batch := storage.NewBatch().
		Create(recordKey(patientID, record.RecordID), recordJSON).
		Put(headKey(patientID), headJSON)

	if err := l.backend.Apply(ctx, batch); err != nil {
		if errors.Is(err, storage.ErrKeyExists) {
			return 0, types.NewInternalError(
				fmt.Sprintf("record %d of patient %s was written concurrently by another writer", record.RecordID, patientID), err)
		}
		return 0, types.NewInternalError("failed to append record", err)
	}

	l.logger.WithComponent("ledger").WithFields(map[string]interface{}{
		"patient_id": patientID.String(),
		"record_id":  record.RecordID,
	}).Debug("Record appended")

	return record.RecordID, nil
}

// RecordsFor returns every record of patientID in insertion order. Unknown
// patients yield an empty slice.
func (l *Ledger) RecordsFor(ctx context.Context, patientID types.PatientID) ([]types.Record, error) {
	h, err := l.readHead(ctx, patientID)
	if err != nil {
		return nil, err
	}

	records := make([]types.Record, 0, h.LastID)
	for id := FirstRecordID; id <= h.LastID; id++ {
		record, err := l.readRecord(ctx, patientID, id)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Record returns a single record, or ErrRecordNotFound.
func (l *Ledger) Record(ctx context.Context, patientID types.PatientID, recordID uint64) (types.Record, error) {
	h, err := l.readHead(ctx, patientID)
	if err != nil {
		return types.Record{}, err
	}
	if recordID < FirstRecordID || recordID > h.LastID {
		return types.Record{}, types.ErrRecordNotFound.
			WithDetail("patient_id", patientID.String()).
			WithDetail("record_id", recordID)
	}
	return l.readRecord(ctx, patientID, recordID)
}

// Count returns the number of records stored for patientID.
func (l *Ledger) Count(ctx context.Context, patientID types.PatientID) (uint64, error) {
	h, err := l.readHead(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return h.LastID, nil
}

func (l *Ledger) readHead(ctx context.Context, patientID types.PatientID) (head, error) {
	var h head
	value, err := l.backend.Get(ctx, headKey(patientID))
	if err != nil {
		return h, types.NewInternalError("failed to read ledger head", err)
	}
	if value == nil {
		return h, nil
	}
	if err := json.Unmarshal(value, &h); err != nil {
		return h, types.NewInternalError("corrupt ledger head for patient "+patientID.String(), err)
	}
	return h, nil
}

func (l *Ledger) readRecord(ctx context.Context, patientID types.PatientID, recordID uint64) (types.Record, error) {
	var record types.Record
	value, err := l.backend.Get(ctx, recordKey(patientID, recordID))
	if err != nil {
		return record, types.NewInternalError("failed to read record", err)
	}
	if value == nil {
		return record, types.NewInternalError(
			fmt.Sprintf("record %d of patient %s is missing below the ledger head", recordID, patientID), nil)
	}
	if err := json.Unmarshal(value, &record); err != nil {
		return record, types.NewInternalError("corrupt record", err)
	}
	return record, nil
}

func headKey(patientID types.PatientID) string {
	return "ledger/" + patientID.String() + "/head"
}

// recordKey zero-pads the ID so keys sort in insertion order.
func recordKey(patientID types.PatientID, recordID uint64) string {
	return fmt.Sprintf("ledger/%s/record/%020d", patientID.String(), recordID)
}
