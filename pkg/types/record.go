package types

import "time"

// Record is an immutable entry in a patient's ledger
type Record struct {
	RecordID    uint64   `json:"record_id"`
	PatientName string   `json:"patient_name"`
	Diagnosis   string   `json:"diagnosis"`
	Treatment   string   `json:"treatment"`
	Timestamp   int64    `json:"timestamp"`
	AuthoredBy  Identity `json:"authored_by"`
}

// NewRecord carries the caller-supplied fields of a record before the ledger
// assigns its ID and timestamp
type NewRecord struct {
	PatientName string
	Diagnosis   string
	Treatment   string
	AuthoredBy  Identity
}

// RecordView is the display projection of a Record
type RecordView struct {
	RecordID    uint64 `json:"record_id"`
	PatientName string `json:"patient_name"`
	Diagnosis   string `json:"diagnosis"`
	Treatment   string `json:"treatment"`
	Timestamp   int64  `json:"timestamp"`
	RecordedAt  string `json:"recorded_at"`
	AuthoredBy  string `json:"authored_by"`
}

// RecordedAtLayout is the human-readable timestamp layout of RecordView
const RecordedAtLayout = "2006-01-02 15:04:05 MST"

// View projects the record for display in loc.
func (r Record) View(loc *time.Location) RecordView {
	if loc == nil {
		loc = time.UTC
	}
	return RecordView{
		RecordID:    r.RecordID,
		PatientName: r.PatientName,
		Diagnosis:   r.Diagnosis,
		Treatment:   r.Treatment,
		Timestamp:   r.Timestamp,
		RecordedAt:  time.Unix(r.Timestamp, 0).In(loc).Format(RecordedAtLayout),
		AuthoredBy:  r.AuthoredBy.String(),
	}
}
