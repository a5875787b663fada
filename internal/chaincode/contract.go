// Package chaincode runs the record store as a Hyperledger Fabric smart
// contract. Every transaction builds a store over the world state, takes the
// caller identity from the client certificate and timestamps records with
// the transaction timestamp so all endorsers agree.
package chaincode

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/medrex/healthcare-records/internal/events"
	"github.com/medrex/healthcare-records/internal/healthcare"
	"github.com/medrex/healthcare-records/internal/storage"
	"github.com/medrex/healthcare-records/pkg/logger"
	"github.com/medrex/healthcare-records/pkg/types"
)

// SmartContract exposes the record store operations as transactions
type SmartContract struct {
	contractapi.Contract
	logger *logger.Logger
}

// Record is the transaction payload for a stored record
type Record struct {
	RecordID    uint64 `json:"record_id"`
	PatientName string `json:"patient_name"`
	Diagnosis   string `json:"diagnosis"`
	Treatment   string `json:"treatment"`
	Timestamp   int64  `json:"timestamp"`
	RecordedAt  string `json:"recorded_at"`
	AuthoredBy  string `json:"authored_by"`
}

// NewSmartContract creates the contract
func NewSmartContract(log *logger.Logger) *SmartContract {
	return &SmartContract{logger: log}
}

// Initialize makes the submitting client the store owner. It can succeed
// only once per channel.
func (s *SmartContract) Initialize(ctx contractapi.TransactionContextInterface) error {
	store, caller, err := s.open(ctx)
	if err != nil {
		return err
	}
	return store.Initialize(context.Background(), caller)
}

// AuthorizeProvider adds provider to the authorized set. Owner only.
func (s *SmartContract) AuthorizeProvider(ctx contractapi.TransactionContextInterface, provider string) error {
	store, caller, err := s.open(ctx)
	if err != nil {
		return err
	}
	identity, err := types.ParseIdentity(provider)
	if err != nil {
		return err
	}
	return store.AuthorizeProvider(context.Background(), caller, identity)
}

// AddRecord appends a record and returns its record ID. Authorized
// providers only.
func (s *SmartContract) AddRecord(ctx contractapi.TransactionContextInterface, patientID, patientName, diagnosis, treatment string) (uint64, error) {
	store, caller, err := s.open(ctx)
	if err != nil {
		return 0, err
	}
	return store.AddRecord(context.Background(), caller, patientID, patientName, diagnosis, treatment)
}

// GetOwner returns the owner identity
func (s *SmartContract) GetOwner(ctx contractapi.TransactionContextInterface) (string, error) {
	owner, err := s.reader(ctx).GetOwner(context.Background())
	if err != nil {
		return "", err
	}
	return owner.String(), nil
}

// GetPatientRecords returns all records of a patient in insertion order
func (s *SmartContract) GetPatientRecords(ctx contractapi.TransactionContextInterface, patientID string) ([]Record, error) {
	views, err := s.reader(ctx).GetPatientRecords(context.Background(), patientID)
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(views))
	for i, view := range views {
		records[i] = fromView(view)
	}
	return records, nil
}

// GetPatientRecord returns one record
func (s *SmartContract) GetPatientRecord(ctx contractapi.TransactionContextInterface, patientID string, recordID uint64) (*Record, error) {
	view, err := s.reader(ctx).GetPatientRecord(context.Background(), patientID, recordID)
	if err != nil {
		return nil, err
	}
	record := fromView(view)
	return &record, nil
}

// IsAuthorized reports whether identity may add records
func (s *SmartContract) IsAuthorized(ctx contractapi.TransactionContextInterface, identity string) (bool, error) {
	id, err := types.ParseIdentity(identity)
	if err != nil {
		return false, err
	}
	return s.reader(ctx).IsAuthorized(context.Background(), id)
}

// open builds a store for a submit transaction and resolves the caller.
func (s *SmartContract) open(ctx contractapi.TransactionContextInterface) (*healthcare.Store, types.Identity, error) {
	caller, err := callerIdentity(ctx)
	if err != nil {
		return nil, "", err
	}

	stub := ctx.GetStub()
	txTime, err := stub.GetTxTimestamp()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read transaction timestamp: %w", err)
	}
	authoredAt := txTime.AsTime()

	store := healthcare.New(storage.NewFabricState(stub), s.log(),
		healthcare.WithClock(func() time.Time { return authoredAt }),
		healthcare.WithPublisher(&stubPublisher{ctx: ctx}),
	)
	return store, caller, nil
}

// reader builds a store for evaluate transactions.
func (s *SmartContract) reader(ctx contractapi.TransactionContextInterface) *healthcare.Store {
	return healthcare.New(storage.NewFabricState(ctx.GetStub()), s.log())
}

func (s *SmartContract) log() *logger.Logger {
	if s.logger == nil {
		return logger.Discard()
	}
	return s.logger
}

func callerIdentity(ctx contractapi.TransactionContextInterface) (types.Identity, error) {
	id, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client ID: %w", err)
	}
	return types.ParseIdentity(id)
}

func fromView(view types.RecordView) Record {
	return Record{
		RecordID:    view.RecordID,
		PatientName: view.PatientName,
		Diagnosis:   view.Diagnosis,
		Treatment:   view.Treatment,
		Timestamp:   view.Timestamp,
		RecordedAt:  view.RecordedAt,
		AuthoredBy:  view.AuthoredBy,
	}
}

// stubPublisher emits store events as chaincode events. Fabric keeps one
// event per transaction, which matches one write per transaction.
type stubPublisher struct {
	ctx contractapi.TransactionContextInterface
}

func (p *stubPublisher) Publish(_ context.Context, event events.Event) error {
	event.ID = p.ctx.GetStub().GetTxID()
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.ctx.GetStub().SetEvent(event.Type, payload)
}

func (p *stubPublisher) Close() error {
	return nil
}
