package healthcare

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medrex/healthcare-records/internal/events"
	"github.com/medrex/healthcare-records/internal/storage"
	"github.com/medrex/healthcare-records/pkg/logger"
	"github.com/medrex/healthcare-records/pkg/types"
)

const (
	ownerO    = types.Identity("0xowner")
	providerP = types.Identity("0xprovider")
	strangerQ = types.Identity("0xstranger")
)

func newActiveStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(storage.NewMemory(), logger.Discard(), opts...)
	require.NoError(t, s.Initialize(context.Background(), ownerO))
	return s
}

func TestStore_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory(), logger.Discard())

	require.NoError(t, s.Initialize(ctx, ownerO))
	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))

	id, err := s.AddRecord(ctx, providerP, "101", "Alice", "Flu", "Rest")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	id, err = s.AddRecord(ctx, providerP, "101", "Alice", "Flu2", "Meds")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)

	records, err := s.GetPatientRecords(ctx, "101")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Flu", records[0].Diagnosis)
	assert.Equal(t, "Rest", records[0].Treatment)
	assert.Equal(t, "Flu2", records[1].Diagnosis)
	assert.Equal(t, "Meds", records[1].Treatment)

	_, err = s.AddRecord(ctx, strangerQ, "101", "Alice", "Flu3", "None")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	records, err = s.GetPatientRecords(ctx, "101")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	owner, err := s.GetOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, ownerO, owner)
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemory(), logger.Discard())

	initialized, err := s.Initialized(ctx)
	require.NoError(t, err)
	assert.False(t, initialized)

	_, err = s.GetOwner(ctx)
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	assert.ErrorIs(t, s.AuthorizeProvider(ctx, ownerO, providerP), types.ErrNotInitialized)
	_, err = s.AddRecord(ctx, providerP, "1", "a", "b", "c")
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, err = s.GetPatientRecords(ctx, "1")
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, err = s.GetPatientRecord(ctx, "1", 1)
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, err = s.IsAuthorized(ctx, providerP)
	assert.ErrorIs(t, err, types.ErrNotInitialized)

	require.NoError(t, s.Initialize(ctx, ownerO))
	assert.ErrorIs(t, s.Initialize(ctx, ownerO), types.ErrAlreadyInitialized)
	assert.ErrorIs(t, s.Initialize(ctx, strangerQ), types.ErrAlreadyInitialized)

	owner, err := s.GetOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, ownerO, owner)
}

func TestStore_MonotonicIDs(t *testing.T) {
	ctx := context.Background()
	s := newActiveStore(t)
	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))

	var last uint64
	for i := 0; i < 25; i++ {
		id, err := s.AddRecord(ctx, providerP, "42", "Bob", fmt.Sprintf("visit %d", i), "none")
		require.NoError(t, err)
		assert.Equal(t, last+1, id)
		last = id
	}
}

func TestStore_PatientIsolation(t *testing.T) {
	ctx := context.Background()
	s := newActiveStore(t)
	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))

	_, err := s.AddRecord(ctx, providerP, "2", "Bob", "Cold", "Tea")
	require.NoError(t, err)
	before, err := s.GetPatientRecords(ctx, "2")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.AddRecord(ctx, providerP, "1", "Alice", "Flu", "Rest")
		require.NoError(t, err)
	}

	after, err := s.GetPatientRecords(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_AuthorizationGate(t *testing.T) {
	ctx := context.Background()
	s := newActiveStore(t)
	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))
	_, err := s.AddRecord(ctx, providerP, "101", "Alice", "Flu", "Rest")
	require.NoError(t, err)

	for _, caller := range []types.Identity{strangerQ, ownerO} {
		_, err := s.AddRecord(ctx, caller, "101", "Alice", "Flu", "Rest")
		assert.ErrorIs(t, err, types.ErrUnauthorized)
	}

	records, err := s.GetPatientRecords(ctx, "101")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_OwnerExclusivity(t *testing.T) {
	ctx := context.Background()
	s := newActiveStore(t)
	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))

	for _, caller := range []types.Identity{providerP, strangerQ} {
		err := s.AuthorizeProvider(ctx, caller, strangerQ)
		assert.ErrorIs(t, err, types.ErrNotOwner)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
	}

	ok, err := s.IsAuthorized(ctx, strangerQ)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_UnauthorizedCallersSeeOnlyUnauthorized(t *testing.T) {
	ctx := context.Background()
	s := newActiveStore(t)

	for _, diagnosis := range []string{strings.Repeat("x", 5000), "\xff"} {
		_, err := s.AddRecord(ctx, strangerQ, "101", "Alice", diagnosis, "Rest")
		assert.ErrorIs(t, err, types.ErrUnauthorized)
		assert.False(t, errors.Is(err, types.ErrInvalidInput))
	}

	err := s.AuthorizeProvider(ctx, strangerQ, "")
	assert.ErrorIs(t, err, types.ErrNotOwner)
	assert.False(t, errors.Is(err, types.ErrInvalidIdentity))
}

func TestStore_IdempotentAuthorization(t *testing.T) {
	ctx := context.Background()
	s := newActiveStore(t)

	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))
	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))

	ok, err := s.IsAuthorized(ctx, providerP)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_OwnerCanSelfAuthorize(t *testing.T) {
	ctx := context.Background()
	s := newActiveStore(t)

	_, err := s.AddRecord(ctx, ownerO, "5", "Eve", "Check-up", "None")
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, ownerO))
	id, err := s.AddRecord(ctx, ownerO, "5", "Eve", "Check-up", "None")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestStore_ReadCompleteness(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(1700000000, 0)
	s := newActiveStore(t, WithClock(func() time.Time { return clock }))
	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))

	type input struct{ name, diagnosis, treatment string }
	inputs := []input{
		{"Alice", "Flu", "Rest"},
		{"Alice", "Flu", "Rest"},
		{"Alice B.", "Sprain", "Ice"},
		{"", "", ""},
	}
	for _, in := range inputs {
		_, err := s.AddRecord(ctx, providerP, "77", in.name, in.diagnosis, in.treatment)
		require.NoError(t, err)
	}

	records, err := s.GetPatientRecords(ctx, "77")
	require.NoError(t, err)
	require.Len(t, records, len(inputs))
	for i, in := range inputs {
		assert.Equal(t, uint64(i+1), records[i].RecordID)
		assert.Equal(t, in.name, records[i].PatientName)
		assert.Equal(t, in.diagnosis, records[i].Diagnosis)
		assert.Equal(t, in.treatment, records[i].Treatment)
		assert.Equal(t, clock.Unix(), records[i].Timestamp)
		assert.Equal(t, providerP.String(), records[i].AuthoredBy)
	}

	record, err := s.GetPatientRecord(ctx, "77", 3)
	require.NoError(t, err)
	assert.Equal(t, "Sprain", record.Diagnosis)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := newActiveStore(t)

	providers := []types.Identity{"0xp1", "0xp2", "0xp3", "0xp4"}
	for _, p := range providers {
		require.NoError(t, s.AuthorizeProvider(ctx, ownerO, p))
	}

	const perProvider = 25
	var wg sync.WaitGroup
	for _, p := range providers {
		for i := 0; i < perProvider; i++ {
			wg.Add(1)
			go func(p types.Identity, i int) {
				defer wg.Done()
				patient := fmt.Sprintf("%d", i%3)
				_, err := s.AddRecord(ctx, p, patient, "X", "Y", "Z")
				assert.NoError(t, err)
			}(p, i)
		}
	}

	// readers run alongside the writers
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				records, err := s.GetPatientRecords(ctx, "0")
				assert.NoError(t, err)
				for k, r := range records {
					assert.Equal(t, uint64(k+1), r.RecordID)
				}
			}
		}()
	}
	wg.Wait()

	total := 0
	for patient := 0; patient < 3; patient++ {
		records, err := s.GetPatientRecords(ctx, fmt.Sprintf("%d", patient))
		require.NoError(t, err)
		for k, r := range records {
			assert.Equal(t, uint64(k+1), r.RecordID)
		}
		total += len(records)
	}
	assert.Equal(t, len(providers)*perProvider, total)
}

func TestStore_ReopenLevelDB(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records")

	backend, err := storage.OpenLevelDB(path)
	require.NoError(t, err)
	s := New(backend, logger.Discard())
	require.NoError(t, s.Initialize(ctx, ownerO))
	require.NoError(t, s.AuthorizeProvider(ctx, ownerO, providerP))
	_, err = s.AddRecord(ctx, providerP, "101", "Alice", "Flu", "Rest")
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	backend, err = storage.OpenLevelDB(path)
	require.NoError(t, err)
	defer backend.Close()
	reopened := New(backend, logger.Discard())

	owner, err := reopened.GetOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, ownerO, owner)
	assert.ErrorIs(t, reopened.Initialize(ctx, strangerQ), types.ErrAlreadyInitialized)

	id, err := reopened.AddRecord(ctx, providerP, "101", "Alice", "Flu2", "Meds")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

// MockPublisher mocks the event publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestStore_InitializePublishesEvent(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(1700000000, 0)
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TypeStoreInitialized && e.Actor == ownerO.String() && e.OccurredAt.Equal(clock)
	})).Return(nil).Once()

	s := New(storage.NewMemory(), logger.Discard(),
		WithPublisher(publisher),
		WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, s.Initialize(ctx, ownerO))
	assert.ErrorIs(t, s.Initialize(ctx, strangerQ), types.ErrAlreadyInitialized)

	publisher.AssertExpectations(t)
	publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestStore_InitializeSurvivesPublishFailure(t *testing.T) {
	ctx := context.Background()
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	s := New(storage.NewMemory(), logger.Discard(), WithPublisher(publisher))
	require.NoError(t, s.Initialize(ctx, ownerO))

	owner, err := s.GetOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, ownerO, owner)
	publisher.AssertExpectations(t)
}
