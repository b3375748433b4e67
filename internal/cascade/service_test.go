package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/internal/bills"
	"github.com/danielortuno/splittab-backend/internal/events"
	"github.com/danielortuno/splittab-backend/internal/ledger"
	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeBillRepo struct {
	bills.Repository
	rows    []models.Bill
	listErr error
}

func (f *fakeBillRepo) WithTx(*gorm.DB) bills.Repository { return f }

func (f *fakeBillRepo) ListByEvent(_ context.Context, eventID uuid.UUID, limit int) ([]models.Bill, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Bill
	for _, bill := range f.rows {
		if bill.EventID != nil && *bill.EventID == eventID {
			out = append(out, bill)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeBillRepo) Delete(_ context.Context, id uuid.UUID) error {
	kept := f.rows[:0]
	for _, bill := range f.rows {
		if bill.ID != id {
			kept = append(kept, bill)
		}
	}
	f.rows = kept
	return nil
}

type fakeLedgerRepo struct {
	ledger.Repository
	deletedCaches []uuid.UUID
}

func (f *fakeLedgerRepo) DeleteEventBalance(_ context.Context, eventID uuid.UUID) error {
	f.deletedCaches = append(f.deletedCaches, eventID)
	return nil
}

type fakeEventsRepo struct {
	events.Repository
	clearedInvites []uuid.UUID
}

func (f *fakeEventsRepo) DeleteInvitationsByEvent(_ context.Context, eventID uuid.UUID) error {
	f.clearedInvites = append(f.clearedInvites, eventID)
	return nil
}

func newTestService(t *testing.T, billRepo *fakeBillRepo, batchSize int) (Service, *fakeEmitter, *fakeLedgerRepo, *fakeEventsRepo) {
	t.Helper()
	emitter := &fakeEmitter{}
	ledgerRepo := &fakeLedgerRepo{}
	eventsRepo := &fakeEventsRepo{}
	svc := &service{
		billsRepo:  billRepo,
		ledgerRepo: ledgerRepo,
		eventsRepo: eventsRepo,
		tx:         fakeTx{},
		outbox:     emitter,
		batchSize:  batchSize,
	}
	return svc, emitter, ledgerRepo, eventsRepo
}

func eventBill(eventID uuid.UUID, processed dbtypes.BalanceMap) models.Bill {
	return models.Bill{
		ID:                     uuid.New(),
		OwnerID:                uuid.New(),
		EventID:                &eventID,
		ProcessedBalances:      processed,
		ProcessedEventBalances: processed,
	}
}

func TestProcessEventDeletionDrainsBillsInBatches(t *testing.T) {
	eventID := uuid.New()
	processed := dbtypes.BalanceMap{uuid.NewString(): 30}
	billRepo := &fakeBillRepo{rows: []models.Bill{
		eventBill(eventID, processed),
		eventBill(eventID, processed),
		eventBill(eventID, processed),
	}}
	svc, emitter, ledgerRepo, eventsRepo := newTestService(t, billRepo, 2)

	err := svc.ProcessEventDeletion(context.Background(), payloadFor(eventID))
	require.NoError(t, err)

	assert.Empty(t, billRepo.rows, "all event bills should be gone")
	require.Len(t, emitter.events, 3)
	for _, event := range emitter.events {
		assert.Equal(t, enums.EventBillDeleted, event.EventType)
	}
	assert.Equal(t, []uuid.UUID{eventID}, ledgerRepo.deletedCaches)
	assert.Equal(t, []uuid.UUID{eventID}, eventsRepo.clearedInvites)
}

func TestProcessEventDeletionWithoutBillsStillCleansUp(t *testing.T) {
	eventID := uuid.New()
	svc, emitter, ledgerRepo, eventsRepo := newTestService(t, &fakeBillRepo{}, 2)

	err := svc.ProcessEventDeletion(context.Background(), payloadFor(eventID))
	require.NoError(t, err)

	assert.Empty(t, emitter.events)
	assert.Equal(t, []uuid.UUID{eventID}, ledgerRepo.deletedCaches)
	assert.Equal(t, []uuid.UUID{eventID}, eventsRepo.clearedInvites)
}

func TestProcessEventDeletionAbortsOnListFailure(t *testing.T) {
	eventID := uuid.New()
	billRepo := &fakeBillRepo{listErr: errors.New("db down")}
	svc, emitter, ledgerRepo, _ := newTestService(t, billRepo, 2)

	err := svc.ProcessEventDeletion(context.Background(), payloadFor(eventID))
	require.Error(t, err)
	assert.Empty(t, emitter.events)
	assert.Empty(t, ledgerRepo.deletedCaches, "cleanup should not run after a failed batch")
}

func TestProcessEventDeletionCarriesProcessedFootprints(t *testing.T) {
	eventID := uuid.New()
	friendID := uuid.NewString()
	processed := dbtypes.BalanceMap{friendID: 42.5}
	billRepo := &fakeBillRepo{rows: []models.Bill{eventBill(eventID, processed)}}
	svc, emitter, _, _ := newTestService(t, billRepo, 10)

	err := svc.ProcessEventDeletion(context.Background(), payloadFor(eventID))
	require.NoError(t, err)

	require.Len(t, emitter.events, 1)
	payload, ok := emitter.events[0].Data.(payloads.BillDeletedEvent)
	require.True(t, ok)
	assert.InDelta(t, 42.5, payload.ProcessedBalances[friendID], 1e-9)
	assert.InDelta(t, 42.5, payload.ProcessedEventBalances[friendID], 1e-9)
}

func payloadFor(eventID uuid.UUID) payloads.EventDeletedEvent {
	return payloads.EventDeletedEvent{EventID: eventID, OwnerID: uuid.New()}
}
