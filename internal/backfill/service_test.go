package backfill

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/internal/bills"
	"github.com/danielortuno/splittab-backend/pkg/db/models"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeEmitter struct {
	pending map[string]bool
	events  []outbox.DomainEvent
}

func (f *fakeEmitter) EmitIfNotExists(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if f.pending == nil {
		f.pending = map[string]bool{}
	}
	key := fmt.Sprintf("%s/%s", event.EventType, event.AggregateID)
	if f.pending[key] {
		return nil
	}
	f.pending[key] = true
	f.events = append(f.events, event)
	return nil
}

type fakeBillRepo struct {
	bills.Repository
	byFriend map[uuid.UUID][]models.Bill
	bumped   []uuid.UUID
}

func (f *fakeBillRepo) WithTx(*gorm.DB) bills.Repository { return f }

func (f *fakeBillRepo) ListOwnedWithParticipant(_ context.Context, _, friendID uuid.UUID, limit int) ([]models.Bill, error) {
	matches := f.byFriend[friendID]
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (f *fakeBillRepo) BumpLinkVersion(_ context.Context, id uuid.UUID) error {
	f.bumped = append(f.bumped, id)
	return nil
}

func newTestService(billRepo *fakeBillRepo, scanLimit int) (Service, *fakeEmitter) {
	emitter := &fakeEmitter{}
	return &service{
		billsRepo: billRepo,
		tx:        fakeTx{},
		outbox:    emitter,
		scanLimit: scanLimit,
	}, emitter
}

func ownedBill(ownerID uuid.UUID) models.Bill {
	return models.Bill{ID: uuid.New(), OwnerID: ownerID}
}

func TestProcessFriendsUpdatedRequeuesMatchingBills(t *testing.T) {
	userID := uuid.New()
	friendA := uuid.New()
	friendB := uuid.New()
	billOne := ownedBill(userID)
	billTwo := ownedBill(userID)
	billRepo := &fakeBillRepo{byFriend: map[uuid.UUID][]models.Bill{
		friendA: {billOne},
		friendB: {billTwo},
	}}
	svc, emitter := newTestService(billRepo, 200)

	err := svc.ProcessFriendsUpdated(context.Background(), payloads.FriendsUpdatedEvent{
		UserID:         userID,
		AddedFriendIDs: []uuid.UUID{friendA, friendB},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []uuid.UUID{billOne.ID, billTwo.ID}, billRepo.bumped)
	require.Len(t, emitter.events, 2)
	for _, event := range emitter.events {
		assert.Equal(t, enums.EventBillUpdated, event.EventType)
		payload, ok := event.Data.(payloads.BillChangedEvent)
		require.True(t, ok)
		assert.Equal(t, userID, payload.OwnerID)
	}
}

func TestProcessFriendsUpdatedHonorsScanLimitAcrossFriends(t *testing.T) {
	userID := uuid.New()
	friendA := uuid.New()
	friendB := uuid.New()
	billRepo := &fakeBillRepo{byFriend: map[uuid.UUID][]models.Bill{
		friendA: {ownedBill(userID), ownedBill(userID)},
		friendB: {ownedBill(userID), ownedBill(userID), ownedBill(userID)},
	}}
	svc, emitter := newTestService(billRepo, 2)

	err := svc.ProcessFriendsUpdated(context.Background(), payloads.FriendsUpdatedEvent{
		UserID:         userID,
		AddedFriendIDs: []uuid.UUID{friendA, friendB},
	})
	require.NoError(t, err)

	assert.Len(t, billRepo.bumped, 2, "second friend's scan should be cut off")
	assert.Len(t, emitter.events, 2)
}

func TestProcessFriendsUpdatedNoAddedFriendsIsNoOp(t *testing.T) {
	billRepo := &fakeBillRepo{}
	svc, emitter := newTestService(billRepo, 200)

	err := svc.ProcessFriendsUpdated(context.Background(), payloads.FriendsUpdatedEvent{
		UserID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Empty(t, billRepo.bumped)
	assert.Empty(t, emitter.events)
}

func TestProcessFriendsUpdatedSkipsSelfAndNilIDs(t *testing.T) {
	userID := uuid.New()
	billRepo := &fakeBillRepo{byFriend: map[uuid.UUID][]models.Bill{
		userID: {ownedBill(userID)},
	}}
	svc, emitter := newTestService(billRepo, 200)

	err := svc.ProcessFriendsUpdated(context.Background(), payloads.FriendsUpdatedEvent{
		UserID:         userID,
		AddedFriendIDs: []uuid.UUID{userID, uuid.Nil},
	})
	require.NoError(t, err)
	assert.Empty(t, billRepo.bumped)
	assert.Empty(t, emitter.events)
}

func TestProcessFriendsUpdatedCoalescesOntoPendingEvents(t *testing.T) {
	userID := uuid.New()
	friendA := uuid.New()
	friendB := uuid.New()
	shared := ownedBill(userID)
	billRepo := &fakeBillRepo{byFriend: map[uuid.UUID][]models.Bill{
		friendA: {shared},
		friendB: {shared},
	}}
	svc, emitter := newTestService(billRepo, 200)

	err := svc.ProcessFriendsUpdated(context.Background(), payloads.FriendsUpdatedEvent{
		UserID:         userID,
		AddedFriendIDs: []uuid.UUID{friendA, friendB},
	})
	require.NoError(t, err)

	assert.Len(t, billRepo.bumped, 2, "link version still bumps per match")
	assert.Len(t, emitter.events, 1, "duplicate requeue collapses onto the pending event")
}
