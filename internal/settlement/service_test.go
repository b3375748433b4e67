package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/danielortuno/splittab-backend/internal/bills"
	"github.com/danielortuno/splittab-backend/internal/ledger"
	"github.com/danielortuno/splittab-backend/internal/split"
	"github.com/danielortuno/splittab-backend/pkg/db/models"
	dbtypes "github.com/danielortuno/splittab-backend/pkg/db/types"
	"github.com/danielortuno/splittab-backend/pkg/enums"
	pkgerrors "github.com/danielortuno/splittab-backend/pkg/errors"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

var (
	callerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	friendID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	eventID  = uuid.MustParse("99999999-9999-9999-9999-999999999999")
)

type fakeLedgerRepo struct {
	bills         map[uuid.UUID]*models.Bill
	friendBals    map[string]*models.FriendBalance
	eventPairBals map[string]*models.EventPairBalance
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		bills:         map[uuid.UUID]*models.Bill{},
		friendBals:    map[string]*models.FriendBalance{},
		eventPairBals: map[string]*models.EventPairBalance{},
	}
}

func (f *fakeLedgerRepo) WithTx(tx *gorm.DB) ledger.Repository { return f }

func (f *fakeLedgerRepo) FindBillForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	bill, ok := f.bills[id]
	if !ok {
		return nil, nil
	}
	copied := *bill
	return &copied, nil
}

func (f *fakeLedgerRepo) UpdateBillFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	bill, ok := f.bills[id]
	if !ok {
		return nil
	}
	if v, ok := fields["settled_person_ids"]; ok {
		bill.SettledPersonIDs = v.(pq.StringArray)
	}
	if v, ok := fields["unsettled_participant_ids"]; ok {
		bill.UnsettledParticipantIDs = v.(dbtypes.UUIDArray)
	}
	if v, ok := fields["processed_balances"]; ok {
		bill.ProcessedBalances = v.(dbtypes.BalanceMap)
	}
	if v, ok := fields["processed_event_balances"]; ok {
		bill.ProcessedEventBalances = v.(dbtypes.BalanceMap)
	}
	return nil
}

func (f *fakeLedgerRepo) FindFriendBalance(ctx context.Context, id string) (*models.FriendBalance, error) {
	return f.friendBals[id], nil
}

func (f *fakeLedgerRepo) FindFriendBalanceForUpdate(ctx context.Context, id string) (*models.FriendBalance, error) {
	return f.friendBals[id], nil
}

func (f *fakeLedgerRepo) SaveFriendBalance(ctx context.Context, balance *models.FriendBalance) error {
	f.friendBals[balance.ID] = balance
	return nil
}

func (f *fakeLedgerRepo) ListFriendBalancesForUser(ctx context.Context, userID uuid.UUID) ([]models.FriendBalance, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) FindEventPairBalance(ctx context.Context, id string) (*models.EventPairBalance, error) {
	return f.eventPairBals[id], nil
}

func (f *fakeLedgerRepo) FindEventPairBalanceForUpdate(ctx context.Context, id string) (*models.EventPairBalance, error) {
	return f.eventPairBals[id], nil
}

func (f *fakeLedgerRepo) SaveEventPairBalance(ctx context.Context, balance *models.EventPairBalance) error {
	f.eventPairBals[balance.ID] = balance
	return nil
}

func (f *fakeLedgerRepo) ListEventPairBalances(ctx context.Context, eventID uuid.UUID) ([]models.EventPairBalance, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) FindEventBalance(ctx context.Context, eventID uuid.UUID) (*models.EventBalance, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) UpsertEventBalance(ctx context.Context, balance *models.EventBalance) error {
	return nil
}

func (f *fakeLedgerRepo) DeleteEventBalance(ctx context.Context, eventID uuid.UUID) error {
	return nil
}

type fakeSettlementRepo struct {
	rows map[uuid.UUID]*models.Settlement
}

func (f *fakeSettlementRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeSettlementRepo) Create(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == uuid.Nil {
		settlement.ID = uuid.New()
	}
	f.rows[settlement.ID] = settlement
	return nil
}

func (f *fakeSettlementRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	return f.rows[id], nil
}

func (f *fakeSettlementRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Settlement, error) {
	return nil, nil
}

func (f *fakeSettlementRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(f.rows, id)
	return nil
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fixture struct {
	svc     Service
	ledger  *fakeLedgerRepo
	repo    *fakeSettlementRepo
	emitter *fakeEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledgerRepo := newFakeLedgerRepo()
	repo := &fakeSettlementRepo{rows: map[uuid.UUID]*models.Settlement{}}
	emitter := &fakeEmitter{}
	svc := &service{
		repo:   repo,
		ledger: ledgerRepo,
		tx:     fakeTx{},
		outbox: emitter,
	}
	return &fixture{svc: svc, ledger: ledgerRepo, repo: repo, emitter: emitter}
}

// seedDebt sets up one bill where the friend owes the caller 30, already
// folded into the global friend balance.
func (f *fixture) seedDebt(t *testing.T) *models.Bill {
	t.Helper()
	bill := &models.Bill{
		ID:      uuid.New(),
		OwnerID: callerID,
		PayerID: callerID,
		People: dbtypes.People{
			{LocalID: dbtypes.LocalIDForUser(callerID)},
			{LocalID: dbtypes.LocalIDForUser(friendID)},
		},
		PersonTotals: dbtypes.BalanceMap{
			dbtypes.LocalIDForUser(friendID): 30,
		},
		UnsettledParticipantIDs: dbtypes.UUIDArray{friendID},
		ProcessedBalances:       dbtypes.BalanceMap{friendID.String(): 30},
	}
	f.ledger.bills[bill.ID] = bill

	first, second := split.SortedPair(callerID, friendID)
	f.ledger.friendBals[split.FriendBalanceID(callerID, friendID)] = &models.FriendBalance{
		ID:               split.FriendBalanceID(callerID, friendID),
		Participants:     pq.StringArray{first.String(), second.String()},
		Balance:          30,
		UnsettledBillIDs: dbtypes.UUIDArray{bill.ID},
	}
	return bill
}

func TestSettleClearsBalanceAndBills(t *testing.T) {
	f := newFixture(t)
	bill := f.seedDebt(t)

	result, err := f.svc.Settle(context.Background(), callerID, friendID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.SettlementID == nil {
		t.Fatal("expected a settlement record")
	}
	if result.BillsSettled != 1 || result.AmountSettled != 30 {
		t.Fatalf("unexpected result %+v", result)
	}

	balance := f.ledger.friendBals[split.FriendBalanceID(callerID, friendID)]
	if balance.Balance != 0 || len(balance.UnsettledBillIDs) != 0 {
		t.Fatalf("aggregate not zeroed: %+v", balance)
	}

	stored := f.ledger.bills[bill.ID]
	if !stored.IsLocalSettled(dbtypes.LocalIDForUser(friendID)) {
		t.Fatal("debtor's local id must be marked settled")
	}
	if stored.UnsettledParticipantIDs.Contains(friendID) {
		t.Fatal("debtor must leave the unsettled participant set")
	}
	// Global settle zeroes the global token in the same write so the
	// pipeline sees a zero delta instead of re-applying the settled amount.
	if stored.ProcessedBalances.Get(friendID.String()) != 0 {
		t.Fatalf("global token must be zeroed, got %v", stored.ProcessedBalances.Get(friendID.String()))
	}

	settlement := f.repo.rows[*result.SettlementID]
	if settlement.FromUserID != friendID || settlement.ToUserID != callerID {
		t.Fatalf("unexpected roles %+v", settlement)
	}
	if len(settlement.SettledBillIDs) != 1 || settlement.SettledBillIDs[0] != bill.ID {
		t.Fatalf("unexpected settled bills %v", settlement.SettledBillIDs)
	}
	if len(f.emitter.events) != 1 {
		t.Fatalf("expected one bill_updated event, got %d", len(f.emitter.events))
	}
}

func TestSettleForEventZeroesOnlyEventToken(t *testing.T) {
	f := newFixture(t)
	bill := f.seedDebt(t)
	eid := eventID
	bill.EventID = &eid
	bill.ProcessedEventBalances = dbtypes.BalanceMap{friendID.String(): 30}

	first, second := split.SortedPair(callerID, friendID)
	pairID := split.EventPairBalanceID(eventID, callerID, friendID)
	f.ledger.eventPairBals[pairID] = &models.EventPairBalance{
		ID:               pairID,
		EventID:          eventID,
		Participants:     pq.StringArray{first.String(), second.String()},
		Balance:          30,
		UnsettledBillIDs: dbtypes.UUIDArray{bill.ID},
	}

	result, err := f.svc.SettleForEvent(context.Background(), callerID, friendID, eventID)
	if err != nil {
		t.Fatalf("settle for event: %v", err)
	}
	if result.SettlementID == nil || result.BillsSettled != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	stored := f.ledger.bills[bill.ID]
	if stored.ProcessedEventBalances.Get(friendID.String()) != 0 {
		t.Fatal("event token must be zeroed")
	}
	// Flow-through: the global token stays put so the pipeline applies the
	// global reduction exactly once, from the settled-set change.
	if stored.ProcessedBalances.Get(friendID.String()) != 30 {
		t.Fatalf("global token must be untouched, got %v", stored.ProcessedBalances.Get(friendID.String()))
	}

	pair := f.ledger.eventPairBals[pairID]
	if pair.Balance != 0 || len(pair.UnsettledBillIDs) != 0 {
		t.Fatalf("event aggregate not zeroed: %+v", pair)
	}
	if f.repo.rows[*result.SettlementID].EventID == nil {
		t.Fatal("settlement must record the event id")
	}
}

func TestSettleNothingToSettle(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Settle(context.Background(), callerID, friendID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.SettlementID != nil || result.BillsSettled != 0 || result.AmountSettled != 0 {
		t.Fatalf("expected zero-result no-op, got %+v", result)
	}
	if len(f.repo.rows) != 0 {
		t.Fatal("no settlement record on a no-op")
	}
}

func TestSettleRejectsSelf(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Settle(context.Background(), callerID, callerID)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSettleSkipsAlreadySettledBills(t *testing.T) {
	f := newFixture(t)
	bill := f.seedDebt(t)
	bill.SettledPersonIDs = pq.StringArray{dbtypes.LocalIDForUser(friendID)}

	result, err := f.svc.Settle(context.Background(), callerID, friendID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.BillsSettled != 0 {
		t.Fatalf("already-settled bill must be skipped, got %+v", result)
	}
	// The aggregate still zeroes; its membership entry was stale.
	balance := f.ledger.friendBals[split.FriendBalanceID(callerID, friendID)]
	if balance.Balance != 0 {
		t.Fatalf("expected aggregate zeroed, got %v", balance.Balance)
	}
	// The skipped bill's token must be zeroed alongside the aggregate: a
	// stale token would hand the pipeline a second delta to apply.
	stored := f.ledger.bills[bill.ID]
	if stored.ProcessedBalances.Get(friendID.String()) != 0 {
		t.Fatalf("skipped bill's global token must be zeroed, got %v", stored.ProcessedBalances.Get(friendID.String()))
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("skipped bill must not re-emit, got %d events", len(f.emitter.events))
	}
}

// pipelineBillRepo serves the ledger pipeline from the settlement fixture's
// bill map so both services observe the same rows.
type pipelineBillRepo struct {
	bills.Repository
	ledger *fakeLedgerRepo
}

func (p *pipelineBillRepo) WithTx(tx *gorm.DB) bills.Repository { return p }

func (p *pipelineBillRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	bill, ok := p.ledger.bills[id]
	if !ok {
		return nil, nil
	}
	copied := *bill
	return &copied, nil
}

func (p *pipelineBillRepo) ListByEvent(ctx context.Context, id uuid.UUID, limit int) ([]models.Bill, error) {
	out := []models.Bill{}
	for _, bill := range p.ledger.bills {
		if bill.EventID != nil && *bill.EventID == id {
			out = append(out, *bill)
		}
	}
	return out, nil
}

type pipelineFriends struct{}

func (pipelineFriends) LinkedFriendSet(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	return map[uuid.UUID]bool{callerID: true, friendID: true}, nil
}

func newPipeline(t *testing.T, f *fixture) ledger.Service {
	t.Helper()
	svc, err := ledger.NewService(ledger.ServiceParams{
		Repo:      f.ledger,
		BillsRepo: &pipelineBillRepo{ledger: f.ledger},
		Friends:   pipelineFriends{},
		DB:        fakeTx{},
	})
	if err != nil {
		t.Fatalf("build ledger service: %v", err)
	}
	return svc
}

// An event settle leaves the global reduction to the pipeline via the emitted
// bill_updated. A global settle landing before that delivery skips the bill
// but zeroes the aggregate, so the delivery must find a zero delta rather
// than re-apply the settled amount.
func TestGlobalSettleAfterEventSettleSurvivesDelivery(t *testing.T) {
	f := newFixture(t)
	bill := f.seedDebt(t)
	eid := eventID
	bill.EventID = &eid
	bill.ProcessedEventBalances = dbtypes.BalanceMap{friendID.String(): 30}

	first, second := split.SortedPair(callerID, friendID)
	pairID := split.EventPairBalanceID(eventID, callerID, friendID)
	f.ledger.eventPairBals[pairID] = &models.EventPairBalance{
		ID:               pairID,
		EventID:          eventID,
		Participants:     pq.StringArray{first.String(), second.String()},
		Balance:          30,
		UnsettledBillIDs: dbtypes.UUIDArray{bill.ID},
	}

	ctx := context.Background()
	if _, err := f.svc.SettleForEvent(ctx, callerID, friendID, eventID); err != nil {
		t.Fatalf("settle for event: %v", err)
	}

	result, err := f.svc.Settle(ctx, callerID, friendID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.BillsSettled != 0 {
		t.Fatalf("bill was marked settled by the event settle, got %+v", result)
	}

	stored := f.ledger.bills[bill.ID]
	if stored.ProcessedBalances.Get(friendID.String()) != 0 {
		t.Fatalf("global token must be zeroed, got %v", stored.ProcessedBalances.Get(friendID.String()))
	}

	// Deliver the bill_updated the event settle left in flight.
	pipeline := newPipeline(t, f)
	delivered := 0
	for _, event := range f.emitter.events {
		if event.EventType != enums.EventBillUpdated {
			continue
		}
		payload := event.Data.(payloads.BillChangedEvent)
		if err := pipeline.ProcessBillChange(ctx, payload.BillID); err != nil {
			t.Fatalf("process bill change: %v", err)
		}
		delivered++
	}
	if delivered != 1 {
		t.Fatalf("expected one pending delivery, got %d", delivered)
	}

	balance := f.ledger.friendBals[split.FriendBalanceID(callerID, friendID)]
	if balance.Balance != 0 {
		t.Fatalf("global balance must stay zero after delivery, got %v", balance.Balance)
	}
	if len(balance.UnsettledBillIDs) != 0 {
		t.Fatalf("no bills may rejoin the aggregate, got %v", balance.UnsettledBillIDs)
	}
}

func TestReverseSettlementRoundTrip(t *testing.T) {
	f := newFixture(t)
	bill := f.seedDebt(t)

	result, err := f.svc.Settle(context.Background(), callerID, friendID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	reversed, err := f.svc.ReverseSettlement(context.Background(), friendID, *result.SettlementID)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if !reversed.Reversed || reversed.BillsReversed != 1 {
		t.Fatalf("unexpected result %+v", reversed)
	}

	stored := f.ledger.bills[bill.ID]
	if stored.IsLocalSettled(dbtypes.LocalIDForUser(friendID)) {
		t.Fatal("debtor's local id must be restored")
	}
	if !stored.UnsettledParticipantIDs.Contains(friendID) {
		t.Fatal("debtor must rejoin the unsettled participant set")
	}
	if _, ok := f.repo.rows[*result.SettlementID]; ok {
		t.Fatal("settlement record must be deleted")
	}
}

func TestReverseSettlementPermissions(t *testing.T) {
	f := newFixture(t)
	f.seedDebt(t)

	result, err := f.svc.Settle(context.Background(), callerID, friendID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	stranger := uuid.New()
	_, err = f.svc.ReverseSettlement(context.Background(), stranger, *result.SettlementID)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	_, err = f.svc.ReverseSettlement(context.Background(), callerID, uuid.New())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
