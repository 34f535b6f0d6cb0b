package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lakumart/groupbuy-server-go/internal/client"
	"github.com/lakumart/groupbuy-server-go/internal/model"
)

type lifecycleFixture struct {
	sessions     *mockSessionRepo
	participants *mockParticipantRepo
	payments     *mockPaymentRecordRepo
	payment      *mockPaymentClient
	warehouse    *mockWarehouseClient
	orders       *mockOrderClient
	wallet       *mockWalletClient
	creator      *mockSessionCreator
	svc          *LifecycleService
}

func newLifecycleFixture(botUserID string) *lifecycleFixture {
	f := &lifecycleFixture{
		sessions:     new(mockSessionRepo),
		participants: new(mockParticipantRepo),
		payments:     new(mockPaymentRecordRepo),
		payment:      new(mockPaymentClient),
		warehouse:    new(mockWarehouseClient),
		orders:       new(mockOrderClient),
		wallet:       new(mockWalletClient),
		creator:      new(mockSessionCreator),
	}
	botFiller := NewBotFiller(f.sessions, f.participants, f.payments, botUserID)
	orchestrator := NewWarehouseOrchestrator(f.sessions, f.participants, f.warehouse)
	f.svc = NewLifecycleService(
		f.sessions, f.participants, f.payments,
		botFiller, orchestrator,
		f.payment, f.wallet, f.orders, f.creator,
	)
	return f
}

func expiredSession(id string, targetMoq int) model.Session {
	s := testSession(id, targetMoq)
	s.EndTime = time.Now().Add(-time.Minute)
	return *s
}

func (f *lifecycleFixture) expectNextDaySpawn() {
	f.creator.On("Create", mock.Anything, mock.MatchedBy(func(in CreateSessionInput) bool {
		return in.ProductID == "prod-1" && in.TargetMoq == 100 &&
			in.EndTime.After(time.Now()) && in.SessionCode != ""
	})).Return(testSession("sess-next", 100), nil)
}

func TestProcessExpiredFailsUnderfilledSession(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	s := expiredSession("sess-1", 100)
	f.sessions.On("FindExpired", ctx).Return([]model.Session{s}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{ParticipantCount: 3, TotalQuantity: 40}, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusFailed).Return(true, nil)
	f.payment.On("RefundSession", ctx, "sess-1", mock.Anything).Return(nil)
	f.expectNextDaySpawn()

	outcomes, err := f.svc.ProcessExpired(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, outcomeFailed, outcomes[0].Result)

	f.payment.AssertExpectations(t)
	f.creator.AssertExpectations(t)
}

func TestProcessExpiredSkipsAlreadyClaimedSession(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	s := expiredSession("sess-1", 100)
	s.Status = model.SessionStatusMoqReached
	f.sessions.On("FindExpired", ctx).Return([]model.Session{s}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{TotalQuantity: 100}, nil)
	// Another sweep already owns it: conditional update moves nothing.
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusMoqReached).Return(false, nil)

	outcomes, err := f.svc.ProcessExpired(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, outcomeSkipped, outcomes[0].Result)

	f.orders.AssertNotCalled(t, "BulkCreate", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessExpiredOutOfStockParksSession(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	s := expiredSession("sess-1", 100)
	real := []model.Participant{
		{ID: "p1", SessionID: "sess-1", UserID: "u1", Quantity: 100, UnitPrice: 150000},
	}

	f.sessions.On("FindExpired", ctx).Return([]model.Session{s}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{TotalQuantity: 100}, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusMoqReached).Return(true, nil)
	f.participants.On("ListReal", ctx, "sess-1").Return(real, nil)
	f.warehouse.On("FulfillBundleDemand", ctx, "prod-1", (*string)(nil), 100, 12).
		Return(&client.FulfillResult{HasStock: false, GrosirUnitsNeeded: 9}, nil)
	f.sessions.On("SetWarehouseInfo", ctx, "sess-1", mock.MatchedBy(func(p model.WarehousePatch) bool {
		return !p.HasStock && p.GrosirUnitsNeeded == 9 && p.FactoryNotifySent
	})).Return(nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusPendingStock).Return(true, nil)
	f.expectNextDaySpawn()

	outcomes, err := f.svc.ProcessExpired(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, outcomePendingStock, outcomes[0].Result)

	f.orders.AssertNotCalled(t, "BulkCreate", mock.Anything, mock.Anything, mock.Anything)
	f.wallet.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestProcessExpiredConfirmsWithBotAndRefunds(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	// 100-unit target, 20 real units: the bot adds 5 to reach 25% fill and
	// everyone settles at the tier-25 price, so no refunds are due.
	s := expiredSession("sess-1", 100)
	s.Status = model.SessionStatusMoqReached // manually confirmed earlier, settlement still pending
	real := []model.Participant{
		{ID: "p1", SessionID: "sess-1", UserID: "u1", Quantity: 20, UnitPrice: 150000},
	}
	bot := model.Participant{ID: "bot-p1", SessionID: "sess-1", UserID: "bot-user", Quantity: 5, IsBot: true}

	f.sessions.On("FindExpired", ctx).Return([]model.Session{s}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{TotalQuantity: 20}, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusMoqReached).Return(true, nil)

	f.participants.On("ListReal", ctx, "sess-1").Return(real, nil)
	f.warehouse.On("FulfillBundleDemand", ctx, "prod-1", (*string)(nil), 20, 12).
		Return(&client.FulfillResult{HasStock: true}, nil)
	f.sessions.On("SetWarehouseInfo", ctx, "sess-1", mock.Anything).Return(nil)

	// Settlement bot fill
	f.participants.On("Create", ctx, mock.MatchedBy(func(p model.CreateParticipantParams) bool {
		return p.IsBot && p.Quantity == 5
	})).Return(&bot, nil)
	f.sessions.On("SetBotInfo", ctx, "sess-1", "bot-p1", 5).Return(nil)
	f.payments.On("CreateBotRecord", ctx, mock.Anything).Return(&model.PaymentRecord{ID: "pay-bot"}, nil)

	f.participants.On("ListBySession", ctx, "sess-1").Return(append(real, bot), nil)
	f.sessions.On("SetTier", ctx, "sess-1", model.Tier25).Return(nil)

	// Bot is removed before orders are cut.
	f.participants.On("DeleteByID", ctx, "bot-p1").Return(nil)
	f.sessions.On("ClearBotInfo", ctx, "sess-1").Return(nil)

	f.payments.On("HasPaid", ctx, "p1").Return(true, nil)
	f.orders.On("BulkCreate", ctx, "sess-1", mock.MatchedBy(func(lines []client.OrderLine) bool {
		return len(lines) == 1 && lines[0].ParticipantID == "p1" && lines[0].UnitPrice == 150000
	})).Return(1, nil)
	f.expectNextDaySpawn()

	outcomes, err := f.svc.ProcessExpired(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, outcomeConfirmed, outcomes[0].Result)
	assert.Equal(t, 1, outcomes[0].OrdersCreated)

	f.wallet.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	f.participants.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestProcessExpiredIssuesTierRefunds(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	// 50 of 100 units: tier 50 at 140000, so each real buyer gets back
	// 10000 per unit.
	s := expiredSession("sess-1", 100)
	real := []model.Participant{
		{ID: "p1", SessionID: "sess-1", UserID: "u1", Quantity: 30, UnitPrice: 150000},
		{ID: "p2", SessionID: "sess-1", UserID: "u2", Quantity: 20, UnitPrice: 150000},
	}

	f.sessions.On("FindExpired", ctx).Return([]model.Session{s}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{TotalQuantity: 100}, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusMoqReached).Return(true, nil)
	f.participants.On("ListReal", ctx, "sess-1").Return(real, nil)
	f.warehouse.On("FulfillBundleDemand", ctx, "prod-1", (*string)(nil), 50, 12).
		Return(&client.FulfillResult{HasStock: true}, nil)
	f.sessions.On("SetWarehouseInfo", ctx, "sess-1", mock.Anything).Return(nil)
	f.participants.On("ListBySession", ctx, "sess-1").Return(real, nil)
	f.sessions.On("SetTier", ctx, "sess-1", model.Tier50).Return(nil)

	f.wallet.On("Credit", ctx, mock.MatchedBy(func(p client.CreditParams) bool {
		return p.UserID == "u1" && p.Amount == 300000 &&
			p.Reference == "GROUP_REFUND_sess-1_p1"
	})).Return(nil)
	f.wallet.On("Credit", ctx, mock.MatchedBy(func(p client.CreditParams) bool {
		return p.UserID == "u2" && p.Amount == 200000 &&
			p.Reference == "GROUP_REFUND_sess-1_p2"
	})).Return(nil)

	f.payments.On("HasPaid", ctx, "p1").Return(true, nil)
	f.payments.On("HasPaid", ctx, "p2").Return(true, nil)
	f.orders.On("BulkCreate", ctx, "sess-1", mock.MatchedBy(func(lines []client.OrderLine) bool {
		return len(lines) == 2 && lines[0].UnitPrice == 140000
	})).Return(2, nil)
	f.expectNextDaySpawn()

	outcomes, err := f.svc.ProcessExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcomeConfirmed, outcomes[0].Result)

	f.wallet.AssertExpectations(t)
}

func TestProcessExpiredFiltersUnpaidParticipants(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	s := expiredSession("sess-1", 100)
	real := []model.Participant{
		{ID: "p1", SessionID: "sess-1", UserID: "u1", Quantity: 60},
		{ID: "p2", SessionID: "sess-1", UserID: "u2", Quantity: 40},
	}

	f.sessions.On("FindExpired", ctx).Return([]model.Session{s}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{TotalQuantity: 100}, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusMoqReached).Return(true, nil)
	f.participants.On("ListReal", ctx, "sess-1").Return(real, nil)
	f.warehouse.On("FulfillBundleDemand", ctx, "prod-1", (*string)(nil), 100, 12).
		Return(&client.FulfillResult{HasStock: true}, nil)
	f.sessions.On("SetWarehouseInfo", ctx, "sess-1", mock.Anything).Return(nil)
	f.participants.On("ListBySession", ctx, "sess-1").Return(real, nil)
	f.sessions.On("SetTier", ctx, "sess-1", model.Tier100).Return(nil)
	f.wallet.On("Credit", ctx, mock.Anything).Return(nil)

	f.payments.On("HasPaid", ctx, "p1").Return(true, nil)
	f.payments.On("HasPaid", ctx, "p2").Return(false, nil)
	f.orders.On("BulkCreate", ctx, "sess-1", mock.MatchedBy(func(lines []client.OrderLine) bool {
		return len(lines) == 1 && lines[0].ParticipantID == "p1"
	})).Return(1, nil)
	f.expectNextDaySpawn()

	outcomes, err := f.svc.ProcessExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcomeConfirmed, outcomes[0].Result)
	f.orders.AssertExpectations(t)
}

func TestProcessExpiredFailsWhenNobodyPaid(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	s := expiredSession("sess-1", 100)
	real := []model.Participant{
		{ID: "p1", SessionID: "sess-1", UserID: "u1", Quantity: 100},
	}

	f.sessions.On("FindExpired", ctx).Return([]model.Session{s}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{TotalQuantity: 100}, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusMoqReached).Return(true, nil)
	f.participants.On("ListReal", ctx, "sess-1").Return(real, nil)
	f.warehouse.On("FulfillBundleDemand", ctx, "prod-1", (*string)(nil), 100, 12).
		Return(&client.FulfillResult{HasStock: true}, nil)
	f.sessions.On("SetWarehouseInfo", ctx, "sess-1", mock.Anything).Return(nil)
	f.participants.On("ListBySession", ctx, "sess-1").Return(real, nil)
	f.sessions.On("SetTier", ctx, "sess-1", model.Tier100).Return(nil)
	f.payments.On("HasPaid", ctx, "p1").Return(false, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusFailed).Return(true, nil)

	outcomes, err := f.svc.ProcessExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcomeFailed, outcomes[0].Result)

	// No next-day spawn for settlement-time payment failures
	f.creator.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "BulkCreate", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessExpiredRevertsOnOrderFailure(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	s := expiredSession("sess-1", 100)
	real := []model.Participant{
		{ID: "p1", SessionID: "sess-1", UserID: "u1", Quantity: 100},
	}

	f.sessions.On("FindExpired", ctx).Return([]model.Session{s}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{TotalQuantity: 100}, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusMoqReached).Return(true, nil)
	f.participants.On("ListReal", ctx, "sess-1").Return(real, nil)
	f.warehouse.On("FulfillBundleDemand", ctx, "prod-1", (*string)(nil), 100, 12).
		Return(&client.FulfillResult{HasStock: true}, nil)
	f.sessions.On("SetWarehouseInfo", ctx, "sess-1", mock.Anything).Return(nil)
	f.participants.On("ListBySession", ctx, "sess-1").Return(real, nil)
	f.sessions.On("SetTier", ctx, "sess-1", model.Tier100).Return(nil)
	f.payments.On("HasPaid", ctx, "p1").Return(true, nil)
	f.orders.On("BulkCreate", ctx, "sess-1", mock.Anything).
		Return(0, errors.New("order service down"))
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusForming).Return(true, nil)

	outcomes, err := f.svc.ProcessExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcomeError, outcomes[0].Result)
	assert.Contains(t, outcomes[0].Error, "order service down")

	f.sessions.AssertCalled(t, "TryUpdateStatus", ctx, "sess-1", model.SessionStatusForming)
	f.creator.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProcessNearExpiring(t *testing.T) {
	ctx := context.Background()

	t.Run("fills underfilled sessions", func(t *testing.T) {
		f := newLifecycleFixture("bot-user")

		s := *testSession("sess-1", 100)
		s.EndTime = time.Now().Add(9 * time.Minute)
		real := []model.Participant{
			{ID: "p1", SessionID: "sess-1", UserID: "u1", Quantity: 10},
		}

		f.sessions.On("FindNearingExpiration", ctx, mock.Anything, mock.Anything).
			Return([]model.Session{s}, nil)
		f.participants.On("ListReal", ctx, "sess-1").Return(real, nil)
		f.participants.On("Create", ctx, mock.MatchedBy(func(p model.CreateParticipantParams) bool {
			return p.IsBot && p.Quantity == 15
		})).Return(&model.Participant{ID: "bot-p1", IsBot: true}, nil)
		f.sessions.On("SetBotInfo", ctx, "sess-1", "bot-p1", 15).Return(nil)
		f.payments.On("CreateBotRecord", ctx, mock.MatchedBy(func(p model.CreateBotPaymentParams) bool {
			return p.Reference == "BOT-PREEMPTIVE-sess-1-bot-p1"
		})).Return(&model.PaymentRecord{ID: "pay-1"}, nil)

		require.NoError(t, f.svc.ProcessNearExpiring(ctx))
		f.participants.AssertExpectations(t)
	})

	t.Run("leaves sessions at 25% alone", func(t *testing.T) {
		f := newLifecycleFixture("bot-user")

		s := *testSession("sess-1", 100)
		real := []model.Participant{
			{ID: "p1", SessionID: "sess-1", UserID: "u1", Quantity: 25},
		}

		f.sessions.On("FindNearingExpiration", ctx, mock.Anything, mock.Anything).
			Return([]model.Session{s}, nil)
		f.participants.On("ListReal", ctx, "sess-1").Return(real, nil)

		require.NoError(t, f.svc.ProcessNearExpiring(ctx))
		f.participants.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestManualExpire(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	s := testSession("sess-1", 100)
	s.EndTime = time.Now().Add(time.Hour)
	f.sessions.On("FindByID", ctx, "sess-1").Return(s, nil)
	f.sessions.On("SetEndTime", ctx, "sess-1", mock.MatchedBy(func(tm time.Time) bool {
		return tm.Before(time.Now())
	})).Return(nil)

	expired := expiredSession("sess-1", 100)
	f.sessions.On("FindExpired", ctx).Return([]model.Session{expired}, nil)
	f.participants.On("Stats", ctx, "sess-1").
		Return(&model.ParticipantStats{TotalQuantity: 10}, nil)
	f.sessions.On("TryUpdateStatus", ctx, "sess-1", model.SessionStatusFailed).Return(true, nil)
	f.payment.On("RefundSession", ctx, "sess-1", mock.Anything).Return(nil)
	f.expectNextDaySpawn()

	outcome, err := f.svc.ManualExpire(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, outcomeFailed, outcome.Result)
}

func TestManualExpireRejectsSettledSession(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture("bot-user")

	s := testSession("sess-1", 100)
	s.Status = model.SessionStatusFailed
	f.sessions.On("FindByID", ctx, "sess-1").Return(s, nil)

	_, err := f.svc.ManualExpire(ctx, "sess-1")
	require.Error(t, err)
}
