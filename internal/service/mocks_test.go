package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/lakumart/groupbuy-server-go/internal/client"
	"github.com/lakumart/groupbuy-server-go/internal/model"
	"github.com/lakumart/groupbuy-server-go/internal/repository"
)

// Mock session repository
type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindByCode(ctx context.Context, code string) (*model.Session, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) List(ctx context.Context, filters model.SessionFilters) ([]model.Session, int, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]model.Session), args.Int(1), args.Error(2)
}

func (m *mockSessionRepo) Update(ctx context.Context, id string, patch model.SessionPatch) (*model.Session, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) TryUpdateStatus(ctx context.Context, id string, status model.SessionStatus) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) SetEndTime(ctx context.Context, id string, endTime time.Time) error {
	args := m.Called(ctx, id, endTime)
	return args.Error(0)
}

func (m *mockSessionRepo) SetBotInfo(ctx context.Context, id string, botParticipantID string, botQuantity int) error {
	args := m.Called(ctx, id, botParticipantID, botQuantity)
	return args.Error(0)
}

func (m *mockSessionRepo) ClearBotInfo(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionRepo) SetWarehouseInfo(ctx context.Context, id string, patch model.WarehousePatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *mockSessionRepo) SetTier(ctx context.Context, id string, tier model.Tier) error {
	args := m.Called(ctx, id, tier)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkProductionStarted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionRepo) FindExpired(ctx context.Context) ([]model.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindNearingExpiration(ctx context.Context, from, to time.Time) ([]model.Session, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return m
}

// Mock participant repository
type mockParticipantRepo struct {
	mock.Mock
}

func (m *mockParticipantRepo) Create(ctx context.Context, params model.CreateParticipantParams) (*model.Participant, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Participant), args.Error(1)
}

func (m *mockParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Participant), args.Error(1)
}

func (m *mockParticipantRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Participant, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Participant), args.Error(1)
}

func (m *mockParticipantRepo) ListReal(ctx context.Context, sessionID string) ([]model.Participant, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Participant), args.Error(1)
}

func (m *mockParticipantRepo) Stats(ctx context.Context, sessionID string) (*model.ParticipantStats, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ParticipantStats), args.Error(1)
}

func (m *mockParticipantRepo) Count(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *mockParticipantRepo) DeleteUnlinked(ctx context.Context, sessionID, userID string) (int64, error) {
	args := m.Called(ctx, sessionID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockParticipantRepo) DeleteByID(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockParticipantRepo) LinkOrder(ctx context.Context, participantID, orderID string) error {
	args := m.Called(ctx, participantID, orderID)
	return args.Error(0)
}

func (m *mockParticipantRepo) WithTx(tx *sqlx.Tx) repository.ParticipantRepository {
	return m
}

// Mock payment record repository
type mockPaymentRecordRepo struct {
	mock.Mock
}

func (m *mockPaymentRecordRepo) CreateBotRecord(ctx context.Context, params model.CreateBotPaymentParams) (*model.PaymentRecord, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentRecord), args.Error(1)
}

func (m *mockPaymentRecordRepo) ListByParticipant(ctx context.Context, participantID string) ([]model.PaymentRecord, error) {
	args := m.Called(ctx, participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PaymentRecord), args.Error(1)
}

func (m *mockPaymentRecordRepo) HasPaid(ctx context.Context, participantID string) (bool, error) {
	args := m.Called(ctx, participantID)
	return args.Bool(0), args.Error(1)
}

func (m *mockPaymentRecordRepo) WithTx(tx *sqlx.Tx) repository.PaymentRecordRepository {
	return m
}

// Mock peer service clients
type mockPaymentClient struct {
	mock.Mock
}

func (m *mockPaymentClient) CreateEscrow(ctx context.Context, params client.EscrowParams) (*client.EscrowResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.EscrowResult), args.Error(1)
}

func (m *mockPaymentClient) ReleaseEscrow(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockPaymentClient) RefundSession(ctx context.Context, sessionID, reason string) error {
	args := m.Called(ctx, sessionID, reason)
	return args.Error(0)
}

type mockWarehouseClient struct {
	mock.Mock
}

func (m *mockWarehouseClient) GetInventoryStatus(ctx context.Context, productID string, variantID *string) (*client.InventoryStatus, error) {
	args := m.Called(ctx, productID, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.InventoryStatus), args.Error(1)
}

func (m *mockWarehouseClient) FulfillBundleDemand(ctx context.Context, productID string, variantID *string, quantity, wholesaleUnit int) (*client.FulfillResult, error) {
	args := m.Called(ctx, productID, variantID, quantity, wholesaleUnit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.FulfillResult), args.Error(1)
}

type mockOrderClient struct {
	mock.Mock
}

func (m *mockOrderClient) BulkCreate(ctx context.Context, sessionID string, lines []client.OrderLine) (int, error) {
	args := m.Called(ctx, sessionID, lines)
	return args.Int(0), args.Error(1)
}

type mockWalletClient struct {
	mock.Mock
}

func (m *mockWalletClient) Credit(ctx context.Context, params client.CreditParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

type mockSessionCreator struct {
	mock.Mock
}

func (m *mockSessionCreator) Create(ctx context.Context, input CreateSessionInput) (*model.Session, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}
