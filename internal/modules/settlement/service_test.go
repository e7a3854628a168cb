package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/events"
	"github.com/tradegate/tradegate/internal/modules/audit"
)

type recordedOrder struct {
	runID string
	order domain.ExecutedOrder
}

type fakeLedger struct {
	open     []audit.OrderRecord
	latest   map[string]*audit.OrderRecord
	orders   []recordedOrder
	outcomes []audit.TradeOutcome
}

func (l *fakeLedger) OpenOrders(ctx context.Context) ([]audit.OrderRecord, error) {
	return l.open, nil
}

func (l *fakeLedger) LatestOrder(ctx context.Context, orderID string) (*audit.OrderRecord, error) {
	return l.latest[orderID], nil
}

func (l *fakeLedger) RecordOrder(ctx context.Context, runID string, order *domain.ExecutedOrder) error {
	l.orders = append(l.orders, recordedOrder{runID: runID, order: *order})
	return nil
}

func (l *fakeLedger) RecordTradeOutcome(ctx context.Context, rec *audit.TradeOutcome) error {
	l.outcomes = append(l.outcomes, *rec)
	return nil
}

type fakeGovernor struct {
	symbols []string
	pnls    []float64
}

func (g *fakeGovernor) RecordTrade(symbol string, pnl float64) {
	g.symbols = append(g.symbols, symbol)
	g.pnls = append(g.pnls, pnl)
}

type orderBroker struct {
	fetched map[string]*domain.ExecutedOrder
	errs    map[string]error
}

func (b *orderBroker) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.ExecutedOrder, error) {
	return nil, errors.New("not implemented")
}

func (b *orderBroker) GetOrder(ctx context.Context, orderID string) (*domain.ExecutedOrder, error) {
	if err := b.errs[orderID]; err != nil {
		return nil, err
	}
	return b.fetched[orderID], nil
}

func (b *orderBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}

func (b *orderBroker) Health(ctx context.Context) domain.HealthStatus {
	return domain.HealthStatus{Healthy: true}
}

func newTestSettlement(ledger *fakeLedger, broker *orderBroker, governor *fakeGovernor) *Service {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewService(ledger, broker, governor, events.NewManager(log), log)
}

func openRecord(orderID, symbol, status string, filledQty int) audit.OrderRecord {
	return audit.OrderRecord{
		RunID:     "run-1",
		OrderID:   orderID,
		Symbol:    symbol,
		Side:      "buy",
		Qty:       5,
		FilledQty: filledQty,
		Status:    status,
	}
}

func brokerOrder(orderID, symbol string, status domain.OrderStatus, filledQty int) *domain.ExecutedOrder {
	return &domain.ExecutedOrder{
		OrderID:   orderID,
		Symbol:    symbol,
		Side:      domain.OrderSideBuy,
		Qty:       5,
		FilledQty: filledQty,
		Status:    status,
	}
}

func TestPollOpenOrders_RecordsFillTransitionAndOutcome(t *testing.T) {
	ledger := &fakeLedger{
		open: []audit.OrderRecord{openRecord("ord-a", "AAPL", "ACCEPTED", 0)},
	}
	broker := &orderBroker{
		fetched: map[string]*domain.ExecutedOrder{
			"ord-a": brokerOrder("ord-a", "AAPL", domain.OrderStatusFilled, 5),
		},
	}
	governor := &fakeGovernor{}
	svc := newTestSettlement(ledger, broker, governor)

	require.NoError(t, svc.PollOpenOrders(context.Background()))

	require.Len(t, ledger.orders, 1)
	assert.Equal(t, "run-1", ledger.orders[0].runID)
	assert.Equal(t, domain.OrderStatusFilled, ledger.orders[0].order.Status)

	require.Len(t, ledger.outcomes, 1)
	assert.Equal(t, audit.OutcomeFilled, ledger.outcomes[0].Outcome)

	// fills do not touch the governor; only RecordClose settles PnL
	assert.Empty(t, governor.pnls)
}

func TestPollOpenOrders_UnchangedOrderWritesNothing(t *testing.T) {
	ledger := &fakeLedger{
		open: []audit.OrderRecord{openRecord("ord-a", "AAPL", "ACCEPTED", 0)},
	}
	broker := &orderBroker{
		fetched: map[string]*domain.ExecutedOrder{
			"ord-a": brokerOrder("ord-a", "AAPL", domain.OrderStatusAccepted, 0),
		},
	}
	svc := newTestSettlement(ledger, broker, &fakeGovernor{})

	require.NoError(t, svc.PollOpenOrders(context.Background()))
	assert.Empty(t, ledger.orders)
	assert.Empty(t, ledger.outcomes)
}

func TestPollOpenOrders_PartialFillProgressIsRecorded(t *testing.T) {
	// same PARTIAL_FILL status, more shares filled
	ledger := &fakeLedger{
		open: []audit.OrderRecord{openRecord("ord-a", "AAPL", "PARTIAL_FILL", 1)},
	}
	broker := &orderBroker{
		fetched: map[string]*domain.ExecutedOrder{
			"ord-a": brokerOrder("ord-a", "AAPL", domain.OrderStatusPartialFill, 3),
		},
	}
	svc := newTestSettlement(ledger, broker, &fakeGovernor{})

	require.NoError(t, svc.PollOpenOrders(context.Background()))
	require.Len(t, ledger.orders, 1)
	assert.Equal(t, 3, ledger.orders[0].order.FilledQty)
	assert.Empty(t, ledger.outcomes)
}

func TestPollOpenOrders_BrokerFailureSkipsToNextOrder(t *testing.T) {
	ledger := &fakeLedger{
		open: []audit.OrderRecord{
			openRecord("ord-a", "AAPL", "ACCEPTED", 0),
			openRecord("ord-b", "MSFT", "ACCEPTED", 0),
		},
	}
	broker := &orderBroker{
		errs: map[string]error{"ord-a": errors.New("timeout")},
		fetched: map[string]*domain.ExecutedOrder{
			"ord-b": brokerOrder("ord-b", "MSFT", domain.OrderStatusCancelled, 0),
		},
	}
	svc := newTestSettlement(ledger, broker, &fakeGovernor{})

	require.NoError(t, svc.PollOpenOrders(context.Background()))

	require.Len(t, ledger.orders, 1)
	assert.Equal(t, "ord-b", ledger.orders[0].order.OrderID)
	require.Len(t, ledger.outcomes, 1)
	assert.Equal(t, audit.OutcomeCancelled, ledger.outcomes[0].Outcome)
}

func TestPollOpenOrders_OrderUnknownToBrokerIsSkipped(t *testing.T) {
	ledger := &fakeLedger{
		open: []audit.OrderRecord{openRecord("ord-a", "AAPL", "ACCEPTED", 0)},
	}
	svc := newTestSettlement(ledger, &orderBroker{}, &fakeGovernor{})

	require.NoError(t, svc.PollOpenOrders(context.Background()))
	assert.Empty(t, ledger.orders)
	assert.Empty(t, ledger.outcomes)
}

func TestHandleTradeUpdate_AppendsTransition(t *testing.T) {
	prior := openRecord("ord-a", "AAPL", "PENDING", 0)
	ledger := &fakeLedger{latest: map[string]*audit.OrderRecord{"ord-a": &prior}}
	svc := newTestSettlement(ledger, &orderBroker{}, &fakeGovernor{})

	svc.HandleTradeUpdate(context.Background(), "fill", brokerOrder("ord-a", "AAPL", domain.OrderStatusFilled, 5))

	require.Len(t, ledger.orders, 1)
	assert.Equal(t, "run-1", ledger.orders[0].runID)
	require.Len(t, ledger.outcomes, 1)
	assert.Equal(t, audit.OutcomeFilled, ledger.outcomes[0].Outcome)
}

func TestHandleTradeUpdate_DuplicateEventIsDropped(t *testing.T) {
	prior := openRecord("ord-a", "AAPL", "FILLED", 5)
	ledger := &fakeLedger{latest: map[string]*audit.OrderRecord{"ord-a": &prior}}
	svc := newTestSettlement(ledger, &orderBroker{}, &fakeGovernor{})

	svc.HandleTradeUpdate(context.Background(), "fill", brokerOrder("ord-a", "AAPL", domain.OrderStatusFilled, 5))

	assert.Empty(t, ledger.orders)
	assert.Empty(t, ledger.outcomes)
}

func TestRecordClose_SettlesPnLIntoGovernor(t *testing.T) {
	prior := openRecord("ord-a", "AAPL", "FILLED", 5)
	ledger := &fakeLedger{latest: map[string]*audit.OrderRecord{"ord-a": &prior}}
	governor := &fakeGovernor{}
	svc := newTestSettlement(ledger, &orderBroker{}, governor)

	require.NoError(t, svc.RecordClose(context.Background(), "", "ord-a", -42.5))

	require.Len(t, ledger.outcomes, 1)
	assert.Equal(t, audit.OutcomeClosed, ledger.outcomes[0].Outcome)
	assert.Equal(t, "AAPL", ledger.outcomes[0].Symbol)
	require.NotNil(t, ledger.outcomes[0].PnL)
	assert.Equal(t, -42.5, *ledger.outcomes[0].PnL)

	assert.Equal(t, []string{"AAPL"}, governor.symbols)
	assert.Equal(t, []float64{-42.5}, governor.pnls)
}

func TestRecordClose_UnknownOrderFails(t *testing.T) {
	ledger := &fakeLedger{latest: map[string]*audit.OrderRecord{}}
	governor := &fakeGovernor{}
	svc := newTestSettlement(ledger, &orderBroker{}, governor)

	err := svc.RecordClose(context.Background(), "AAPL", "ord-missing", 10.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audit records")
	assert.Empty(t, governor.pnls)
}

func TestRecordClose_EmptyOrderIDFails(t *testing.T) {
	svc := newTestSettlement(&fakeLedger{}, &orderBroker{}, &fakeGovernor{})

	err := svc.RecordClose(context.Background(), "AAPL", "", 10.0)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}
