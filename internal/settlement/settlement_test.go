package settlement

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/checkout"
	"github.com/ariefcatur/go-seller-settlement/internal/coupon"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	kafkax "github.com/ariefcatur/go-seller-settlement/internal/kafka"
	"github.com/ariefcatur/go-seller-settlement/internal/ledger"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/orders"
	"github.com/ariefcatur/go-seller-settlement/internal/sequencer"
	"github.com/ariefcatur/go-seller-settlement/internal/stock"
	"github.com/ariefcatur/go-seller-settlement/internal/store/memstore"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"sync"
	"testing"
)

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *memDedup) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[id], d.err
}

func (d *memDedup) Mark(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = true
	return nil
}

type fixture struct {
	worker *Worker
	ledger *ledger.Service
	orders *orders.Service
	rec    *notify.Recorder
	order  model.OrderView
}

func newFixture(t *testing.T, dedup Deduper) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := memstore.New()
	st.PutProduct(model.Product{ID: "p1", SellerID: "seller-a", PriceCents: 6000, Stock: 5})

	co := checkout.NewService(st, sequencer.New(st, log, nil), coupon.NewEngine(), stock.NewLedger(), nil, log, nil, checkout.Config{})
	res, err := co.CreateOrder(context.Background(), checkout.Request{
		BuyerID:         "buyer-1",
		Items:           []checkout.Line{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: model.Address{Name: "Ana", Line1: "Jl. 1", City: "Bandung", Country: "ID"},
	})
	require.NoError(t, err)

	rec := &notify.Recorder{}
	led := ledger.NewService(st, nil, log, nil, ledger.Config{})
	ord := orders.NewService(st, nil, rec, log, "test")
	return &fixture{
		worker: &Worker{Ledger: led, Orders: ord, Dedup: dedup, Log: log},
		ledger: led,
		orders: ord,
		rec:    rec,
		order:  res.OrderView,
	}
}

func (f *fixture) deliver(t *testing.T) events.Envelope {
	t.Helper()
	id := f.order.SubOrders[0].ID
	for _, to := range []model.SubOrderStatus{model.SubOrderProcessing, model.SubOrderShipped, model.SubOrderDelivered} {
		_, err := f.orders.TransitionSubOrder(context.Background(), id, to, "")
		require.NoError(t, err)
	}
	envs := f.rec.OfType(events.EventSubOrderFulfilled)
	require.NotEmpty(t, envs)
	return envs[len(envs)-1]
}

func TestFulfilmentCreditsSellerOnce(t *testing.T) {
	dedup := &memDedup{seen: map[string]bool{}}
	f := newFixture(t, dedup)
	env := f.deliver(t)
	ctx := context.Background()

	msg := kafkago.Message{Value: kafkax.MustMarshal(env)}
	require.NoError(t, f.worker.Handle(ctx, msg))
	require.NoError(t, f.worker.Handle(ctx, msg))

	bal, err := f.ledger.Balance(ctx, "seller-a")
	require.NoError(t, err)
	assert.EqualValues(t, 12000, bal.Balance)
	assert.EqualValues(t, 12000, bal.Withdrawable)
	assert.True(t, dedup.seen[env.EventID])

	v, err := f.orders.Get(ctx, f.order.Order.Number)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutCredited, v.SubOrders[0].PayoutStatus)
	assert.Equal(t, model.OrderFulfilled, v.Order.Status)
}

func TestRedeliveryWithoutDedupStillCreditsOnce(t *testing.T) {
	f := newFixture(t, &memDedup{seen: map[string]bool{}, err: errors.New("redis down")})
	env := f.deliver(t)
	ctx := context.Background()

	require.NoError(t, f.worker.HandleEnvelope(ctx, env))
	env2 := env
	env2.EventID = "another-delivery"
	require.NoError(t, f.worker.HandleEnvelope(ctx, env2))

	bal, err := f.ledger.Balance(ctx, "seller-a")
	require.NoError(t, err)
	assert.EqualValues(t, 12000, bal.Balance)
	entries, err := f.ledger.Entries(ctx, "seller-a", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIgnoresOtherEventsAndPoison(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	other, err := events.New(events.EventOrderCreated, "test", "x", map[string]string{"a": "b"})
	require.NoError(t, err)
	require.NoError(t, f.worker.HandleEnvelope(ctx, other))
	require.NoError(t, f.worker.Handle(ctx, kafkago.Message{Value: []byte("{not json")}))
	require.NoError(t, f.worker.Handle(ctx, kafkago.Message{
		Value:   []byte("{not json either"),
		Headers: []kafkago.Header{{Key: "x-event-type", Value: []byte(events.EventOrderCreated)}},
	}))

	bad, err := events.New(events.EventSubOrderFulfilled, "test", "x",
		events.SubOrderFulfilledPayload{SubOrderID: "s", SellerID: "seller-a", EarningsCents: -5})
	require.NoError(t, err)
	require.NoError(t, f.worker.HandleEnvelope(ctx, bad), "invalid amounts are not retried")

	bal, err := f.ledger.Balance(ctx, "seller-a")
	require.NoError(t, err)
	assert.Zero(t, bal.Balance)
}
