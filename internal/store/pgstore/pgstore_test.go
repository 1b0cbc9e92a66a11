package pgstore_test

import (
	"context"
	"github.com/ariefcatur/go-seller-settlement/internal/checkout"
	"github.com/ariefcatur/go-seller-settlement/internal/coupon"
	"github.com/ariefcatur/go-seller-settlement/internal/ledger"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/postgres"
	"github.com/ariefcatur/go-seller-settlement/internal/sequencer"
	"github.com/ariefcatur/go-seller-settlement/internal/stock"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"github.com/ariefcatur/go-seller-settlement/internal/store/pgstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"os"
	"sync"
	"testing"
	"time"
)

// These tests need a disposable database: POSTGRES_TEST_DSN=postgres://...
func testDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := postgres.Connect(ctx, dsn, 32)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, postgres.Migrate(ctx, db))
	return db
}

func suffix() string { return uuid.NewString()[:8] }

func seedProduct(t *testing.T, db *pgxpool.Pool, id, sellerID string, price int64, stock int) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		`INSERT INTO products(id, seller_id, name, price_cents, stock) VALUES ($1, $2, $1, $3, $4)`,
		id, sellerID, price, stock)
	require.NoError(t, err)
}

func seedVariant(t *testing.T, db *pgxpool.Pool, productID, id string, price int64, stock int) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		`INSERT INTO product_variants(id, product_id, price_cents, stock) VALUES ($1, $2, $3, $4)`,
		id, productID, price, stock)
	require.NoError(t, err)
}

func seedCoupon(t *testing.T, db *pgxpool.Pool, sellerID, code string, maxUsage int) {
	t.Helper()
	ctx := context.Background()
	batch := "batch-" + suffix()
	_, err := db.Exec(ctx, `
		INSERT INTO coupon_batches(id, seller_id, name, discount_type, discount_value, valid_from, expires_at, max_usage)
		VALUES ($1, $2, 'launch', $3, 1000, now() - interval '1 hour', now() + interval '1 day', $4)`,
		batch, sellerID, string(model.DiscountFixed), maxUsage)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO coupons(id, batch_id, code) VALUES ($1, $2, $3)`, "c-"+suffix(), batch, code)
	require.NoError(t, err)
}

func newCheckout(t *testing.T, st *pgstore.Store) *checkout.Service {
	log := zaptest.NewLogger(t)
	return checkout.NewService(st, sequencer.New(st, log, nil), coupon.NewEngine(), stock.NewLedger(), nil, log, nil, checkout.Config{})
}

var addr = model.Address{Name: "Ana", Line1: "Jl. Merdeka 1", City: "Bandung", Country: "ID"}

func TestConcurrentCheckoutsShareOneCoupon(t *testing.T) {
	db := testDB(t)
	st := pgstore.New(db)
	ctx := context.Background()
	sfx := suffix()
	product, code := "shirt-"+sfx, "ONCE-"+sfx
	seedProduct(t, db, product, "seller-"+sfx, 6000, 100)
	seedCoupon(t, db, "seller-"+sfx, code, 1)
	co := newCheckout(t, st)

	const buyers = 10
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = co.CreateOrder(ctx, checkout.Request{
				BuyerID:         "buyer-" + uuid.NewString(),
				Items:           []checkout.Line{{ProductID: product, Quantity: 1}},
				ShippingAddress: addr,
				CouponCode:      code,
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok, "a single-use coupon redeems once")

	var used bool
	var usages, batchCount int
	require.NoError(t, db.QueryRow(ctx, `SELECT used, usage_count FROM coupons WHERE code=$1`, code).Scan(&used, &usages))
	require.NoError(t, db.QueryRow(ctx,
		`SELECT b.usage_count FROM coupon_batches b JOIN coupons c ON c.batch_id=b.id WHERE c.code=$1`, code).Scan(&batchCount))
	assert.True(t, used)
	assert.Equal(t, 1, usages)
	assert.Equal(t, 1, batchCount)

	var stockLeft int
	require.NoError(t, db.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, product).Scan(&stockLeft))
	assert.Equal(t, 99, stockLeft, "failed checkouts roll back their stock")
}

func TestConcurrentCheckoutsNeverOversellVariant(t *testing.T) {
	db := testDB(t)
	st := pgstore.New(db)
	ctx := context.Background()
	sfx := suffix()
	product, other := "shoe-"+sfx, "sock-"+sfx
	seedProduct(t, db, product, "seller-"+sfx, 0, 0)
	seedVariant(t, db, product, "42", 9000, 3)
	seedProduct(t, db, other, "seller-"+sfx, 1000, 100)
	co := newCheckout(t, st)

	const buyers = 12
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lines := []checkout.Line{{ProductID: product, VariantID: "42", Quantity: 1}, {ProductID: other, Quantity: 1}}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			_, errs[i] = co.CreateOrder(ctx, checkout.Request{BuyerID: "buyer-" + sfx, Items: lines, ShippingAddress: addr})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 3, ok)

	var variantLeft, otherLeft int
	require.NoError(t, db.QueryRow(ctx, `SELECT stock FROM product_variants WHERE product_id=$1 AND id='42'`, product).Scan(&variantLeft))
	require.NoError(t, db.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, other).Scan(&otherLeft))
	assert.Zero(t, variantLeft)
	assert.Equal(t, 97, otherLeft)
}

func TestConcurrentCreditsOneSeller(t *testing.T) {
	db := testDB(t)
	st := pgstore.New(db)
	ctx := context.Background()
	seller := "seller-" + suffix()
	led := ledger.NewService(st, nil, zaptest.NewLogger(t), nil, ledger.Config{
		MaxRetries:  50,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	})

	const credits = 20
	var wg sync.WaitGroup
	errs := make([]error, credits)
	for i := 0; i < credits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = led.Credit(ctx, seller, 150, "sub-"+uuid.NewString())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	bal, err := led.Balance(ctx, seller)
	require.NoError(t, err)
	assert.EqualValues(t, credits*150, bal.Balance)
	assert.EqualValues(t, credits*150, bal.Withdrawable)
	assert.EqualValues(t, credits, bal.Version)

	var entries int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM seller_ledger_entries WHERE seller_id=$1`, seller).Scan(&entries))
	assert.Equal(t, credits, entries)
}

func TestIncrementIsDistinctUnderConcurrency(t *testing.T) {
	db := testDB(t)
	st := pgstore.New(db)
	ctx := context.Background()
	key := "test-" + suffix()

	const callers = 25
	var wg sync.WaitGroup
	got := make([]int64, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = st.Increment(ctx, key)
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for i := range got {
		require.NoError(t, errs[i])
		assert.False(t, seen[got[i]], "duplicate value %d", got[i])
		seen[got[i]] = true
	}
	for v := int64(1); v <= callers; v++ {
		assert.True(t, seen[v], "missing value %d", v)
	}
}

func TestDuplicateOrderNumber(t *testing.T) {
	db := testDB(t)
	st := pgstore.New(db)
	ctx := context.Background()
	number := "ORD-" + suffix()
	now := time.Now().UTC()
	insert := func(id string) error {
		return st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertOrder(ctx, model.Order{
				ID: id, Number: number, BuyerID: "buyer-1", ShippingAddress: addr,
				Status: model.OrderPending, PaymentStatus: model.PaymentUnpaid,
				CreatedAt: now, UpdatedAt: now,
			})
		})
	}
	require.NoError(t, insert(uuid.NewString()))
	err := insert(uuid.NewString())
	require.ErrorIs(t, err, store.ErrDuplicate)
}

func TestSubOrderTransitionsAndUnsettled(t *testing.T) {
	db := testDB(t)
	st := pgstore.New(db)
	ctx := context.Background()
	sfx := suffix()
	product := "mug-" + sfx
	seedProduct(t, db, product, "seller-"+sfx, 4000, 5)
	res, err := newCheckout(t, st).CreateOrder(ctx, checkout.Request{
		BuyerID:         "buyer-" + sfx,
		Items:           []checkout.Line{{ProductID: product, Quantity: 1}},
		ShippingAddress: addr,
	})
	require.NoError(t, err)
	require.Len(t, res.SubOrders, 1)
	id := res.SubOrders[0].ID

	at := time.Now().UTC()
	err = st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.TransitionSubOrder(ctx, id, model.SubOrderShipped, model.SubOrderDelivered, at)
		require.NoError(t, err)
		assert.False(t, ok, "wrong from status")
		for _, step := range [][2]model.SubOrderStatus{
			{model.SubOrderPending, model.SubOrderProcessing},
			{model.SubOrderProcessing, model.SubOrderShipped},
			{model.SubOrderShipped, model.SubOrderDelivered},
		} {
			ok, err := tx.TransitionSubOrder(ctx, id, step[0], step[1], at)
			require.NoError(t, err)
			require.True(t, ok)
		}
		return nil
	})
	require.NoError(t, err)

	listed := func(before time.Time) bool {
		var subs []model.SellerSubOrder
		require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			subs, err = tx.ListUnsettledDelivered(ctx, before, 1000)
			return err
		}))
		for _, so := range subs {
			if so.ID == id {
				return true
			}
		}
		return false
	}
	assert.False(t, listed(at.Add(-time.Minute)))
	assert.True(t, listed(at.Add(time.Minute)))

	require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.TransitionPayout(ctx, id, model.PayoutUnsettled, model.PayoutCredited, at)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.TransitionPayout(ctx, id, model.PayoutUnsettled, model.PayoutCredited, at)
		require.NoError(t, err)
		assert.False(t, ok, "payout moves once")
		return nil
	}))
	assert.False(t, listed(at.Add(time.Minute)))
}
