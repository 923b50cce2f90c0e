package orders_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/shopcore/internal/apperr"
	"github.com/ariefcatur/shopcore/internal/catalog"
	"github.com/ariefcatur/shopcore/internal/logx"
	"github.com/ariefcatur/shopcore/internal/memstore"
	"github.com/ariefcatur/shopcore/internal/orders"
)

type recordedEvent struct {
	topic string
	key   string
	env   orders.Envelope
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(_ context.Context, topic string, key []byte, env orders.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{topic: topic, key: string(key), env: env})
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.env.EventType)
	}
	return out
}

type fixture struct {
	store   *memstore.Store
	catalog *catalog.Service
	orders  *orders.Service
	events  *recorder
}

func newFixture() fixture {
	st := memstore.New()
	rec := &recorder{}
	return fixture{
		store:   st,
		catalog: &catalog.Service{Store: st},
		orders:  &orders.Service{Store: st, Events: rec, Producer: "test", Log: logx.Discard()},
		events:  rec,
	}
}

func (f fixture) product(t *testing.T, seller, price string, stock int) catalog.Product {
	t.Helper()
	p, err := f.catalog.Create(context.Background(), seller, catalog.CreateInput{
		Title: "Item " + price, Price: decimal.RequireFromString(price), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func (f fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCreateSnapshotsAndDecrements(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.product(t, "s1", "9.99", 5)
	b := f.product(t, "s1", "0.50", 5)

	o, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 2},
		{ProductID: a.ID, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, "20.98", o.Total.StringFixed(2))
	assert.Equal(t, 3, f.stock(t, a.ID))
	assert.Equal(t, 3, f.stock(t, b.ID))

	// the stored order carries the price snapshot
	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "9.99", got.Items[0].UnitPrice.StringFixed(2))

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, orders.TopicOrderEvents, ev.topic)
	assert.Equal(t, o.ID, ev.key)
	assert.Equal(t, orders.EventOrderCreated, ev.env.EventType)
}

func TestCreateIsAllOrNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.product(t, "s1", "1.00", 5)
	b := f.product(t, "s1", "1.00", 1)

	_, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{
		{ProductID: a.ID, Quantity: 2},
		{ProductID: b.ID, Quantity: 2},
	})
	assert.True(t, errors.Is(err, apperr.InsufficientStock))
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))

	_, err = f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: "missing", Quantity: 1},
	})
	assert.True(t, errors.Is(err, apperr.NotFound))
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Empty(t, f.events.types())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.product(t, "s1", "1.00", 5)
	other := f.product(t, "s2", "1.00", 5)

	_, err := f.orders.Create(ctx, "c1", "s1", nil)
	assert.ErrorIs(t, err, orders.ErrEmptyOrder)

	_, err = f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: a.ID, Quantity: 0}})
	assert.True(t, errors.Is(err, apperr.Validation))

	_, err = f.orders.Create(ctx, "c1", "", []orders.ItemInput{{ProductID: a.ID, Quantity: 1}})
	assert.True(t, errors.Is(err, apperr.Validation))

	_, err = f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: other.ID, Quantity: 1}})
	assert.True(t, errors.Is(err, apperr.Validation))
	assert.Equal(t, 5, f.stock(t, other.ID))
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "s1", "1.00", 10)

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: p.ID, Quantity: 1}})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperr.InsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, 40, short.Load())
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestStateMachine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "s1", "2.00", 10)
	newOrder := func() orders.Order {
		o, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: p.ID, Quantity: 1}})
		require.NoError(t, err)
		return o
	}

	o := newOrder()
	_, err := f.orders.Fulfill(ctx, o.ID)
	assert.True(t, errors.Is(err, apperr.InvalidTransition), "fulfil requires paid")

	paid, err := f.orders.MarkPaid(ctx, o.ID, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, paid.Status)
	assert.Equal(t, "cs_1", paid.PaymentSessionID)

	again, err := f.orders.MarkPaid(ctx, o.ID, "cs_1")
	require.NoError(t, err, "same session is idempotent")
	assert.Equal(t, orders.StatusPaid, again.Status)

	_, err = f.orders.MarkPaid(ctx, o.ID, "cs_2")
	assert.True(t, errors.Is(err, apperr.InvalidTransition))
	_, err = f.orders.Cancel(ctx, o.ID)
	assert.True(t, errors.Is(err, apperr.InvalidTransition), "paid orders cannot be cancelled")

	done, err := f.orders.Fulfill(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusFulfilled, done.Status)

	for _, step := range []func() error{
		func() error { _, err := f.orders.MarkPaid(ctx, o.ID, "cs_1"); return err },
		func() error { _, err := f.orders.MarkFailed(ctx, o.ID, "cs_1"); return err },
		func() error { _, err := f.orders.Cancel(ctx, o.ID); return err },
		func() error { _, err := f.orders.Fulfill(ctx, o.ID); return err },
	} {
		assert.True(t, errors.Is(step(), apperr.InvalidTransition), "fulfilled is terminal")
	}

	failed := newOrder()
	_, err = f.orders.MarkFailed(ctx, failed.ID, "")
	require.NoError(t, err)
	got, err := f.orders.MarkFailed(ctx, failed.ID, "")
	require.NoError(t, err, "repeat failure converges")
	assert.Equal(t, orders.StatusFailed, got.Status)
	_, err = f.orders.MarkPaid(ctx, failed.ID, "cs_3")
	assert.True(t, errors.Is(err, apperr.InvalidTransition))

	assert.Contains(t, f.events.types(), orders.EventOrderStatusChanged)
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "s1", "2.00", 3)

	o, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: p.ID, Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, p.ID))

	c, err := f.orders.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, c.Status)
	assert.Equal(t, 3, f.stock(t, p.ID))

	_, err = f.orders.Cancel(ctx, o.ID)
	assert.True(t, errors.Is(err, apperr.InvalidTransition))
	assert.Equal(t, 3, f.stock(t, p.ID), "stock is restored once")
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "s1", "2.00", 3)
	o, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	var cancelled atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orders.Cancel(ctx, o.ID); err == nil {
				cancelled.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, cancelled.Load())
	assert.Equal(t, 3, f.stock(t, p.ID))
}

func TestPartyChecks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "s1", "2.00", 3)
	o, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	_, err = f.orders.GetFor(ctx, "c1", o.ID)
	assert.NoError(t, err)
	_, err = f.orders.GetFor(ctx, "s1", o.ID)
	assert.NoError(t, err)
	_, err = f.orders.GetFor(ctx, "c2", o.ID)
	assert.True(t, errors.Is(err, apperr.Forbidden))

	_, err = f.orders.CancelBy(ctx, "s2", o.ID)
	assert.True(t, errors.Is(err, apperr.Forbidden))

	_, err = f.orders.MarkPaid(ctx, o.ID, "cs_1")
	require.NoError(t, err)
	_, err = f.orders.FulfillBy(ctx, "s2", o.ID)
	assert.True(t, errors.Is(err, apperr.Forbidden))
	_, err = f.orders.FulfillBy(ctx, "s1", o.ID)
	assert.NoError(t, err)
}

func TestListFilters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p1 := f.product(t, "s1", "1.00", 10)
	p2 := f.product(t, "s2", "1.00", 10)
	_, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: p1.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.orders.Create(ctx, "c1", "s2", []orders.ItemInput{{ProductID: p2.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = f.orders.Create(ctx, "c2", "s1", []orders.ItemInput{{ProductID: p1.ID, Quantity: 1}})
	require.NoError(t, err)

	mine, err := f.orders.List(ctx, orders.Filter{CustomerID: "c1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	sold, err := f.orders.List(ctx, orders.Filter{SellerID: "s1"})
	require.NoError(t, err)
	assert.Len(t, sold, 2)
	for _, o := range sold {
		assert.Equal(t, "s1", o.SellerID)
	}
}

func TestCanTransitionTable(t *testing.T) {
	assert.True(t, orders.CanTransition(orders.StatusPending, orders.StatusPaid))
	assert.True(t, orders.CanTransition(orders.StatusPaid, orders.StatusFailed))
	assert.False(t, orders.CanTransition(orders.StatusCancelled, orders.StatusPaid))
	assert.False(t, orders.CanTransition(orders.StatusPending, orders.StatusFulfilled))
	assert.True(t, orders.StatusFailed.Terminal())
	assert.False(t, orders.StatusPaid.Terminal())
}

func TestMarkFailedOnlyForCurrentSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "s1", "2.00", 10)
	o, err := f.orders.Create(ctx, "c1", "s1", []orders.ItemInput{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, f.orders.AttachPaymentSession(ctx, o.ID, "cs_old"))
	require.NoError(t, f.orders.AttachPaymentSession(ctx, o.ID, "cs_new"))

	got, err := f.orders.MarkFailed(ctx, o.ID, "cs_old")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status, "superseded session is ignored")

	paid, err := f.orders.MarkPaid(ctx, o.ID, "cs_new")
	require.NoError(t, err)
	require.Equal(t, orders.StatusPaid, paid.Status)

	got, err = f.orders.MarkFailed(ctx, o.ID, "cs_old")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, got.Status)

	err = f.orders.AttachPaymentSession(ctx, o.ID, "cs_late")
	assert.True(t, errors.Is(err, apperr.InvalidTransition), "only pending orders take a session")
	got, err = f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_new", got.PaymentSessionID)
}
