package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolandlluka/simple-ecommerce/internal/cart"
	"github.com/rolandlluka/simple-ecommerce/internal/models"
	"github.com/rolandlluka/simple-ecommerce/internal/notify"
	"github.com/rolandlluka/simple-ecommerce/internal/store"
)

// capturingPublisher records published events instead of talking to a broker.
type capturingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []notify.LowStockEvent
	err    error
}

func (p *capturingPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, routingKey)
	if event, ok := message.(notify.LowStockEvent); ok {
		p.events = append(p.events, event)
	}
	return nil
}

type fixture struct {
	mem       *store.Memory
	cart      *cart.Service
	engine    *Engine
	publisher *capturingPublisher
	userID    uuid.UUID
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	mem := store.NewMemory()
	user := models.User{Email: "buyer@example.com", Name: "Buyer"}
	require.NoError(t, mem.CreateUser(context.Background(), &user))
	publisher := &capturingPublisher{}
	return &fixture{
		mem:       mem,
		cart:      cart.NewService(mem),
		engine:    NewEngine(mem, publisher, threshold),
		publisher: publisher,
		userID:    user.ID,
	}
}

func (f *fixture) createProduct(t *testing.T, name, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock}
	require.NoError(t, f.mem.CreateProduct(context.Background(), &p))
	return p
}

func (f *fixture) addToCart(t *testing.T, productID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, f.cart.Add(context.Background(), f.userID, productID, qty))
}

func TestCheckoutCreatesOrderAndDecrementsStock(t *testing.T) {
	f := newFixture(t, 10)
	a := f.createProduct(t, "A", "10.00", 50)
	b := f.createProduct(t, "B", "20.00", 50)
	f.addToCart(t, a.ID, 2)
	f.addToCart(t, b.ID, 1)

	order, err := f.engine.Checkout(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("40.00")), "got total %s", order.Total)

	items, err := f.mem.OrderItems(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Order total equals the sum of its line snapshots.
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	assert.True(t, order.Total.Equal(sum))

	// Stock decremented by the purchased quantities.
	gotA, err := f.mem.ProductByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 48, gotA.StockQuantity)
	gotB, err := f.mem.ProductByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 49, gotB.StockQuantity)

	// Cart emptied.
	view, err := f.cart.ListForUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.engine.Checkout(context.Background(), f.userID)
	require.ErrorIs(t, err, models.ErrEmptyCart)

	orders, err := f.mem.OrdersForUser(context.Background(), f.userID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckoutPriceIsFrozenAtPurchaseTime(t *testing.T) {
	f := newFixture(t, 0)
	p := f.createProduct(t, "Volatile", "10.00", 50)
	f.addToCart(t, p.ID, 1)

	order, err := f.engine.Checkout(context.Background(), f.userID)
	require.NoError(t, err)

	// Reprice the product after purchase.
	updated := p
	updated.Price = decimal.RequireFromString("99.00")
	updated.StockQuantity = 49
	require.NoError(t, f.mem.UpdateProduct(context.Background(), &updated))

	items, err := f.mem.OrderItems(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, order.Total.Equal(decimal.RequireFromString("10.00")))
}

func TestCheckoutRollsBackWhenALineRunsOutOfStock(t *testing.T) {
	f := newFixture(t, 10)
	a := f.createProduct(t, "A", "10.00", 50)
	b := f.createProduct(t, "B", "20.00", 3)
	f.addToCart(t, a.ID, 2)
	f.addToCart(t, b.ID, 3)

	// Another shopper drains product B between add-to-cart and checkout.
	rival := models.User{Email: "rival@example.com", Name: "Rival"}
	require.NoError(t, f.mem.CreateUser(context.Background(), &rival))
	rivalCart := cart.NewService(f.mem)
	require.NoError(t, rivalCart.Add(context.Background(), rival.ID, b.ID, 2))
	_, err := f.engine.Checkout(context.Background(), rival.ID)
	require.NoError(t, err)

	_, err = f.engine.Checkout(context.Background(), f.userID)
	require.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "B", "error names the offending product")

	// Nothing from the failed attempt persists: no order, no decrement of
	// A, and the cart is untouched.
	orders, err := f.mem.OrdersForUser(context.Background(), f.userID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)

	gotA, err := f.mem.ProductByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, gotA.StockQuantity)
	gotB, err := f.mem.ProductByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotB.StockQuantity)

	view, err := f.cart.ListForUser(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Len(t, view.Lines, 2)
}

func TestConcurrentCheckoutsOfLastUnit(t *testing.T) {
	f := newFixture(t, 0)
	p := f.createProduct(t, "Last One", "10.00", 1)

	other := models.User{Email: "other@example.com", Name: "Other"}
	require.NoError(t, f.mem.CreateUser(context.Background(), &other))

	f.addToCart(t, p.ID, 1)
	require.NoError(t, f.cart.Add(context.Background(), other.ID, p.ID, 1))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, userID := range []uuid.UUID{f.userID, other.ID} {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.engine.Checkout(context.Background(), id)
			results <- err
		}(userID)
	}
	wg.Wait()
	close(results)

	var successes, stockFailures int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, models.ErrInsufficientStock):
			stockFailures++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, stockFailures)

	got, err := f.mem.ProductByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StockQuantity)
}

func TestConcurrentCheckoutsConserveStock(t *testing.T) {
	f := newFixture(t, 0)
	p := f.createProduct(t, "Popular", "5.00", 100)

	const shoppers = 20
	userIDs := make([]uuid.UUID, shoppers)
	for i := range userIDs {
		u := models.User{Email: uuid.NewString() + "@example.com", Name: "Shopper"}
		require.NoError(t, f.mem.CreateUser(context.Background(), &u))
		require.NoError(t, f.cart.Add(context.Background(), u.ID, p.ID, 3))
		userIDs[i] = u.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, shoppers)
	for _, id := range userIDs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.engine.Checkout(context.Background(), id)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.mem.ProductByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 100-shoppers*3, got.StockQuantity)
}

func TestLowStockEventFiresExactlyOncePerQualifyingProduct(t *testing.T) {
	f := newFixture(t, 10)
	// 12-3 = 9 and 11-1 = 10 are at or below the threshold; 100-1 = 99 is not.
	low := f.createProduct(t, "Nearly Out", "10.00", 12)
	high := f.createProduct(t, "Plenty", "10.00", 100)
	boundary := f.createProduct(t, "Boundary", "1.00", 11)

	f.addToCart(t, low.ID, 3)
	f.addToCart(t, high.ID, 1)
	f.addToCart(t, boundary.ID, 1)

	_, err := f.engine.Checkout(context.Background(), f.userID)
	require.NoError(t, err)

	require.Len(t, f.publisher.events, 2)
	names := []string{f.publisher.events[0].Name, f.publisher.events[1].Name}
	assert.ElementsMatch(t, []string{"Nearly Out", "Boundary"}, names)
	for _, key := range f.publisher.keys {
		assert.Equal(t, notify.LowStockRoutingKey, key)
	}
	for _, event := range f.publisher.events {
		if event.Name == "Nearly Out" {
			assert.Equal(t, 9, event.StockQuantity, "event carries post-decrement stock")
		}
	}
}

func TestNoLowStockEventOnFailedCheckout(t *testing.T) {
	f := newFixture(t, 10)
	low := f.createProduct(t, "Nearly Out", "10.00", 11)
	gone := f.createProduct(t, "Gone", "10.00", 1)
	f.addToCart(t, low.ID, 1)
	f.addToCart(t, gone.ID, 1)

	// Drain the second product so the checkout fails on its line.
	rival := models.User{Email: "rival@example.com", Name: "Rival"}
	require.NoError(t, f.mem.CreateUser(context.Background(), &rival))
	require.NoError(t, f.cart.Add(context.Background(), rival.ID, gone.ID, 1))
	_, err := f.engine.Checkout(context.Background(), rival.ID)
	require.NoError(t, err)
	gonePublished := len(f.publisher.events)

	_, err = f.engine.Checkout(context.Background(), f.userID)
	require.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Len(t, f.publisher.events, gonePublished, "failed checkout publishes nothing")
}

func TestPublishFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t, 10)
	p := f.createProduct(t, "Nearly Out", "10.00", 5)
	f.addToCart(t, p.ID, 1)
	f.publisher.err = errors.New("broker down")

	order, err := f.engine.Checkout(context.Background(), f.userID)
	require.NoError(t, err, "publish failure must not surface to the checkout caller")
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
}
