package report

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
	"github.com/rolandlluka/simple-ecommerce/internal/notify"
	"github.com/rolandlluka/simple-ecommerce/internal/store"
)

type capturingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []notify.DailyReportEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	if event, ok := message.(notify.DailyReportEvent); ok {
		p.events = append(p.events, event)
	}
	return nil
}

// placeOrder persists a completed order with its items at a fixed time.
func placeOrder(t *testing.T, mem *store.Memory, userID uuid.UUID, at time.Time, lines map[models.Product]int) models.Order {
	t.Helper()
	total := decimal.Zero
	for product, qty := range lines {
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	order := models.Order{UserID: userID, Total: total, Status: models.OrderStatusCompleted, CreatedAt: at}
	err := mem.WithinTx(context.Background(), func(tx store.Tx) error {
		if err := tx.CreateOrder(context.Background(), &order); err != nil {
			return err
		}
		for product, qty := range lines {
			item := models.OrderItem{OrderID: order.ID, ProductID: product.ID, Quantity: qty, Price: product.Price}
			if err := tx.CreateOrderItem(context.Background(), &item); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return order
}

func createProduct(t *testing.T, mem *store.Memory, name, price string) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: decimal.RequireFromString(price), StockQuantity: 1000}
	require.NoError(t, mem.CreateProduct(context.Background(), &p))
	return p
}

func createUser(t *testing.T, mem *store.Memory) uuid.UUID {
	t.Helper()
	u := models.User{Email: uuid.NewString() + "@example.com", Name: "Buyer"}
	require.NoError(t, mem.CreateUser(context.Background(), &u))
	return u.ID
}

func TestAggregateRollsUpOneDay(t *testing.T) {
	mem := store.NewMemory()
	userID := createUser(t, mem)
	coffee := createProduct(t, mem, "Coffee", "10.00")
	tea := createProduct(t, mem, "Tea", "20.00")

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	placeOrder(t, mem, userID, day.Add(9*time.Hour), map[models.Product]int{coffee: 5})
	placeOrder(t, mem, userID, day.Add(14*time.Hour), map[models.Product]int{coffee: 2, tea: 3})
	// Outside the window on both sides.
	placeOrder(t, mem, userID, day.Add(-time.Second), map[models.Product]int{tea: 9})
	placeOrder(t, mem, userID, day.Add(24*time.Hour), map[models.Product]int{tea: 9})

	daily, err := NewAggregator(mem).Aggregate(context.Background(), day, day.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, daily.TotalOrders)
	assert.True(t, daily.TotalRevenue.Equal(decimal.RequireFromString("130.00")), "got %s", daily.TotalRevenue)

	require.Len(t, daily.Products, 2)
	// Sorted by quantity sold, descending.
	assert.Equal(t, "Coffee", daily.Products[0].Name)
	assert.Equal(t, 7, daily.Products[0].QuantitySold)
	assert.True(t, daily.Products[0].Revenue.Equal(decimal.RequireFromString("70.00")))
	assert.Equal(t, "Tea", daily.Products[1].Name)
	assert.Equal(t, 3, daily.Products[1].QuantitySold)
	assert.True(t, daily.Products[1].Revenue.Equal(decimal.RequireFromString("60.00")))
}

func TestAggregateRevenueUsesFrozenPrices(t *testing.T) {
	mem := store.NewMemory()
	userID := createUser(t, mem)
	p := createProduct(t, mem, "Widget", "10.00")

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	placeOrder(t, mem, userID, day.Add(time.Hour), map[models.Product]int{p: 2})

	// Reprice after the sale; the report must keep the purchase-time price.
	updated := p
	updated.Price = decimal.RequireFromString("50.00")
	require.NoError(t, mem.UpdateProduct(context.Background(), &updated))

	daily, err := NewAggregator(mem).Aggregate(context.Background(), day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, daily.Products, 1)
	assert.True(t, daily.Products[0].Revenue.Equal(decimal.RequireFromString("20.00")))
}

func TestRunDailyReportPublishesZeroedReportOnQuietDay(t *testing.T) {
	mem := store.NewMemory()
	publisher := &capturingPublisher{}
	runner := NewRunner(NewAggregator(mem), publisher, time.UTC)

	date := time.Date(2026, 9, 1, 15, 30, 0, 0, time.UTC)
	require.NoError(t, runner.RunDailyReport(context.Background(), date))

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, []string{notify.DailyReportRoutingKey}, publisher.keys)
	assert.Equal(t, "2026-09-01", event.Date)
	assert.Equal(t, 0, event.TotalOrders)
	assert.True(t, event.TotalRevenue.IsZero())
	assert.Empty(t, event.Products)
}

func TestRunDailyReportResolvesDayInReportingTimezone(t *testing.T) {
	mem := store.NewMemory()
	userID := createUser(t, mem)
	p := createProduct(t, mem, "Widget", "10.00")

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-09-02 01:00 UTC is still 2026-09-01 in New York.
	orderAt := time.Date(2026, 9, 2, 1, 0, 0, 0, time.UTC)
	placeOrder(t, mem, userID, orderAt, map[models.Product]int{p: 1})

	publisher := &capturingPublisher{}
	runner := NewRunner(NewAggregator(mem), publisher, loc)
	require.NoError(t, runner.RunDailyReport(context.Background(), orderAt))

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, "2026-09-01", event.Date)
	assert.Equal(t, 1, event.TotalOrders)
}

func TestNextMidnight(t *testing.T) {
	runner := NewRunner(nil, nil, time.UTC)
	now := time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC), runner.NextMidnight(now))
}
