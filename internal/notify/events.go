package notify

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
)

const (
	// Exchange name
	ShopExchange = "shop_events"

	// Queue names
	LowStockQueue    = "low_stock_queue"
	DailyReportQueue = "daily_report_queue"

	// Routing keys
	LowStockRoutingKey    = "stock.low"
	DailyReportRoutingKey = "report.daily"
)

// Publisher sends an event towards the notification worker. Checkout and
// reporting publish through this after their own work is committed.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// LowStockEvent is emitted once per product per checkout when the
// post-decrement stock falls at or below the configured threshold.
type LowStockEvent struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	OccurredAt    string          `json:"occurred_at"`
}

// DailyReportEvent carries one day's sales rollup to the worker.
type DailyReportEvent struct {
	Date         string                `json:"date"`
	TotalOrders  int                   `json:"total_orders"`
	TotalRevenue decimal.Decimal       `json:"total_revenue"`
	Products     []models.ProductSales `json:"products"`
}
