// Package report computes read-only sales rollups over persisted orders
// and hands them to the notification pipeline as daily report events.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
	"github.com/rolandlluka/simple-ecommerce/internal/notify"
	"github.com/rolandlluka/simple-ecommerce/internal/store"
)

// Daily is one day's rollup. A day with no orders yields zero counts and
// an empty breakdown, never a missing report.
type Daily struct {
	Date         time.Time             `json:"date"`
	TotalOrders  int                   `json:"total_orders"`
	TotalRevenue decimal.Decimal       `json:"total_revenue"`
	Products     []models.ProductSales `json:"products"`
}

type Aggregator struct {
	store store.Store
}

func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Aggregate rolls up completed orders created in [from, to). The product
// breakdown is grouped by product identity and sorted by quantity sold,
// descending; ties keep the store's stable order.
func (a *Aggregator) Aggregate(ctx context.Context, from, to time.Time) (Daily, error) {
	orders, err := a.store.OrdersBetween(ctx, from, to)
	if err != nil {
		return Daily{}, fmt.Errorf("failed to load orders: %w", err)
	}

	daily := Daily{
		Date:         from,
		TotalRevenue: decimal.Zero,
		Products:     []models.ProductSales{},
	}
	for _, o := range orders {
		if o.Status != models.OrderStatusCompleted {
			continue
		}
		daily.TotalOrders++
		daily.TotalRevenue = daily.TotalRevenue.Add(o.Total)
	}

	sales, err := a.store.ProductSalesBetween(ctx, from, to)
	if err != nil {
		return Daily{}, fmt.Errorf("failed to load product sales: %w", err)
	}
	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].QuantitySold > sales[j].QuantitySold
	})
	daily.Products = sales

	return daily, nil
}

// Runner resolves calendar dates in the reporting timezone and publishes
// the rollup as a daily report event. An external scheduler (or the
// worker's built-in one) invokes RunDailyReport once per day.
type Runner struct {
	aggregator *Aggregator
	publisher  notify.Publisher
	location   *time.Location
}

func NewRunner(a *Aggregator, p notify.Publisher, loc *time.Location) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{aggregator: a, publisher: p, location: loc}
}

// RunDailyReport aggregates the calendar day containing date and publishes
// the result. Zero-order days still publish.
func (r *Runner) RunDailyReport(ctx context.Context, date time.Time) error {
	day := date.In(r.location)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.location)
	to := from.AddDate(0, 0, 1)

	daily, err := r.aggregator.Aggregate(ctx, from, to)
	if err != nil {
		return err
	}

	event := notify.DailyReportEvent{
		Date:         from.Format("2006-01-02"),
		TotalOrders:  daily.TotalOrders,
		TotalRevenue: daily.TotalRevenue,
		Products:     daily.Products,
	}
	if err := r.publisher.Publish(ctx, notify.DailyReportRoutingKey, event); err != nil {
		return fmt.Errorf("failed to publish daily report: %w", err)
	}
	return nil
}

// NextMidnight returns the next local midnight after now, used by the
// worker's scheduler loop.
func (r *Runner) NextMidnight(now time.Time) time.Time {
	local := now.In(r.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.location).AddDate(0, 0, 1)
	return next
}
