// Package notify is the asynchronous notification pipeline: checkout and
// reporting publish events to RabbitMQ, and the worker-side Dispatcher
// consumes them, renders the email, and fans it out to every admin user.
// Delivery runs strictly after the triggering transaction committed and
// can never fail it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
)

// AdminDirectory is the slice of the store the dispatcher needs.
type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]models.User, error)
}

type Dispatcher struct {
	admins AdminDirectory
	mailer Mailer
}

func NewDispatcher(admins AdminDirectory, mailer Mailer) *Dispatcher {
	return &Dispatcher{admins: admins, mailer: mailer}
}

// HandleLowStock consumes one low-stock event and mails every admin. A
// per-admin failure is logged and the remaining admins still get their
// copy; the first failure is returned so the queue can redeliver.
func (d *Dispatcher) HandleLowStock(body []byte) error {
	var event LowStockEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal low-stock event: %w", err)
	}

	html, err := renderLowStock(event)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Low Stock Alert: %s", event.Name)
	return d.fanOut(subject, html)
}

// HandleDailyReport consumes one daily report event and mails every admin.
// Zero-order reports are sent like any other.
func (d *Dispatcher) HandleDailyReport(body []byte) error {
	var event DailyReportEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal daily report event: %w", err)
	}

	html, err := renderDailyReport(event)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Daily Sales Report: %s", event.Date)
	return d.fanOut(subject, html)
}

func (d *Dispatcher) fanOut(subject, html string) error {
	ctx := context.Background()
	admins, err := d.admins.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}

	var firstErr error
	for _, admin := range admins {
		if err := d.mailer.Send(ctx, admin.Email, subject, html); err != nil {
			log.Printf("Failed to send %q to %s: %v", subject, admin.Email, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
