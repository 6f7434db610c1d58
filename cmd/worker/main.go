// The worker consumes notification events published by the shop server,
// renders the emails, and delivers them to admin users. It also runs the
// daily report scheduler: once per midnight in the reporting timezone it
// aggregates the finished day and publishes the report event, which it
// then consumes like any other.
package main

import (
	"context"
	"log"
	"time"

	"github.com/rolandlluka/simple-ecommerce/internal/config"
	"github.com/rolandlluka/simple-ecommerce/internal/notify"
	"github.com/rolandlluka/simple-ecommerce/internal/report"
	"github.com/rolandlluka/simple-ecommerce/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	loc, err := cfg.ReportLocation()
	if err != nil {
		log.Fatalf("Failed to resolve report timezone: %v", err)
	}

	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required: the worker reads orders and admin users from the database")
	}
	log.Printf("Connecting to Postgres...")
	st, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer st.Close()

	log.Printf("Connecting to RabbitMQ at %s...", cfg.RabbitURL)
	rabbitClient, err := notify.NewRabbitClient(notify.RabbitConfig{URL: cfg.RabbitURL})
	if err != nil {
		log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
	}
	defer rabbitClient.Close()

	var mailer notify.Mailer
	if cfg.SMTP.Host != "" {
		mailer = &notify.SMTPMailer{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}
	} else {
		log.Printf("No SMTP host configured, logging mail instead of sending")
		mailer = notify.LogMailer{}
	}

	dispatcher := notify.NewDispatcher(st, mailer)
	if err := rabbitClient.Consume(notify.LowStockQueue, dispatcher.HandleLowStock); err != nil {
		log.Fatalf("Failed to start low-stock consumer: %v", err)
	}
	if err := rabbitClient.Consume(notify.DailyReportQueue, dispatcher.HandleDailyReport); err != nil {
		log.Fatalf("Failed to start daily report consumer: %v", err)
	}

	runner := report.NewRunner(report.NewAggregator(st), rabbitClient, loc)
	go runScheduler(runner)

	log.Printf("Notification worker is running. Press CTRL+C to exit.")
	forever := make(chan struct{})
	<-forever
}

// runScheduler publishes the report for each day as it ends.
func runScheduler(runner *report.Runner) {
	for {
		next := runner.NextMidnight(time.Now())
		time.Sleep(time.Until(next))

		finished := next.AddDate(0, 0, -1)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := runner.RunDailyReport(ctx, finished); err != nil {
			log.Printf("Daily report for %s failed: %v", finished.Format("2006-01-02"), err)
		}
		cancel()
	}
}
