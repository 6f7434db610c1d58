package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/rolandlluka/simple-ecommerce/internal/cart"
	"github.com/rolandlluka/simple-ecommerce/internal/checkout"
	"github.com/rolandlluka/simple-ecommerce/internal/config"
	"github.com/rolandlluka/simple-ecommerce/internal/handlers"
	"github.com/rolandlluka/simple-ecommerce/internal/notify"
	"github.com/rolandlluka/simple-ecommerce/internal/session"
	"github.com/rolandlluka/simple-ecommerce/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to Postgres...")
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()
		st = pg
	} else {
		log.Printf("No DATABASE_URL set, using in-memory store with demo data")
		mem := store.NewMemory()
		if err := store.SeedDemo(context.Background(), mem, session.HashPassword); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
		st = mem
	}

	log.Printf("Connecting to RabbitMQ at %s...", cfg.RabbitURL)
	rabbitClient, err := notify.NewRabbitClient(notify.RabbitConfig{URL: cfg.RabbitURL})
	if err != nil {
		log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
	}
	defer rabbitClient.Close()

	sessions, err := session.NewManager(cfg.RedisURL, st, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}
	defer sessions.Close()

	cartService := cart.NewService(st)
	engine := checkout.NewEngine(st, rabbitClient, cfg.LowStockThreshold)
	handler := handlers.New(st, cartService, engine, sessions)

	log.Printf("Shop server starting on port %s...", cfg.Port)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), handler.Router()))
}
