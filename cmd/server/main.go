package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/openlms/admin-session/internal/api"
	"github.com/openlms/admin-session/internal/audit"
	auditpg "github.com/openlms/admin-session/internal/audit/postgres"
	"github.com/openlms/admin-session/internal/broker"
	"github.com/openlms/admin-session/internal/config"
	"github.com/openlms/admin-session/internal/identity"
	"github.com/openlms/admin-session/internal/infrastructure/kafka"
	"github.com/openlms/admin-session/internal/infrastructure/redis"
	"github.com/openlms/admin-session/internal/observability"
	"github.com/openlms/admin-session/internal/router"
	"github.com/openlms/admin-session/internal/session"
	"github.com/openlms/admin-session/internal/token"
)

func main() {
	cfg := config.Load()

	shutdown, metricsHandler := observability.Setup("admin-session")
	defer shutdown(context.Background())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.AuditTopic)
	defer producer.Close()

	recorder := audit.NewRecorder(auditpg.NewRepository(db), producer)

	cache := token.NewCache(redisClient)
	source := identity.NewHTTPSource(cfg.IdentityProviderURL, cfg.IdentityCredential, cfg.ExchangeTimeout)
	exchange := broker.NewHTTPExchangeClient(cfg.BackendBaseURL, cfg.ExchangeTimeout)
	tokenBroker := broker.New(cache, source, exchange, cfg.ExpiryBuffer)
	roleRouter := router.New(redisClient, cfg.StudentPortalURL, cfg.RecruiterPortalURL)

	controller := session.NewController(
		tokenBroker,
		exchange,
		source,
		cache,
		roleRouter,
		recorder,
		cfg.RevalidateInterval,
	)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controller.Start(rootCtx)
	defer controller.Stop()

	handler := api.NewHandler(controller, roleRouter)
	mux := api.SetupRouter(handler, metricsHandler)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
