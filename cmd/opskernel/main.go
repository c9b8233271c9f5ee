package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/ciclogit/opskernel/internal/adapter/fsm"
	"github.com/ciclogit/opskernel/internal/adapter/otel"
	"github.com/ciclogit/opskernel/internal/adapter/river"
	"github.com/ciclogit/opskernel/internal/adapter/sqlite"
	"github.com/ciclogit/opskernel/internal/app"
	"github.com/ciclogit/opskernel/internal/domain"

	handler "github.com/ciclogit/opskernel/internal/adapter/http"
)

func main() {
	port := envOrDefault("PORT", "8080")
	dbPath := envOrDefault("DATABASE_PATH", "opskernel.db")

	ctx := context.Background()

	// --- Telemetry ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		log.Fatalf("otel: %v", err)
	}

	// --- Adapters (out) ---
	// Startup order is deliberate: storage and queue are fully migrated
	// and started before the executor accepts its first request. There
	// are no lazy bootstrap flags checked per request.
	db, err := otel.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		log.Fatalf("migrations: %v", err)
	}
	defer store.Close()

	queue, err := river.Setup(ctx, db)
	if err != nil {
		log.Fatalf("river: %v", err)
	}
	if err := queue.Start(ctx); err != nil {
		log.Fatalf("river start: %v", err)
	}

	entities := otel.NewTracingEntityRepository(sqlite.NewEntityRepository(store))
	audits := sqlite.NewAuditRepository(store)
	settlements := sqlite.NewSettlementRepository(store)
	publisher := otel.NewTracingPublisher(river.NewPublisher(queue))

	// --- Application ---
	catalog, err := domain.DefaultCatalog()
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	validator := fsm.New()
	chain := app.NewAuditChain(audits)
	enforcer := app.NewEvidenceEnforcer(chain)
	engine := app.NewSettlementEngine(settlements, entities, validator)
	executor := app.NewExecutor(catalog, app.DefaultRules(), validator, enforcer, chain, entities, engine, publisher)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware("opskernel", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("opskernel", "0.1.0"))
	handler.Register(api, executor, chain, catalog)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("opskernel catalog %s listening on :%s", catalog.Version(), port)
		log.Printf("API docs: http://localhost:%s/docs", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-done
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Printf("river shutdown: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}

	log.Println("stopped")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
