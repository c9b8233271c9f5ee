package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/ciclogit/opskernel/internal/adapter/fsm"
	handler "github.com/ciclogit/opskernel/internal/adapter/http"
	"github.com/ciclogit/opskernel/internal/adapter/sqlite"
	"github.com/ciclogit/opskernel/internal/app"
	"github.com/ciclogit/opskernel/internal/domain"
)

func TestEnvOrDefault_Fallback(t *testing.T) {
	v := envOrDefault("OPSKERNEL_TEST_NONEXISTENT_KEY", "fallback")
	if v != "fallback" {
		t.Errorf("got %q, want %q", v, "fallback")
	}
}

func TestEnvOrDefault_EnvSet(t *testing.T) {
	t.Setenv("OPSKERNEL_TEST_KEY", "custom")

	v := envOrDefault("OPSKERNEL_TEST_KEY", "fallback")
	if v != "custom" {
		t.Errorf("got %q, want %q", v, "custom")
	}
}

// testPublisher is a local EventPublisher for the smoke test.
// The smoke test verifies HTTP wiring, not River.
type testPublisher struct{}

func (p *testPublisher) Publish(_ context.Context, _ domain.AuditEvent) error {
	return nil
}

// TestSmoke wires the stack like main() and verifies it responds.
func TestSmoke(t *testing.T) {
	dbPath := t.TempDir() + "/test.db"

	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	catalog, err := domain.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	entities := sqlite.NewEntityRepository(store)
	validator := fsm.New()
	chain := app.NewAuditChain(sqlite.NewAuditRepository(store))
	engine := app.NewSettlementEngine(sqlite.NewSettlementRepository(store), entities, validator)
	executor := app.NewExecutor(catalog, app.DefaultRules(), validator, app.NewEvidenceEnforcer(chain), chain, entities, engine, &testPublisher{})

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("opskernel", "0.1.0"))
	handler.Register(api, executor, chain, catalog)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	// Verify the server responds with the published catalog.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/api/v1/operations/catalog", nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/v1/operations/catalog failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var out struct {
		Version    string           `json:"version"`
		Operations []map[string]any `json:"operations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Version != domain.CatalogVersion {
		t.Errorf("version = %q, want %q", out.Version, domain.CatalogVersion)
	}
	if len(out.Operations) == 0 {
		t.Error("catalog should not be empty")
	}
}
