package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/ciclogit/opskernel/internal/adapter/otel"
	"github.com/ciclogit/opskernel/internal/domain"
)

// --- Test tracer setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

// --- Mock repository ---

type entityKey struct {
	tenantID string
	kind     domain.EntityKind
	id       string
}

type mockRepo struct {
	entities map[entityKey]domain.Entity
}

func newMockRepo() *mockRepo {
	return &mockRepo{entities: make(map[entityKey]domain.Entity)}
}

func (m *mockRepo) Create(_ context.Context, e domain.Entity) error {
	m.entities[entityKey{e.TenantID, e.Kind, e.ID}] = e
	return nil
}

func (m *mockRepo) Get(_ context.Context, tenantID string, kind domain.EntityKind, id string) (domain.Entity, error) {
	e, ok := m.entities[entityKey{tenantID, kind, id}]
	if !ok {
		return domain.Entity{}, domain.ErrEntityNotFound
	}
	return e, nil
}

func (m *mockRepo) UpdateState(_ context.Context, tenantID string, kind domain.EntityKind, id string, from, to domain.State) (domain.Entity, error) {
	key := entityKey{tenantID, kind, id}
	e, ok := m.entities[key]
	if !ok {
		return domain.Entity{}, domain.ErrEntityNotFound
	}
	if e.State != from {
		return domain.Entity{}, domain.ErrStaleState
	}
	e.State = to
	m.entities[key] = e
	return e, nil
}

// --- Tests ---

func TestTracingEntityRepository_Create_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingEntityRepository(inner)

	entity := domain.NewEntity("ord-1", "tnt-1", domain.KindOrder, nil)
	if err := repo.Create(context.Background(), entity); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "EntityRepository.Create" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "EntityRepository.Create")
	}

	assertAttribute(t, spans[0], "entity.id", "ord-1")
	assertAttribute(t, spans[0], "entity.kind", "order")
	assertAttribute(t, spans[0], "tenant.id", "tnt-1")
}

func TestTracingEntityRepository_Get_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingEntityRepository(inner)

	entity := domain.NewEntity("ord-1", "tnt-1", domain.KindOrder, nil)
	inner.entities[entityKey{"tnt-1", domain.KindOrder, "ord-1"}] = entity

	got, err := repo.Get(context.Background(), "tnt-1", domain.KindOrder, "ord-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "ord-1" {
		t.Errorf("ID = %q, want %q", got.ID, "ord-1")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "EntityRepository.Get" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "EntityRepository.Get")
	}
}

func TestTracingEntityRepository_Get_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingEntityRepository(inner)

	_, err := repo.Get(context.Background(), "tnt-1", domain.KindOrder, "nonexistent")
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}

	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
}

func TestTracingEntityRepository_UpdateState_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockRepo()
	repo := adapter.NewTracingEntityRepository(inner)

	entity := domain.NewEntity("ord-1", "tnt-1", domain.KindOrder, nil)
	inner.entities[entityKey{"tnt-1", domain.KindOrder, "ord-1"}] = entity

	updated, err := repo.UpdateState(context.Background(), "tnt-1", domain.KindOrder, "ord-1", domain.OrderCreated, domain.OrderDispatched)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.State != domain.OrderDispatched {
		t.Errorf("State = %q, want DISPATCHED", updated.State)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "EntityRepository.UpdateState" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "EntityRepository.UpdateState")
	}

	assertAttribute(t, spans[0], "state.from", "CREATED")
	assertAttribute(t, spans[0], "state.to", "DISPATCHED")
}

// assertAttribute checks that a span has an attribute with the given key and string value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			got := attr.Value.Emit()
			if got != want {
				t.Errorf("attribute %q = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}
