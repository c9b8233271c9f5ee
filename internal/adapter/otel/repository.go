package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ciclogit/opskernel/internal/domain"
)

const tracerName = "github.com/ciclogit/opskernel/internal/adapter/otel"

// TracingEntityRepository wraps a domain.EntityRepository with
// OpenTelemetry tracing. Each method creates a span with semantic
// attributes and records errors.
type TracingEntityRepository struct {
	next   domain.EntityRepository
	tracer trace.Tracer
}

// Compile-time check: TracingEntityRepository implements domain.EntityRepository.
var _ domain.EntityRepository = (*TracingEntityRepository)(nil)

// NewTracingEntityRepository creates a tracing decorator around the given repository.
func NewTracingEntityRepository(next domain.EntityRepository) *TracingEntityRepository {
	return &TracingEntityRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingEntityRepository) Create(ctx context.Context, entity domain.Entity) error {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.Create",
		trace.WithAttributes(
			attribute.String("entity.id", entity.ID),
			attribute.String("entity.kind", string(entity.Kind)),
			attribute.String("tenant.id", entity.TenantID),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, entity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingEntityRepository) Get(ctx context.Context, tenantID string, kind domain.EntityKind, id string) (domain.Entity, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.Get",
		trace.WithAttributes(
			attribute.String("entity.id", id),
			attribute.String("entity.kind", string(kind)),
			attribute.String("tenant.id", tenantID),
		),
	)
	defer span.End()

	entity, err := r.next.Get(ctx, tenantID, kind, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return entity, err
}

func (r *TracingEntityRepository) UpdateState(ctx context.Context, tenantID string, kind domain.EntityKind, id string, from, to domain.State) (domain.Entity, error) {
	ctx, span := r.tracer.Start(ctx, "EntityRepository.UpdateState",
		trace.WithAttributes(
			attribute.String("entity.id", id),
			attribute.String("entity.kind", string(kind)),
			attribute.String("tenant.id", tenantID),
			attribute.String("state.from", string(from)),
			attribute.String("state.to", string(to)),
		),
	)
	defer span.End()

	entity, err := r.next.UpdateState(ctx, tenantID, kind, id, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return entity, err
}
