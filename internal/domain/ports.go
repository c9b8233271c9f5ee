package domain

import "context"

// EntityRepository defines the persistence contract for governed entities.
// All access is tenant-scoped; entities are never physically deleted.
type EntityRepository interface {
	Create(ctx context.Context, entity Entity) error
	Get(ctx context.Context, tenantID string, kind EntityKind, id string) (Entity, error)

	// UpdateState applies from→to keyed on the state read at validation
	// time. If the stored state no longer equals from, it returns
	// ErrStaleState and writes nothing (optimistic concurrency).
	UpdateState(ctx context.Context, tenantID string, kind EntityKind, id string, from, to State) (Entity, error)
}

// AuditRepository persists the per-tenant hash-linked event streams.
type AuditRepository interface {
	// Append runs build under the same transaction that read the stream
	// tail, so the (seq, prevHash) pair handed to build cannot be raced
	// by a concurrent append to the same stream. build returns the fully
	// hashed event to insert.
	Append(ctx context.Context, streamID string, build func(seq int64, prevHash string) (AuditEvent, error)) (AuditEvent, error)

	// Stream returns every event of a stream in sequence order.
	Stream(ctx context.Context, streamID string) ([]AuditEvent, error)
}

// SettlementRepository persists settlements keyed by (tenantID, id).
type SettlementRepository interface {
	Create(ctx context.Context, s Settlement) error
	Get(ctx context.Context, tenantID, id string) (Settlement, error)

	// Update persists s keyed on the state previously read. A concurrent
	// change surfaces as ErrStaleState.
	Update(ctx context.Context, s Settlement, expected State) error
}

// TransitionValidator checks state-machine legality and yields the new
// state. Implemented by the FSM adapter.
type TransitionValidator interface {
	Apply(ctx context.Context, kind EntityKind, current, target State) (State, error)
}

// EventPublisher emits applied audit events for async post-commit work.
type EventPublisher interface {
	Publish(ctx context.Context, event AuditEvent) error
}
