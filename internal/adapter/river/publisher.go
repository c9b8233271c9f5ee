package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/ciclogit/opskernel/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// OperationJobArgs carries an applied operation for async post-commit
// processing. River serializes this as JSON into its job queue table. It
// snapshots the audit event at publish time, so the worker never needs to
// re-read the chain.
type OperationJobArgs struct {
	EventID        string `json:"event_id"`
	TenantStreamID string `json:"tenant_stream_id"`
	Seq            int64  `json:"seq"`
	OperationCode  string `json:"operation_code"`
	EntityKind     string `json:"entity_kind"`
	EntityID       string `json:"entity_id"`
	FromState      string `json:"from_state"`
	ToState        string `json:"to_state"`
	Hash           string `json:"hash"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (OperationJobArgs) Kind() string { return "operation.applied" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues an applied audit event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.AuditEvent) error {
	_, err := p.client.Insert(ctx, OperationJobArgs{
		EventID:        event.ID,
		TenantStreamID: event.TenantStreamID,
		Seq:            event.Seq,
		OperationCode:  event.OperationCode,
		EntityKind:     string(event.EntityKind),
		EntityID:       event.EntityID,
		FromState:      string(event.FromState),
		ToState:        string(event.ToState),
		Hash:           event.Hash,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing operation job: %w", err)
	}
	return nil
}
