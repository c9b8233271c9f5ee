package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ciclogit/opskernel/internal/domain"
)

// AuditRepository implements domain.AuditRepository using SQLite. Appends
// to one stream are serialized: the tail read and the insert share a
// transaction, and the (stream, seq) primary key rejects a racing append
// that read the same tail, which surfaces as a retryable transient error.
type AuditRepository struct {
	db *sql.DB
}

// Compile-time check: AuditRepository implements domain.AuditRepository.
var _ domain.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates the repository over the store's connection.
func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{db: store.DB()}
}

func (r *AuditRepository) Append(ctx context.Context, streamID string, build func(seq int64, prevHash string) (domain.AuditEvent, error)) (domain.AuditEvent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AuditEvent{}, classify(fmt.Errorf("beginning append tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	seq := int64(1)
	prevHash := domain.GenesisHash
	row := tx.QueryRowContext(ctx,
		`SELECT seq, hash FROM audit_events
		 WHERE tenant_stream_id = ? ORDER BY seq DESC LIMIT 1`, streamID)
	var tailSeq int64
	var tailHash string
	switch err := row.Scan(&tailSeq, &tailHash); {
	case err == nil:
		seq = tailSeq + 1
		prevHash = tailHash
	case errors.Is(err, sql.ErrNoRows):
		// Genesis append.
	default:
		return domain.AuditEvent{}, classify(fmt.Errorf("reading stream tail: %w", err))
	}

	event, err := build(seq, prevHash)
	if err != nil {
		return domain.AuditEvent{}, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_events (tenant_stream_id, seq, id, ts, actor_id, actor_role,
		   operation_code, catalog_version, entity_kind, entity_id, from_state, to_state,
		   outcome, details, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.TenantStreamID, event.Seq, event.ID, event.Timestamp.Format(timeFormat),
		event.ActorID, string(event.ActorRole), event.OperationCode, event.CatalogVersion,
		string(event.EntityKind), event.EntityID, string(event.FromState), string(event.ToState),
		string(event.Outcome), event.Details, event.PrevHash, event.Hash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent append won the race for this seq; the caller
			// retries from the rules step with a fresh read.
			return domain.AuditEvent{}, &domain.TransientStoreError{Err: err}
		}
		return domain.AuditEvent{}, classify(fmt.Errorf("inserting audit event: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return domain.AuditEvent{}, classify(fmt.Errorf("committing append: %w", err))
	}
	return event, nil
}

func (r *AuditRepository) Stream(ctx context.Context, streamID string) ([]domain.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_stream_id, seq, id, ts, actor_id, actor_role, operation_code,
		   catalog_version, entity_kind, entity_id, from_state, to_state, outcome,
		   details, prev_hash, hash
		 FROM audit_events WHERE tenant_stream_id = ? ORDER BY seq ASC`, streamID)
	if err != nil {
		return nil, classify(fmt.Errorf("listing stream: %w", err))
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var ts, role, kind, from, to, outcome string
		err := rows.Scan(&e.TenantStreamID, &e.Seq, &e.ID, &ts, &e.ActorID, &role,
			&e.OperationCode, &e.CatalogVersion, &kind, &e.EntityID, &from, &to,
			&outcome, &e.Details, &e.PrevHash, &e.Hash)
		if err != nil {
			return nil, classify(fmt.Errorf("scanning audit event: %w", err))
		}
		e.Timestamp, _ = time.Parse(timeFormat, ts)
		e.ActorRole = domain.Role(role)
		e.EntityKind = domain.EntityKind(kind)
		e.FromState = domain.State(from)
		e.ToState = domain.State(to)
		e.Outcome = domain.Outcome(outcome)
		events = append(events, e)
	}
	return events, rows.Err()
}
