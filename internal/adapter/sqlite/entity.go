package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ciclogit/opskernel/internal/domain"
)

// EntityRepository implements domain.EntityRepository using SQLite.
type EntityRepository struct {
	db *sql.DB
}

// Compile-time check: EntityRepository implements domain.EntityRepository.
var _ domain.EntityRepository = (*EntityRepository)(nil)

// NewEntityRepository creates the repository over the store's connection.
func NewEntityRepository(store *Store) *EntityRepository {
	return &EntityRepository{db: store.DB()}
}

func (r *EntityRepository) Create(ctx context.Context, e domain.Entity) error {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entities (tenant_id, kind, id, state, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TenantID, string(e.Kind), e.ID, string(e.State), string(payload),
		e.CreatedAt.Format(timeFormat),
		e.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entity %s/%s/%s already exists", e.TenantID, e.Kind, e.ID)
		}
		return classify(fmt.Errorf("inserting entity: %w", err))
	}
	return nil
}

func (r *EntityRepository) Get(ctx context.Context, tenantID string, kind domain.EntityKind, id string) (domain.Entity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, kind, id, state, payload, created_at, updated_at
		 FROM entities WHERE tenant_id = ? AND kind = ? AND id = ?`,
		tenantID, string(kind), id,
	)
	return scanEntity(row)
}

// UpdateState applies from→to keyed on the state read at validation time.
// Zero rows affected means either a stale read or a missing entity; the
// two are disambiguated with a follow-up existence check.
func (r *EntityRepository) UpdateState(ctx context.Context, tenantID string, kind domain.EntityKind, id string, from, to domain.State) (domain.Entity, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE entities SET state = ?, updated_at = ?
		 WHERE tenant_id = ? AND kind = ? AND id = ? AND state = ?`,
		string(to), time.Now().UTC().Format(timeFormat),
		tenantID, string(kind), id, string(from),
	)
	if err != nil {
		return domain.Entity{}, classify(fmt.Errorf("updating entity state: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, tenantID, kind, id); err != nil {
			return domain.Entity{}, err
		}
		return domain.Entity{}, domain.ErrStaleState
	}

	return r.Get(ctx, tenantID, kind, id)
}

func scanEntity(row *sql.Row) (domain.Entity, error) {
	var e domain.Entity
	var kind, state, payload, createdAt, updatedAt string

	err := row.Scan(&e.TenantID, &kind, &e.ID, &state, &payload, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Entity{}, domain.ErrEntityNotFound
		}
		return domain.Entity{}, classify(fmt.Errorf("scanning entity: %w", err))
	}

	e.Kind = domain.EntityKind(kind)
	e.State = domain.State(state)
	e.Payload = json.RawMessage(payload)
	e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	e.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return e, nil
}
