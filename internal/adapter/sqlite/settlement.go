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

// SettlementRepository implements domain.SettlementRepository using SQLite.
// Satisfactions and releases are stored as JSON columns; the settlement
// row is small and always read and written whole.
type SettlementRepository struct {
	db *sql.DB
}

// Compile-time check: SettlementRepository implements domain.SettlementRepository.
var _ domain.SettlementRepository = (*SettlementRepository)(nil)

// NewSettlementRepository creates the repository over the store's connection.
func NewSettlementRepository(store *Store) *SettlementRepository {
	return &SettlementRepository{db: store.DB()}
}

func (r *SettlementRepository) Create(ctx context.Context, s domain.Settlement) error {
	satisfied, releases, err := marshalLists(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO settlements (tenant_id, id, order_id, template_code, state,
		   escrow_cents, satisfied, releases, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TenantID, s.ID, s.OrderID, s.TemplateCode, string(s.State),
		s.EscrowCents, satisfied, releases,
		s.CreatedAt.Format(timeFormat), s.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("settlement %s/%s already exists", s.TenantID, s.ID)
		}
		return classify(fmt.Errorf("inserting settlement: %w", err))
	}
	return nil
}

func (r *SettlementRepository) Get(ctx context.Context, tenantID, id string) (domain.Settlement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, id, order_id, template_code, state, escrow_cents,
		   satisfied, releases, created_at, updated_at
		 FROM settlements WHERE tenant_id = ? AND id = ?`, tenantID, id)

	var s domain.Settlement
	var state, satisfied, releases, createdAt, updatedAt string
	err := row.Scan(&s.TenantID, &s.ID, &s.OrderID, &s.TemplateCode, &state,
		&s.EscrowCents, &satisfied, &releases, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Settlement{}, domain.ErrEntityNotFound
		}
		return domain.Settlement{}, classify(fmt.Errorf("scanning settlement: %w", err))
	}

	s.State = domain.State(state)
	if err := json.Unmarshal([]byte(satisfied), &s.Satisfied); err != nil {
		return domain.Settlement{}, fmt.Errorf("decoding satisfactions: %w", err)
	}
	if err := json.Unmarshal([]byte(releases), &s.Releases); err != nil {
		return domain.Settlement{}, fmt.Errorf("decoding releases: %w", err)
	}
	s.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	s.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return s, nil
}

// Update persists s keyed on the state previously read. Zero rows means
// a stale read or a missing row, disambiguated by a follow-up lookup.
func (r *SettlementRepository) Update(ctx context.Context, s domain.Settlement, expected domain.State) error {
	satisfied, releases, err := marshalLists(s)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE settlements SET state = ?, satisfied = ?, releases = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND state = ?`,
		string(s.State), satisfied, releases, s.UpdatedAt.Format(timeFormat),
		s.TenantID, s.ID, string(expected),
	)
	if err != nil {
		return classify(fmt.Errorf("updating settlement: %w", err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, s.TenantID, s.ID); err != nil {
			return err
		}
		return domain.ErrStaleState
	}
	return nil
}

func marshalLists(s domain.Settlement) (satisfied, releases string, err error) {
	sat, err := json.Marshal(s.Satisfied)
	if err != nil {
		return "", "", fmt.Errorf("encoding satisfactions: %w", err)
	}
	rel, err := json.Marshal(s.Releases)
	if err != nil {
		return "", "", fmt.Errorf("encoding releases: %w", err)
	}
	return string(sat), string(rel), nil
}
