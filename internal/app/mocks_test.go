package app_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/ciclogit/opskernel/internal/domain"
)

// --- Mocks ---

type entityKey struct {
	tenantID string
	kind     domain.EntityKind
	id       string
}

type mockEntityRepo struct {
	mu       sync.Mutex
	entities map[entityKey]domain.Entity
}

func newMockEntityRepo() *mockEntityRepo {
	return &mockEntityRepo{entities: make(map[entityKey]domain.Entity)}
}

func (m *mockEntityRepo) Create(_ context.Context, e domain.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[entityKey{e.TenantID, e.Kind, e.ID}] = e
	return nil
}

func (m *mockEntityRepo) Get(_ context.Context, tenantID string, kind domain.EntityKind, id string) (domain.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[entityKey{tenantID, kind, id}]
	if !ok {
		return domain.Entity{}, domain.ErrEntityNotFound
	}
	return e, nil
}

func (m *mockEntityRepo) UpdateState(_ context.Context, tenantID string, kind domain.EntityKind, id string, from, to domain.State) (domain.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

type mockAuditRepo struct {
	mu      sync.Mutex
	streams map[string][]domain.AuditEvent
}

func newMockAuditRepo() *mockAuditRepo {
	return &mockAuditRepo{streams: make(map[string][]domain.AuditEvent)}
}

func (m *mockAuditRepo) Append(_ context.Context, streamID string, build func(seq int64, prevHash string) (domain.AuditEvent, error)) (domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream := m.streams[streamID]
	seq := int64(len(stream) + 1)
	prevHash := domain.GenesisHash
	if len(stream) > 0 {
		prevHash = stream[len(stream)-1].Hash
	}
	event, err := build(seq, prevHash)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	m.streams[streamID] = append(stream, event)
	return event, nil
}

func (m *mockAuditRepo) Stream(_ context.Context, streamID string) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEvent, len(m.streams[streamID]))
	copy(out, m.streams[streamID])
	return out, nil
}

type settlementKey struct {
	tenantID string
	id       string
}

type mockSettlementRepo struct {
	mu          sync.Mutex
	settlements map[settlementKey]domain.Settlement
}

func newMockSettlementRepo() *mockSettlementRepo {
	return &mockSettlementRepo{settlements: make(map[settlementKey]domain.Settlement)}
}

func (m *mockSettlementRepo) Create(_ context.Context, s domain.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[settlementKey{s.TenantID, s.ID}] = s
	return nil
}

func (m *mockSettlementRepo) Get(_ context.Context, tenantID, id string) (domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[settlementKey{tenantID, id}]
	if !ok {
		return domain.Settlement{}, domain.ErrEntityNotFound
	}
	return s, nil
}

func (m *mockSettlementRepo) Update(_ context.Context, s domain.Settlement, expected domain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := settlementKey{s.TenantID, s.ID}
	stored, ok := m.settlements[key]
	if !ok {
		return domain.ErrEntityNotFound
	}
	if stored.State != expected {
		return domain.ErrStaleState
	}
	m.settlements[key] = s
	return nil
}

// tableValidator validates transitions straight off the domain tables.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, kind domain.EntityKind, current, target domain.State) (domain.State, error) {
	if !domain.CanTransition(kind, current, target) {
		return "", &domain.InvalidTransitionError{Kind: kind, From: current, To: target}
	}
	return target, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, event domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) published() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// flakyEntityRepo fails UpdateState with a transient error a fixed number
// of times before delegating.
type flakyEntityRepo struct {
	*mockEntityRepo
	failures int
}

func (f *flakyEntityRepo) UpdateState(ctx context.Context, tenantID string, kind domain.EntityKind, id string, from, to domain.State) (domain.Entity, error) {
	if f.failures > 0 {
		f.failures--
		return domain.Entity{}, &domain.TransientStoreError{Err: fmt.Errorf("database is locked")}
	}
	return f.mockEntityRepo.UpdateState(ctx, tenantID, kind, id, from, to)
}
