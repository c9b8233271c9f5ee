package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ciclogit/opskernel/internal/domain"
)

// SettlementEngine advances settlements through their milestone sequence
// and computes the final split. It owns settlement persistence; the
// operation executor runs the surrounding pipeline (gate, rules, evidence,
// audit) and delegates the settlement mutation here.
type SettlementEngine struct {
	settlements domain.SettlementRepository
	entities    domain.EntityRepository
	validator   domain.TransitionValidator
}

// NewSettlementEngine wires the engine's dependencies.
func NewSettlementEngine(settlements domain.SettlementRepository, entities domain.EntityRepository, validator domain.TransitionValidator) *SettlementEngine {
	return &SettlementEngine{settlements: settlements, entities: entities, validator: validator}
}

// Create persists a new settlement in state CREATED. The template must be
// published and structurally valid; escrow is notional until the escrow
// operation confirms the hold.
func (e *SettlementEngine) Create(ctx context.Context, tenantID, orderID, templateCode string, escrowCents int64) (domain.Settlement, error) {
	template, err := domain.TemplateFor(templateCode)
	if err != nil {
		return domain.Settlement{}, err
	}
	if err := template.Validate(); err != nil {
		return domain.Settlement{}, err
	}
	if escrowCents <= 0 {
		return domain.Settlement{}, fmt.Errorf("escrow must be positive, got %d", escrowCents)
	}

	id, err := generateID()
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("generating settlement id: %w", err)
	}
	now := time.Now().UTC()
	s := domain.Settlement{
		ID:           id,
		TenantID:     tenantID,
		OrderID:      orderID,
		TemplateCode: templateCode,
		State:        domain.SettlementCreated,
		EscrowCents:  escrowCents,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.settlements.Create(ctx, s); err != nil {
		return domain.Settlement{}, fmt.Errorf("creating settlement: %w", err)
	}
	return s, nil
}

// Get returns a settlement by tenant-scoped id.
func (e *SettlementEngine) Get(ctx context.Context, tenantID, id string) (domain.Settlement, error) {
	return e.settlements.Get(ctx, tenantID, id)
}

// Escrow records the notional hold, moving CREATED→ESCROWED.
func (e *SettlementEngine) Escrow(ctx context.Context, s domain.Settlement) (domain.Settlement, error) {
	from := s.State
	next, err := e.validator.Apply(ctx, domain.KindSettlement, from, domain.SettlementEscrowed)
	if err != nil {
		return domain.Settlement{}, err
	}
	s.State = next
	s.UpdatedAt = time.Now().UTC()
	if err := e.settlements.Update(ctx, s, from); err != nil {
		return domain.Settlement{}, err
	}
	return s, nil
}

// ReleaseResult reports a milestone release. NoOp marks an idempotent
// replay of an already-released milestone: the settlement is returned
// unchanged and no further audit event should be appended.
type ReleaseResult struct {
	Settlement domain.Settlement
	NoOp       bool
}

// ReleaseMilestone satisfies one milestone, strictly in ordinal order.
// Releasing an already-satisfied milestone is a no-op success, because a
// network retry of a release call must never double-pay. The final
// milestone computes the per-party split and moves the settlement to
// RELEASED with exact conservation of the escrow amount.
func (e *SettlementEngine) ReleaseMilestone(ctx context.Context, s domain.Settlement, milestoneID domain.MilestoneID) (ReleaseResult, error) {
	template, err := domain.TemplateFor(s.TemplateCode)
	if err != nil {
		return ReleaseResult{}, err
	}
	milestone, ok := template.Milestone(milestoneID)
	if !ok {
		return ReleaseResult{}, &domain.InvalidMilestoneError{
			SettlementID: s.ID, MilestoneID: milestoneID,
			Reason: fmt.Sprintf("not defined by template %s", s.TemplateCode),
		}
	}

	if s.MilestoneSatisfied(milestoneID) {
		return ReleaseResult{Settlement: s, NoOp: true}, nil
	}

	if s.State != domain.SettlementEscrowed && s.State != domain.SettlementPartialReleased {
		return ReleaseResult{}, &domain.InvalidMilestoneError{
			SettlementID: s.ID, MilestoneID: milestoneID,
			Reason: fmt.Sprintf("state %q does not permit release", s.State),
		}
	}

	for _, m := range template.Milestones {
		if m.Rank < milestone.Rank && !s.MilestoneSatisfied(m.ID) {
			return ReleaseResult{}, &domain.InvalidMilestoneError{
				SettlementID: s.ID, MilestoneID: milestoneID,
				Reason: fmt.Sprintf("milestone %s (rank %d) not yet satisfied", m.ID, m.Rank),
			}
		}
	}

	final := milestone.Rank == template.Milestones[len(template.Milestones)-1].Rank
	if final {
		if err := e.requireOrderDelivered(ctx, s); err != nil {
			return ReleaseResult{}, err
		}
	}

	from := s.State
	now := time.Now().UTC()
	s.Satisfied = append(s.Satisfied, domain.Satisfaction{MilestoneID: milestoneID, SatisfiedAt: now})

	if final {
		releases := template.ComputeSplit(s.EscrowCents)
		for i := range releases {
			releases[i].ReleasedAt = now
		}
		s.Releases = append(s.Releases, releases...)
		if got := s.ReleasedCents(); got != s.EscrowCents {
			return ReleaseResult{}, fmt.Errorf("settlement %s: released %d of escrow %d", s.ID, got, s.EscrowCents)
		}
		next, err := e.validator.Apply(ctx, domain.KindSettlement, from, domain.SettlementReleased)
		if err != nil {
			return ReleaseResult{}, err
		}
		s.State = next
	} else if from == domain.SettlementEscrowed {
		next, err := e.validator.Apply(ctx, domain.KindSettlement, from, domain.SettlementPartialReleased)
		if err != nil {
			return ReleaseResult{}, err
		}
		s.State = next
	}

	s.UpdatedAt = now
	if err := e.settlements.Update(ctx, s, from); err != nil {
		return ReleaseResult{}, err
	}
	return ReleaseResult{Settlement: s}, nil
}

// MarkFailed moves a settlement to FAILED after a pipeline failure. A
// settlement is never left ambiguous: a rejected milestone release either
// no-ops (idempotent replay) or fails the settlement. Terminal states are
// left untouched.
func (e *SettlementEngine) MarkFailed(ctx context.Context, s domain.Settlement) (domain.Settlement, error) {
	if !domain.CanTransition(domain.KindSettlement, s.State, domain.SettlementFailed) {
		return s, nil
	}
	from := s.State
	s.State = domain.SettlementFailed
	s.UpdatedAt = time.Now().UTC()
	if err := e.settlements.Update(ctx, s, from); err != nil {
		return domain.Settlement{}, err
	}
	return s, nil
}

// requireOrderDelivered gates the final milestone on the underlying
// order having reached delivery.
func (e *SettlementEngine) requireOrderDelivered(ctx context.Context, s domain.Settlement) error {
	order, err := e.entities.Get(ctx, s.TenantID, domain.KindOrder, s.OrderID)
	if err != nil {
		return fmt.Errorf("loading order %s: %w", s.OrderID, err)
	}
	if order.State != domain.OrderDelivered && order.State != domain.OrderClosed {
		return &domain.InvalidMilestoneError{
			SettlementID: s.ID, MilestoneID: domain.MilestoneM5,
			Reason: fmt.Sprintf("order %s is %q, delivery not confirmed", s.OrderID, order.State),
		}
	}
	return nil
}
