package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ciclogit/opskernel/internal/domain"
)

// maxAttempts bounds retries of the rules-onward pipeline section on
// stale-state conflicts and transient store errors.
const maxAttempts = 3

// Request is one operation invocation against the kernel.
type Request struct {
	Principal domain.Principal
	Operation string
	EntityID  string
	Payload   json.RawMessage
	Evidence  []domain.EvidenceRecord
}

// OperationResult is the outcome of a completed pipeline run. Violations
// is populated only on rule rejections; AuditEvent only when an event was
// appended for this invocation (idempotent replays append nothing).
type OperationResult struct {
	Success    bool
	Entity     *domain.Entity
	Settlement *domain.Settlement
	Violations []string
	AuditEvent *domain.AuditEvent
}

// Executor is the single entry point for every state-changing business
// operation. The step order is fixed: gate, rules, transition legality,
// evidence, persist, audit append, settlement hook. Authorization runs
// first so unauthorized callers learn nothing about later checks; rules
// run before any mutation; evidence is checked only for transitions that
// are otherwise legal; the audit append is the last write.
type Executor struct {
	catalog    *domain.Catalog
	gate       Gate
	rules      *RuleRegistry
	validator  domain.TransitionValidator
	evidence   *EvidenceEnforcer
	chain      *AuditChain
	entities   domain.EntityRepository
	settlement *SettlementEngine
	publisher  domain.EventPublisher
}

// NewExecutor wires the pipeline.
func NewExecutor(
	catalog *domain.Catalog,
	rules *RuleRegistry,
	validator domain.TransitionValidator,
	evidence *EvidenceEnforcer,
	chain *AuditChain,
	entities domain.EntityRepository,
	settlement *SettlementEngine,
	publisher domain.EventPublisher,
) *Executor {
	return &Executor{
		catalog:    catalog,
		rules:      rules,
		validator:  validator,
		evidence:   evidence,
		chain:      chain,
		entities:   entities,
		settlement: settlement,
		publisher:  publisher,
	}
}

// Execute runs the full pipeline for one request. Catalog misses and
// authorization failures abort immediately and are not audited; every
// later rejection is appended to the tenant's stream with outcome
// "rejected" before the error is returned.
func (x *Executor) Execute(ctx context.Context, req Request) (OperationResult, error) {
	def, err := x.catalog.Lookup(req.Operation)
	if err != nil {
		return OperationResult{}, err
	}

	target, settlement, err := x.loadTarget(ctx, def, req)
	if err != nil {
		return OperationResult{}, err
	}

	if err := x.gate.Authorize(req.Principal, def, target); err != nil {
		return OperationResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// Rules may depend on state that has since changed, so the
			// whole section from the rules step forward re-runs against
			// a fresh read.
			target, settlement, err = x.loadTarget(ctx, def, req)
			if err != nil {
				return OperationResult{}, err
			}
		}

		result, err := x.attempt(ctx, def, req, target, settlement)
		if retryable(err) {
			lastErr = err
			continue
		}
		return result, err
	}
	return OperationResult{}, lastErr
}

// loadTarget resolves the entity the operation acts on. Create operations
// synthesize a tenant-scoped view so the gate's tenant check is uniform.
// Repository lookups are tenant-keyed, so a foreign entity is simply
// absent rather than discoverable.
func (x *Executor) loadTarget(ctx context.Context, def domain.OperationDefinition, req Request) (domain.Entity, domain.Settlement, error) {
	if def.Creates {
		return domain.Entity{TenantID: req.Principal.TenantID, Kind: def.EntityKind, State: domain.MachineFor(def.EntityKind).Initial}, domain.Settlement{}, nil
	}
	if def.EntityKind == domain.KindSettlement {
		s, err := x.settlement.Get(ctx, req.Principal.TenantID, req.EntityID)
		if err != nil {
			return domain.Entity{}, domain.Settlement{}, err
		}
		view := domain.Entity{ID: s.ID, TenantID: s.TenantID, Kind: domain.KindSettlement, State: s.State}
		return view, s, nil
	}
	entity, err := x.entities.Get(ctx, req.Principal.TenantID, def.EntityKind, req.EntityID)
	if err != nil {
		return domain.Entity{}, domain.Settlement{}, err
	}
	return entity, domain.Settlement{}, nil
}

// attempt runs the pipeline from the rules step forward against one
// consistent read of the target.
func (x *Executor) attempt(ctx context.Context, def domain.OperationDefinition, req Request, target domain.Entity, settlement domain.Settlement) (OperationResult, error) {
	rc := RuleContext{Principal: req.Principal, Entity: target, Now: time.Now().UTC()}

	// Idempotent milestone replay short-circuits before any further
	// validation: a network retry of a completed release must not
	// double-pay nor double-append.
	if def.Code == domain.OpSettlementReleaseMilestone {
		payload, err := decodeSettlementPayload(req.Payload)
		if err == nil && settlement.MilestoneSatisfied(payload.MilestoneID) {
			s := settlement
			return OperationResult{Success: true, Settlement: &s}, nil
		}
	}

	// Rules: all of them run; the violation list is exhaustive.
	if violations := x.rules.Validate(def.Code, req.Payload, rc); len(violations) > 0 {
		err := &domain.RuleViolationError{OperationCode: def.Code, Violations: violations}
		x.reject(ctx, def, req, target, settlement, err)
		return OperationResult{Violations: violations}, err
	}

	// Transition legality. Creates skip this (initial state, no
	// transition); settlement milestone releases are validated by the
	// engine against the same machine table.
	if !def.Creates && def.Code != domain.OpSettlementReleaseMilestone {
		if _, err := x.validator.Apply(ctx, def.EntityKind, target.State, def.ToState); err != nil {
			x.reject(ctx, def, req, target, settlement, err)
			return OperationResult{}, err
		}
	}

	// Evidence presence; the settlement audit gate also verifies the
	// tenant's chain before any release.
	if err := x.evidence.Check(ctx, def.EvidencePolicy, req.Principal.TenantID, req.Evidence); err != nil {
		x.reject(ctx, def, req, target, settlement, err)
		return OperationResult{}, err
	}

	return x.commit(ctx, def, req, target, settlement)
}

// commit performs the entity mutation and the audit append. The append is
// the last write: only operations that passed every gate are recorded as
// applied.
func (x *Executor) commit(ctx context.Context, def domain.OperationDefinition, req Request, target domain.Entity, settlement domain.Settlement) (OperationResult, error) {
	result := OperationResult{}
	entry := AuditEntry{
		TenantStreamID: req.Principal.TenantID,
		Actor:          req.Principal,
		OperationCode:  def.Code,
		EntityKind:     def.EntityKind,
		FromState:      target.State,
		ToState:        def.ToState,
		Outcome:        domain.OutcomeApplied,
	}

	switch {
	case def.EntityKind == domain.KindSettlement && def.Creates:
		payload, err := decodeSettlementPayload(req.Payload)
		if err != nil {
			return OperationResult{}, err
		}
		s, err := x.settlement.Create(ctx, req.Principal.TenantID, payload.OrderID, payload.TemplateCode, payload.EscrowCents)
		if err != nil {
			return OperationResult{}, err
		}
		result.Settlement = &s
		entry.EntityID = s.ID
		entry.FromState = s.State
		entry.ToState = s.State

	case def.Code == domain.OpSettlementEscrow:
		s, err := x.settlement.Escrow(ctx, settlement)
		if err != nil {
			return OperationResult{}, err
		}
		result.Settlement = &s
		entry.EntityID = s.ID
		entry.ToState = s.State

	case def.Code == domain.OpSettlementReleaseMilestone:
		payload, err := decodeSettlementPayload(req.Payload)
		if err != nil {
			return OperationResult{}, err
		}
		release, err := x.settlement.ReleaseMilestone(ctx, settlement, payload.MilestoneID)
		if err != nil {
			var invalid *domain.InvalidMilestoneError
			if errors.As(err, &invalid) {
				x.reject(ctx, def, req, target, settlement, err)
			}
			return OperationResult{}, err
		}
		if release.NoOp {
			s := release.Settlement
			return OperationResult{Success: true, Settlement: &s}, nil
		}
		s := release.Settlement
		result.Settlement = &s
		entry.EntityID = s.ID
		entry.ToState = s.State
		entry.Details = fmt.Sprintf("milestone %s released", payload.MilestoneID)

	case def.Creates:
		id, err := generateID()
		if err != nil {
			return OperationResult{}, fmt.Errorf("generating entity id: %w", err)
		}
		entity := domain.NewEntity(id, req.Principal.TenantID, def.EntityKind, req.Payload)
		if err := x.entities.Create(ctx, entity); err != nil {
			return OperationResult{}, err
		}
		result.Entity = &entity
		entry.EntityID = entity.ID
		entry.FromState = entity.State
		entry.ToState = entity.State

	default:
		entity, err := x.entities.UpdateState(ctx, req.Principal.TenantID, def.EntityKind, req.EntityID, target.State, def.ToState)
		if err != nil {
			return OperationResult{}, err
		}
		result.Entity = &entity
		entry.EntityID = entity.ID
	}

	event, err := x.chain.Append(ctx, entry)
	if err != nil {
		return OperationResult{}, err
	}
	result.AuditEvent = &event
	result.Success = true

	// Post-commit: the operation is already committed, so a publish
	// failure is logged, not surfaced.
	if err := x.publisher.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "publishing operation event",
			"operation", def.Code, "stream", event.TenantStreamID, "error", err)
	}
	return result, nil
}

// reject records a failed attempt for forensic completeness, tagged
// rejected. A rejected settlement milestone release also fails the
// settlement so it is never left ambiguous. Append failures here must not
// mask the original rejection.
func (x *Executor) reject(ctx context.Context, def domain.OperationDefinition, req Request, target domain.Entity, settlement domain.Settlement, cause error) {
	details := cause.Error()

	if def.Code == domain.OpSettlementReleaseMilestone && settlement.ID != "" {
		if failed, err := x.settlement.MarkFailed(ctx, settlement); err != nil {
			slog.WarnContext(ctx, "marking settlement failed",
				"settlement", settlement.ID, "error", err)
		} else if failed.State == domain.SettlementFailed && settlement.State != domain.SettlementFailed {
			details = fmt.Sprintf("%s; settlement marked FAILED", details)
			target.State = settlement.State
		}
	}

	entry := AuditEntry{
		TenantStreamID: req.Principal.TenantID,
		Actor:          req.Principal,
		OperationCode:  def.Code,
		EntityKind:     def.EntityKind,
		EntityID:       target.ID,
		FromState:      target.State,
		ToState:        def.ToState,
		Outcome:        domain.OutcomeRejected,
		Details:        details,
	}
	if _, err := x.chain.Append(ctx, entry); err != nil {
		slog.WarnContext(ctx, "appending rejection audit event",
			"operation", def.Code, "stream", req.Principal.TenantID, "error", err)
	}
}

// retryable reports whether the pipeline should re-run from the rules
// step: optimistic-concurrency conflicts and transient store failures.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var transient *domain.TransientStoreError
	return errors.Is(err, domain.ErrStaleState) || errors.As(err, &transient)
}

func decodeSettlementPayload(raw json.RawMessage) (domain.SettlementPayload, error) {
	decoded, err := domain.DecodePayload(domain.KindSettlement, raw)
	if err != nil {
		return domain.SettlementPayload{}, err
	}
	return *decoded.(*domain.SettlementPayload), nil
}
