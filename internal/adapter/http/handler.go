package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ciclogit/opskernel/internal/app"
	"github.com/ciclogit/opskernel/internal/domain"
)

// Stable reason codes returned with every rejection.
const (
	reasonUnknownOperation  = "UNKNOWN_OPERATION"
	reasonEntityNotFound    = "ENTITY_NOT_FOUND"
	reasonNotPermitted      = "NOT_PERMITTED"
	reasonRuleViolation     = "RULE_VIOLATION"
	reasonInvalidTransition = "INVALID_TRANSITION"
	reasonInvalidMilestone  = "INVALID_MILESTONE"
	reasonMissingEvidence   = "MISSING_EVIDENCE"
	reasonChainIntegrity    = "CHAIN_INTEGRITY"
	reasonStoreError        = "STORE_ERROR"
)

// EvidenceInput is one supplied proof record.
type EvidenceInput struct {
	Kind        string `json:"kind" enum:"type_a,type_b,telemetry" doc:"Evidence kind"`
	Ref         string `json:"ref" doc:"Opaque reference to the stored proof artifact"`
	CollectedAt string `json:"collected_at,omitempty" doc:"Collection timestamp (ISO 8601)"`
}

// EntityResponse is the API representation of a governed entity.
type EntityResponse struct {
	ID        string          `json:"id" doc:"Unique identifier"`
	TenantID  string          `json:"tenant_id" doc:"Owning tenant"`
	Kind      string          `json:"kind" doc:"Entity kind"`
	State     string          `json:"state" doc:"Lifecycle state"`
	Payload   json.RawMessage `json:"payload" doc:"Domain payload"`
	CreatedAt string          `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt string          `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

// ReleaseResponse is one recorded payout.
type ReleaseResponse struct {
	MilestoneID string `json:"milestone_id"`
	Party       string `json:"party"`
	AmountCents int64  `json:"amount_cents"`
	ReleasedAt  string `json:"released_at"`
}

// SettlementResponse is the API representation of a settlement.
type SettlementResponse struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	OrderID      string            `json:"order_id"`
	TemplateCode string            `json:"template_code"`
	State        string            `json:"state"`
	EscrowCents  int64             `json:"escrow_cents"`
	Satisfied    []string          `json:"satisfied_milestones"`
	Releases     []ReleaseResponse `json:"releases"`
}

// AuditEventResponse is the API representation of one audit record.
type AuditEventResponse struct {
	ID             string `json:"id"`
	TenantStreamID string `json:"tenant_stream_id"`
	Seq            int64  `json:"seq"`
	Timestamp      string `json:"ts"`
	ActorID        string `json:"actor_id"`
	ActorRole      string `json:"actor_role"`
	OperationCode  string `json:"operation_code"`
	EntityKind     string `json:"entity_kind"`
	EntityID       string `json:"entity_id"`
	FromState      string `json:"from_state"`
	ToState        string `json:"to_state"`
	Outcome        string `json:"outcome"`
	PrevHash       string `json:"prev_hash"`
	Hash           string `json:"hash"`
}

// OperationResponse is the result of an applied operation.
type OperationResponse struct {
	Success    bool                `json:"success"`
	Entity     *EntityResponse     `json:"entity,omitempty"`
	Settlement *SettlementResponse `json:"settlement,omitempty"`
	AuditEvent *AuditEventResponse `json:"audit_event,omitempty"`
}

func toEntityResponse(e domain.Entity) *EntityResponse {
	return &EntityResponse{
		ID:        e.ID,
		TenantID:  e.TenantID,
		Kind:      string(e.Kind),
		State:     string(e.State),
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
}

func toSettlementResponse(s domain.Settlement) *SettlementResponse {
	satisfied := make([]string, len(s.Satisfied))
	for i, m := range s.Satisfied {
		satisfied[i] = string(m.MilestoneID)
	}
	releases := make([]ReleaseResponse, len(s.Releases))
	for i, r := range s.Releases {
		releases[i] = ReleaseResponse{
			MilestoneID: string(r.MilestoneID),
			Party:       r.Party,
			AmountCents: r.AmountCents,
			ReleasedAt:  r.ReleasedAt.Format(time.RFC3339),
		}
	}
	return &SettlementResponse{
		ID:           s.ID,
		TenantID:     s.TenantID,
		OrderID:      s.OrderID,
		TemplateCode: s.TemplateCode,
		State:        string(s.State),
		EscrowCents:  s.EscrowCents,
		Satisfied:    satisfied,
		Releases:     releases,
	}
}

func toAuditEventResponse(e domain.AuditEvent) *AuditEventResponse {
	return &AuditEventResponse{
		ID:             e.ID,
		TenantStreamID: e.TenantStreamID,
		Seq:            e.Seq,
		Timestamp:      e.Timestamp.Format(time.RFC3339),
		ActorID:        e.ActorID,
		ActorRole:      string(e.ActorRole),
		OperationCode:  e.OperationCode,
		EntityKind:     string(e.EntityKind),
		EntityID:       e.EntityID,
		FromState:      string(e.FromState),
		ToState:        string(e.ToState),
		Outcome:        string(e.Outcome),
		PrevHash:       e.PrevHash,
		Hash:           e.Hash,
	}
}

// --- Execute operation ---

type ExecuteOperationInput struct {
	Code string `path:"code" doc:"Operation code from the catalog"`
	Body struct {
		TenantID string          `json:"tenant_id" minLength:"1" doc:"Tenant scope of the acting principal"`
		ActorID  string          `json:"actor_id" minLength:"1" doc:"Authenticated principal id"`
		Role     string          `json:"role" enum:"producer,supplier,integrator,manager,traffic_manager,operator,admin" doc:"Principal role"`
		EntityID string          `json:"entity_id,omitempty" doc:"Target entity id (omit for create operations)"`
		Payload  json.RawMessage `json:"payload,omitempty" doc:"Operation payload"`
		Evidence []EvidenceInput `json:"evidence,omitempty" doc:"Supplied evidence records"`
	}
}

type ExecuteOperationOutput struct {
	Body OperationResponse
}

// --- Audit verification ---

type VerifyAuditInput struct {
	TenantID string `path:"tenantId" doc:"Tenant whose stream to verify"`
}

type VerifyAuditOutput struct {
	Body struct {
		OK       bool `json:"ok"`
		Length   int  `json:"length" doc:"Number of events replayed"`
		BrokenAt *int `json:"broken_at_index,omitempty" doc:"Index of the first broken record"`
	}
}

// --- Catalog introspection ---

type OperationDefinitionResponse struct {
	Code           string   `json:"code"`
	Domain         string   `json:"domain"`
	EntityKind     string   `json:"entity_kind"`
	Critical       bool     `json:"critical"`
	AllowedRoles   []string `json:"allowed_roles"`
	StateMachine   string   `json:"state_machine"`
	EvidencePolicy string   `json:"evidence_policy"`
	Creates        bool     `json:"creates"`
	ToState        string   `json:"to_state"`
}

type CatalogOutput struct {
	Body struct {
		Version    string                        `json:"version"`
		Operations []OperationDefinitionResponse `json:"operations"`
	}
}

type StateMachineResponse struct {
	EntityKind  string              `json:"entity_kind"`
	Initial     string              `json:"initial_state"`
	Transitions map[string][]string `json:"transitions"`
}

type StateMachinesOutput struct {
	Body []StateMachineResponse
}

type EvidencePolicyResponse struct {
	Code                     string `json:"code"`
	RequireTypeA             bool   `json:"require_type_a"`
	RequireTypeB             bool   `json:"require_type_b"`
	AllowTelemetryEquivalent bool   `json:"allow_telemetry_equivalent"`
}

type EvidencePoliciesOutput struct {
	Body []EvidencePolicyResponse
}

type PartyShareResponse struct {
	Party string  `json:"party"`
	Share float64 `json:"share"`
}

type MilestoneResponse struct {
	ID    string `json:"id"`
	Rank  int    `json:"rank"`
	Title string `json:"title"`
}

type SettlementTemplateResponse struct {
	Code       string               `json:"code"`
	Split      []PartyShareResponse `json:"split"`
	Milestones []MilestoneResponse  `json:"milestones"`
}

type SettlementTemplatesOutput struct {
	Body []SettlementTemplateResponse
}

// Register adds the operations kernel API routes to the Huma API.
func Register(api huma.API, executor *app.Executor, chain *app.AuditChain, catalog *domain.Catalog) {
	huma.Register(api, huma.Operation{
		OperationID: "execute-operation",
		Method:      http.MethodPost,
		Path:        "/api/v1/operations/{code}",
		Summary:     "Execute a catalog operation through the kernel pipeline",
		Tags:        []string{"Operations"},
	}, func(ctx context.Context, input *ExecuteOperationInput) (*ExecuteOperationOutput, error) {
		evidence := make([]domain.EvidenceRecord, len(input.Body.Evidence))
		for i, ev := range input.Body.Evidence {
			collected, _ := time.Parse(time.RFC3339, ev.CollectedAt)
			evidence[i] = domain.EvidenceRecord{
				Kind:        domain.EvidenceKind(ev.Kind),
				Ref:         ev.Ref,
				CollectedAt: collected,
			}
		}

		result, err := executor.Execute(ctx, app.Request{
			Principal: domain.Principal{
				ID:       input.Body.ActorID,
				Role:     domain.Role(input.Body.Role),
				TenantID: input.Body.TenantID,
			},
			Operation: input.Code,
			EntityID:  input.Body.EntityID,
			Payload:   input.Body.Payload,
			Evidence:  evidence,
		})
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &ExecuteOperationOutput{}
		out.Body.Success = result.Success
		if result.Entity != nil {
			out.Body.Entity = toEntityResponse(*result.Entity)
		}
		if result.Settlement != nil {
			out.Body.Settlement = toSettlementResponse(*result.Settlement)
		}
		if result.AuditEvent != nil {
			out.Body.AuditEvent = toAuditEventResponse(*result.AuditEvent)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-audit-stream",
		Method:      http.MethodGet,
		Path:        "/api/v1/audit/{tenantId}/verify",
		Summary:     "Replay and verify a tenant's audit hash chain",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *VerifyAuditInput) (*VerifyAuditOutput, error) {
		verification, err := chain.Verify(ctx, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &VerifyAuditOutput{}
		out.Body.OK = verification.OK
		out.Body.Length = verification.Length
		if !verification.OK {
			broken := verification.BrokenAt
			out.Body.BrokenAt = &broken
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-operation-catalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/operations/catalog",
		Summary:     "List the published operation catalog",
		Tags:        []string{"Catalog"},
	}, func(_ context.Context, _ *struct{}) (*CatalogOutput, error) {
		out := &CatalogOutput{}
		out.Body.Version = catalog.Version()
		for _, def := range catalog.Definitions() {
			roles := make([]string, len(def.AllowedRoles))
			for i, r := range def.AllowedRoles {
				roles[i] = string(r)
			}
			out.Body.Operations = append(out.Body.Operations, OperationDefinitionResponse{
				Code:           def.Code,
				Domain:         string(def.Domain),
				EntityKind:     string(def.EntityKind),
				Critical:       def.Critical,
				AllowedRoles:   roles,
				StateMachine:   string(def.StateMachine),
				EvidencePolicy: def.EvidencePolicy,
				Creates:        def.Creates,
				ToState:        string(def.ToState),
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-state-machines",
		Method:      http.MethodGet,
		Path:        "/api/v1/state-machines",
		Summary:     "List the per-kind transition tables",
		Tags:        []string{"Catalog"},
	}, func(_ context.Context, _ *struct{}) (*StateMachinesOutput, error) {
		out := &StateMachinesOutput{}
		for _, kind := range domain.Kinds {
			machine := domain.MachineFor(kind)
			transitions := make(map[string][]string, len(machine.Transitions))
			for from, targets := range machine.Transitions {
				tos := make([]string, len(targets))
				for i, to := range targets {
					tos[i] = string(to)
				}
				transitions[string(from)] = tos
			}
			out.Body = append(out.Body, StateMachineResponse{
				EntityKind:  string(kind),
				Initial:     string(machine.Initial),
				Transitions: transitions,
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-evidence-policies",
		Method:      http.MethodGet,
		Path:        "/api/v1/evidence-policies",
		Summary:     "List the evidence policies",
		Tags:        []string{"Catalog"},
	}, func(_ context.Context, _ *struct{}) (*EvidencePoliciesOutput, error) {
		out := &EvidencePoliciesOutput{}
		for _, code := range []string{
			domain.PolicyNone,
			domain.PolicyDispatchAOrTelem,
			domain.PolicyDeliveryAAndB,
			domain.PolicyContractSignatureB,
			domain.PolicySettlementAuditGate,
		} {
			p := domain.EvidencePolicies[code]
			out.Body = append(out.Body, EvidencePolicyResponse{
				Code:                     p.Code,
				RequireTypeA:             p.RequireTypeA,
				RequireTypeB:             p.RequireTypeB,
				AllowTelemetryEquivalent: p.AllowTelemetryEquivalent,
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-settlement-templates",
		Method:      http.MethodGet,
		Path:        "/api/v1/settlement-templates",
		Summary:     "List the settlement split templates",
		Tags:        []string{"Catalog"},
	}, func(_ context.Context, _ *struct{}) (*SettlementTemplatesOutput, error) {
		out := &SettlementTemplatesOutput{}
		for _, code := range []string{domain.TemplateMarketplaceStandard} {
			t := domain.SettlementTemplates[code]
			split := make([]PartyShareResponse, len(t.Split))
			for i, p := range t.Split {
				split[i] = PartyShareResponse{Party: p.Party, Share: p.Share}
			}
			milestones := make([]MilestoneResponse, len(t.Milestones))
			for i, m := range t.Milestones {
				milestones[i] = MilestoneResponse{ID: string(m.ID), Rank: m.Rank, Title: m.Title}
			}
			out.Body = append(out.Body, SettlementTemplateResponse{
				Code:       t.Code,
				Split:      split,
				Milestones: milestones,
			})
		}
		return out, nil
	})
}

// toHumaError translates kernel errors to HTTP errors with stable reason
// codes. Gate failures are 401; rule and state failures are 409 with the
// full violation list; evidence blocks are 423; chain and store integrity
// failures are 500.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrUnauthorized) {
		return huma.Error401Unauthorized(reasonNotPermitted)
	}
	if errors.Is(err, domain.ErrEntityNotFound) {
		return huma.Error404NotFound(reasonEntityNotFound)
	}

	var unknownOp *domain.UnknownOperationError
	if errors.As(err, &unknownOp) {
		return huma.Error404NotFound(reasonUnknownOperation, &huma.ErrorDetail{Message: unknownOp.Error()})
	}

	var ruleErr *domain.RuleViolationError
	if errors.As(err, &ruleErr) {
		details := make([]error, len(ruleErr.Violations))
		for i, v := range ruleErr.Violations {
			details[i] = &huma.ErrorDetail{Message: v, Location: "body.payload"}
		}
		return huma.Error409Conflict(reasonRuleViolation, details...)
	}

	var transitionErr *domain.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return huma.Error409Conflict(reasonInvalidTransition, &huma.ErrorDetail{Message: transitionErr.Error()})
	}

	var milestoneErr *domain.InvalidMilestoneError
	if errors.As(err, &milestoneErr) {
		return huma.Error409Conflict(reasonInvalidMilestone, &huma.ErrorDetail{Message: milestoneErr.Error()})
	}

	var evidenceErr *domain.MissingEvidenceError
	if errors.As(err, &evidenceErr) {
		return huma.Error423Locked(reasonMissingEvidence, &huma.ErrorDetail{Message: evidenceErr.Error()})
	}

	var chainErr *domain.ChainIntegrityError
	if errors.As(err, &chainErr) {
		return huma.Error500InternalServerError(reasonChainIntegrity, &huma.ErrorDetail{Message: chainErr.Error()})
	}

	var storeErr *domain.TransientStoreError
	if errors.As(err, &storeErr) {
		return huma.Error500InternalServerError(reasonStoreError)
	}

	return huma.Error500InternalServerError("internal server error")
}
