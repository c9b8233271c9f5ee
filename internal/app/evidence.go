package app

import (
	"context"
	"fmt"

	"github.com/ciclogit/opskernel/internal/domain"
)

// EvidenceEnforcer checks that the evidence kinds a policy requires are
// present. It never inspects evidence content: GPS plausibility or
// signature validity are upstream concerns. The settlement audit gate
// additionally requires the tenant's chain to verify intact.
type EvidenceEnforcer struct {
	chain *AuditChain
}

// NewEvidenceEnforcer creates the enforcer; chain backs the audit gate.
func NewEvidenceEnforcer(chain *AuditChain) *EvidenceEnforcer {
	return &EvidenceEnforcer{chain: chain}
}

// Check evaluates the named policy against the supplied records. Policy
// NONE always passes.
func (e *EvidenceEnforcer) Check(ctx context.Context, policyCode, tenantStreamID string, evidence []domain.EvidenceRecord) error {
	policy, ok := domain.EvidencePolicies[policyCode]
	if !ok {
		// The catalog validates policy references at startup; reaching
		// this is a wiring bug, treated as fail closed.
		return fmt.Errorf("unknown evidence policy %q", policyCode)
	}

	if policy.RequireTypeA && !hasKind(evidence, domain.EvidenceTypeA) {
		if !policy.AllowTelemetryEquivalent || !hasKind(evidence, domain.EvidenceTelemetry) {
			return &domain.MissingEvidenceError{PolicyCode: policyCode, Missing: domain.EvidenceTypeA}
		}
	}
	if policy.RequireTypeB && !hasKind(evidence, domain.EvidenceTypeB) {
		return &domain.MissingEvidenceError{PolicyCode: policyCode, Missing: domain.EvidenceTypeB}
	}

	if policyCode == domain.PolicySettlementAuditGate {
		verification, err := e.chain.Verify(ctx, tenantStreamID)
		if err != nil {
			return err
		}
		if !verification.OK {
			return &domain.ChainIntegrityError{TenantStreamID: tenantStreamID, BrokenAt: verification.BrokenAt}
		}
	}
	return nil
}

func hasKind(evidence []domain.EvidenceRecord, kind domain.EvidenceKind) bool {
	for _, rec := range evidence {
		if rec.Kind == kind {
			return true
		}
	}
	return false
}
