package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ciclogit/opskernel/internal/app"
	"github.com/ciclogit/opskernel/internal/domain"
)

func newEnforcer() (*app.EvidenceEnforcer, *mockAuditRepo) {
	repo := newMockAuditRepo()
	return app.NewEvidenceEnforcer(app.NewAuditChain(repo)), repo
}

func TestCheck_PolicyNoneAlwaysPasses(t *testing.T) {
	enforcer, _ := newEnforcer()
	if err := enforcer.Check(context.Background(), domain.PolicyNone, "tnt-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheck_DispatchRequiresTypeA(t *testing.T) {
	enforcer, _ := newEnforcer()

	err := enforcer.Check(context.Background(), domain.PolicyDispatchAOrTelem, "tnt-1", nil)
	var missing *domain.MissingEvidenceError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingEvidenceError, got %v", err)
	}
	if missing.Missing != domain.EvidenceTypeA {
		t.Errorf("Missing = %q, want %q", missing.Missing, domain.EvidenceTypeA)
	}
}

func TestCheck_DispatchAcceptsTelemetryEquivalent(t *testing.T) {
	enforcer, _ := newEnforcer()
	evidence := []domain.EvidenceRecord{{Kind: domain.EvidenceTelemetry, Ref: "gps://track/1"}}

	if err := enforcer.Check(context.Background(), domain.PolicyDispatchAOrTelem, "tnt-1", evidence); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheck_DeliveryRequiresBothKinds(t *testing.T) {
	enforcer, _ := newEnforcer()
	onlyA := []domain.EvidenceRecord{{Kind: domain.EvidenceTypeA, Ref: "photo://1"}}

	err := enforcer.Check(context.Background(), domain.PolicyDeliveryAAndB, "tnt-1", onlyA)
	var missing *domain.MissingEvidenceError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingEvidenceError, got %v", err)
	}
	if missing.Missing != domain.EvidenceTypeB {
		t.Errorf("Missing = %q, want %q", missing.Missing, domain.EvidenceTypeB)
	}

	both := append(onlyA, domain.EvidenceRecord{Kind: domain.EvidenceTypeB, Ref: "doc://1"})
	if err := enforcer.Check(context.Background(), domain.PolicyDeliveryAAndB, "tnt-1", both); err != nil {
		t.Fatalf("unexpected error with both kinds: %v", err)
	}
}

func TestCheck_DeliveryTelemetryDoesNotSubstituteTypeA(t *testing.T) {
	enforcer, _ := newEnforcer()
	evidence := []domain.EvidenceRecord{
		{Kind: domain.EvidenceTelemetry, Ref: "gps://track/1"},
		{Kind: domain.EvidenceTypeB, Ref: "doc://1"},
	}

	err := enforcer.Check(context.Background(), domain.PolicyDeliveryAAndB, "tnt-1", evidence)
	var missing *domain.MissingEvidenceError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingEvidenceError, got %v", err)
	}
}

func TestCheck_UnknownPolicyFailsClosed(t *testing.T) {
	enforcer, _ := newEnforcer()
	if err := enforcer.Check(context.Background(), "NOTARIZED_SELFIE", "tnt-1", nil); err == nil {
		t.Fatal("unknown policy must fail closed")
	}
}

func TestCheck_SettlementGateVerifiesChain(t *testing.T) {
	repo := newMockAuditRepo()
	chain := app.NewAuditChain(repo)
	enforcer := app.NewEvidenceEnforcer(chain)

	appendApplied(t, chain, "tnt-1", domain.OpMarketDispatchConfirm)
	appendApplied(t, chain, "tnt-1", domain.OpMarketDeliveryConfirm)

	evidence := []domain.EvidenceRecord{{Kind: domain.EvidenceTypeB, Ref: "doc://release"}}
	if err := enforcer.Check(context.Background(), domain.PolicySettlementAuditGate, "tnt-1", evidence); err != nil {
		t.Fatalf("unexpected error on intact chain: %v", err)
	}

	repo.streams["tnt-1"][0].Details = "doctored"
	err := enforcer.Check(context.Background(), domain.PolicySettlementAuditGate, "tnt-1", evidence)
	var integrity *domain.ChainIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected ChainIntegrityError, got %v", err)
	}
	if integrity.BrokenAt != 0 {
		t.Errorf("BrokenAt = %d, want 0", integrity.BrokenAt)
	}
}
