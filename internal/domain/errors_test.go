package domain_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ciclogit/opskernel/internal/domain"
)

func TestRuleViolationError_ListsEveryViolation(t *testing.T) {
	err := &domain.RuleViolationError{
		OperationCode: domain.OpMarketDispatchConfirm,
		Violations: []string{
			"dispatch_headcount_matches_invoice: checked 118 head, invoice declares 120",
			"dispatch_quantity_positive: checked quantity must be positive",
		},
	}
	msg := err.Error()
	if !strings.Contains(msg, "2 rule(s)") {
		t.Errorf("message should count violations: %q", msg)
	}
	if !strings.Contains(msg, "dispatch_headcount_matches_invoice") {
		t.Errorf("message should include each violation: %q", msg)
	}
}

func TestInvalidTransitionError_Message(t *testing.T) {
	err := &domain.InvalidTransitionError{
		Kind: domain.KindOrder,
		From: domain.OrderCreated,
		To:   domain.OrderDelivered,
	}
	want := `order may not transition from "CREATED" to "DELIVERED"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTransientStoreError_Unwrap(t *testing.T) {
	inner := errors.New("database is locked")
	err := &domain.TransientStoreError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("should unwrap to the inner error")
	}

	wrapped := fmt.Errorf("updating settlement: %w", err)
	var transient *domain.TransientStoreError
	if !errors.As(wrapped, &transient) {
		t.Error("errors.As should find TransientStoreError through wrapping")
	}
}

func TestMissingEvidenceError_Message(t *testing.T) {
	err := &domain.MissingEvidenceError{
		PolicyCode: domain.PolicyDeliveryAAndB,
		Missing:    domain.EvidenceTypeB,
	}
	if !strings.Contains(err.Error(), domain.PolicyDeliveryAAndB) {
		t.Errorf("message should name the policy: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "type_b") {
		t.Errorf("message should name the missing kind: %q", err.Error())
	}
}

func TestChainIntegrityError_Message(t *testing.T) {
	err := &domain.ChainIntegrityError{TenantStreamID: "tnt-1", BrokenAt: 3}
	if !strings.Contains(err.Error(), "tnt-1") || !strings.Contains(err.Error(), "3") {
		t.Errorf("message should name stream and index: %q", err.Error())
	}
}
