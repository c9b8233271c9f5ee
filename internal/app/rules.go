package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ciclogit/opskernel/internal/domain"
)

// RuleContext carries the facts rules may consult besides the payload.
// Rules are pure: anything they need beyond these fields must be derived
// up front by the operation's rule set, never fetched during evaluation.
// Given identical payload and context, validation output is identical.
type RuleContext struct {
	Principal domain.Principal
	Entity    domain.Entity
	Now       time.Time
}

// Rule is one named business predicate over a typed payload.
type Rule[P any] struct {
	Name  string
	Check func(payload P, rc RuleContext) (ok bool, message string)
}

// Validate runs every rule and accumulates violations. There is no
// short-circuit: a rejected operation reports its complete reason set in
// one round trip, both for the caller and for the audit record.
func Validate[P any](rules []Rule[P], payload P, rc RuleContext) []string {
	var violations []string
	for _, r := range rules {
		if ok, msg := r.Check(payload, rc); !ok {
			violations = append(violations, fmt.Sprintf("%s: %s", r.Name, msg))
		}
	}
	return violations
}

// RuleSet validates one operation's raw payload, returning the full
// violation list. Decoding failures count as violations rather than
// transport errors so the caller sees them alongside business failures.
type RuleSet func(raw json.RawMessage, rc RuleContext) []string

// TypedRuleSet adapts a generic rule list to a RuleSet by decoding the
// raw payload into P first.
func TypedRuleSet[P any](kind domain.EntityKind, rules []Rule[P]) RuleSet {
	return func(raw json.RawMessage, rc RuleContext) []string {
		decoded, err := domain.DecodePayload(kind, raw)
		if err != nil {
			return []string{fmt.Sprintf("payload: %v", err)}
		}
		payload, ok := decoded.(*P)
		if !ok {
			return []string{fmt.Sprintf("payload: unexpected type for %s", kind)}
		}
		return Validate(rules, *payload, rc)
	}
}

// RuleRegistry maps operation codes to their rule sets. Built once at
// startup; operations without an entry validate trivially.
type RuleRegistry struct {
	sets map[string]RuleSet
}

// NewRuleRegistry creates an empty registry.
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{sets: make(map[string]RuleSet)}
}

// Register binds a rule set to an operation code, replacing any previous one.
func (r *RuleRegistry) Register(code string, set RuleSet) {
	r.sets[code] = set
}

// Validate runs the rule set registered for code. No registered set means
// no rule constraints for that operation.
func (r *RuleRegistry) Validate(code string, raw json.RawMessage, rc RuleContext) []string {
	set, ok := r.sets[code]
	if !ok {
		return nil
	}
	return set(raw, rc)
}

// DefaultRules builds the registry for the published catalog.
//
// Derived facts like "checked headcount matches the invoice" are computed
// here from the typed payload instead of being injected as pre-computed
// booleans by each call site; this keeps the derivation in one place.
func DefaultRules() *RuleRegistry {
	r := NewRuleRegistry()

	listingRules := []Rule[domain.ListingPayload]{
		{Name: "listing_title_present", Check: func(p domain.ListingPayload, _ RuleContext) (bool, string) {
			if p.Title == "" {
				return false, "title is required"
			}
			return true, ""
		}},
		{Name: "listing_price_positive", Check: func(p domain.ListingPayload, _ RuleContext) (bool, string) {
			if p.PriceCents <= 0 {
				return false, fmt.Sprintf("price must be positive, got %d", p.PriceCents)
			}
			return true, ""
		}},
		{Name: "listing_head_count_positive", Check: func(p domain.ListingPayload, _ RuleContext) (bool, string) {
			if p.HeadCount <= 0 {
				return false, fmt.Sprintf("head count must be positive, got %d", p.HeadCount)
			}
			return true, ""
		}},
	}
	r.Register(domain.OpListingCreate, TypedRuleSet(domain.KindListing, listingRules))
	r.Register(domain.OpListingPublish, TypedRuleSet(domain.KindListing, listingRules))

	orderCreateRules := []Rule[domain.OrderPayload]{
		{Name: "order_listing_reference", Check: func(p domain.OrderPayload, _ RuleContext) (bool, string) {
			if p.ListingID == "" {
				return false, "listing reference is required"
			}
			return true, ""
		}},
		{Name: "order_quantity_positive", Check: func(p domain.OrderPayload, _ RuleContext) (bool, string) {
			if p.Quantity <= 0 {
				return false, fmt.Sprintf("quantity must be positive, got %d", p.Quantity)
			}
			return true, ""
		}},
		{Name: "order_unit_price_positive", Check: func(p domain.OrderPayload, _ RuleContext) (bool, string) {
			if p.UnitPriceCents <= 0 {
				return false, fmt.Sprintf("unit price must be positive, got %d", p.UnitPriceCents)
			}
			return true, ""
		}},
	}
	r.Register(domain.OpOrderCreate, TypedRuleSet(domain.KindOrder, orderCreateRules))

	dispatchRules := []Rule[domain.OrderPayload]{
		{Name: "dispatch_quantity_positive", Check: func(p domain.OrderPayload, _ RuleContext) (bool, string) {
			if p.CheckedQuantity <= 0 {
				return false, "checked quantity must be positive"
			}
			return true, ""
		}},
		{Name: "dispatch_headcount_matches_invoice", Check: func(p domain.OrderPayload, _ RuleContext) (bool, string) {
			if p.CheckedQuantity != p.InvoiceQuantity {
				return false, fmt.Sprintf("checked %d head, invoice declares %d", p.CheckedQuantity, p.InvoiceQuantity)
			}
			return true, ""
		}},
	}
	r.Register(domain.OpMarketDispatchConfirm, TypedRuleSet(domain.KindOrder, dispatchRules))
	r.Register(domain.OpMarketDeliveryConfirm, TypedRuleSet(domain.KindOrder, dispatchRules))

	contractRules := []Rule[domain.ContractPayload]{
		{Name: "contract_order_reference", Check: func(p domain.ContractPayload, _ RuleContext) (bool, string) {
			if p.OrderID == "" {
				return false, "order reference is required"
			}
			return true, ""
		}},
		{Name: "contract_two_parties", Check: func(p domain.ContractPayload, _ RuleContext) (bool, string) {
			if len(p.Parties) < 2 {
				return false, fmt.Sprintf("contract needs at least two parties, got %d", len(p.Parties))
			}
			return true, ""
		}},
	}
	r.Register(domain.OpContractCreate, TypedRuleSet(domain.KindContract, contractRules))
	r.Register(domain.OpContractIssue, TypedRuleSet(domain.KindContract, contractRules))

	settlementCreateRules := []Rule[domain.SettlementPayload]{
		{Name: "settlement_order_reference", Check: func(p domain.SettlementPayload, _ RuleContext) (bool, string) {
			if p.OrderID == "" {
				return false, "order reference is required"
			}
			return true, ""
		}},
		{Name: "settlement_escrow_positive", Check: func(p domain.SettlementPayload, _ RuleContext) (bool, string) {
			if p.EscrowCents <= 0 {
				return false, fmt.Sprintf("escrow must be positive, got %d", p.EscrowCents)
			}
			return true, ""
		}},
		{Name: "settlement_template_known", Check: func(p domain.SettlementPayload, _ RuleContext) (bool, string) {
			if _, err := domain.TemplateFor(p.TemplateCode); err != nil {
				return false, err.Error()
			}
			return true, ""
		}},
	}
	r.Register(domain.OpSettlementCreate, TypedRuleSet(domain.KindSettlement, settlementCreateRules))

	releaseRules := []Rule[domain.SettlementPayload]{
		{Name: "release_milestone_named", Check: func(p domain.SettlementPayload, _ RuleContext) (bool, string) {
			if p.MilestoneID == "" {
				return false, "milestone id is required"
			}
			return true, ""
		}},
	}
	r.Register(domain.OpSettlementReleaseMilestone, TypedRuleSet(domain.KindSettlement, releaseRules))

	disputeRules := []Rule[domain.DisputePayload]{
		{Name: "dispute_order_reference", Check: func(p domain.DisputePayload, _ RuleContext) (bool, string) {
			if p.OrderID == "" {
				return false, "order reference is required"
			}
			return true, ""
		}},
		{Name: "dispute_reason_present", Check: func(p domain.DisputePayload, _ RuleContext) (bool, string) {
			if p.Reason == "" {
				return false, "reason is required"
			}
			return true, ""
		}},
	}
	r.Register(domain.OpDisputeOpen, TypedRuleSet(domain.KindDispute, disputeRules))

	return r
}
