package domain

import (
	"fmt"
	"sort"
)

// BusinessDomain groups operations for reporting and introspection.
type BusinessDomain string

const (
	DomainMarketplace BusinessDomain = "marketplace"
	DomainContracts   BusinessDomain = "contracts"
	DomainSettlements BusinessDomain = "settlements"
	DomainDisputes    BusinessDomain = "disputes"
)

// OperationDefinition describes one state-changing business operation.
// Definitions are immutable once published in a catalog version; changing
// a rule set means publishing a new version, which is itself auditable.
//
// ToState is the transition the operation drives on its target entity.
// Creates marks operations that construct a fresh entity in the machine's
// initial state instead of transitioning an existing one.
type OperationDefinition struct {
	Code           string
	Domain         BusinessDomain
	EntityKind     EntityKind
	Critical       bool
	AllowedRoles   []Role
	StateMachine   EntityKind
	EvidencePolicy string
	Creates        bool
	ToState        State
}

// Allows reports whether the role may invoke this operation.
func (d OperationDefinition) Allows(role Role) bool {
	for _, r := range d.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Operation codes. The set is a fixed versioned catalog, not user-authorable.
const (
	OpListingCreate      = "LISTING_CREATE"
	OpListingPublish     = "LISTING_PUBLISH"
	OpListingReserve     = "LISTING_RESERVE"
	OpListingConfirmSale = "LISTING_CONFIRM_SALE"
	OpListingArchive     = "LISTING_ARCHIVE"

	OpOrderCreate           = "ORDER_CREATE"
	OpMarketDispatchConfirm = "MARKET_DISPATCH_CONFIRM"
	OpMarketDeliveryConfirm = "MARKET_DELIVERY_CONFIRM"
	OpOrderClose            = "ORDER_CLOSE"
	OpOrderCancel           = "ORDER_CANCEL"

	OpContractCreate    = "CONTRACT_CREATE"
	OpContractIssue     = "CONTRACT_ISSUE"
	OpContractSign      = "CONTRACT_SIGN"
	OpContractActivate  = "CONTRACT_ACTIVATE"
	OpContractComplete  = "CONTRACT_COMPLETE"
	OpContractTerminate = "CONTRACT_TERMINATE"

	OpSettlementCreate           = "SETTLEMENT_CREATE"
	OpSettlementEscrow           = "SETTLEMENT_ESCROW"
	OpSettlementReleaseMilestone = "SETTLEMENT_RELEASE_MILESTONE"

	OpDisputeOpen    = "DISPUTE_OPEN"
	OpDisputeReview  = "DISPUTE_REVIEW"
	OpDisputeResolve = "DISPUTE_RESOLVE"
	OpDisputeReject  = "DISPUTE_REJECT"
)

// Catalog is the versioned, read-only operation registry. It is built once
// at process start and never mutated afterwards.
type Catalog struct {
	version string
	defs    map[string]OperationDefinition
}

// CatalogVersion identifies the rule set currently published. It is stamped
// into every audit event so historical records can be interpreted against
// the rules that produced them.
const CatalogVersion = "2026.2"

// NewCatalog builds a catalog from definitions, rejecting ill-formed ones:
// duplicate codes, unknown roles, transitions not present in the target
// machine, or references to unknown evidence policies. The kernel fails
// startup on a bad catalog rather than failing requests later.
func NewCatalog(version string, defs []OperationDefinition) (*Catalog, error) {
	c := &Catalog{version: version, defs: make(map[string]OperationDefinition, len(defs))}
	for _, d := range defs {
		if d.Code == "" {
			return nil, fmt.Errorf("catalog %s: definition with empty code", version)
		}
		if _, dup := c.defs[d.Code]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate operation %q", version, d.Code)
		}
		if len(d.AllowedRoles) == 0 {
			return nil, fmt.Errorf("catalog %s: operation %q allows no roles", version, d.Code)
		}
		for _, r := range d.AllowedRoles {
			if !ValidRole(r) {
				return nil, fmt.Errorf("catalog %s: operation %q references unknown role %q", version, d.Code, r)
			}
		}
		machine, ok := Machines[d.StateMachine]
		if !ok {
			return nil, fmt.Errorf("catalog %s: operation %q references unknown machine %q", version, d.Code, d.StateMachine)
		}
		if d.Creates {
			if d.ToState != machine.Initial {
				return nil, fmt.Errorf("catalog %s: create operation %q must target initial state %q", version, d.Code, machine.Initial)
			}
		} else {
			if _, known := machine.Transitions[d.ToState]; !known {
				return nil, fmt.Errorf("catalog %s: operation %q targets state %q outside machine %q", version, d.Code, d.ToState, d.StateMachine)
			}
		}
		if _, ok := EvidencePolicies[d.EvidencePolicy]; !ok {
			return nil, fmt.Errorf("catalog %s: operation %q references unknown evidence policy %q", version, d.Code, d.EvidencePolicy)
		}
		c.defs[d.Code] = d
	}
	return c, nil
}

// Version returns the catalog's published version string.
func (c *Catalog) Version() string { return c.version }

// Lookup resolves an operation code. An unknown code fails closed with
// UnknownOperationError; it is never treated as permitted.
func (c *Catalog) Lookup(code string) (OperationDefinition, error) {
	d, ok := c.defs[code]
	if !ok {
		return OperationDefinition{}, &UnknownOperationError{Code: code}
	}
	return d, nil
}

// Definitions returns every definition sorted by code, for introspection.
func (c *Catalog) Definitions() []OperationDefinition {
	out := make([]OperationDefinition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// DefaultCatalog publishes the current operation set.
//
// Create operations are deliberately non-critical and carry policy NONE:
// they only place a fresh entity in its initial state. Every subsequent
// advance is critical and runs the full pipeline.
func DefaultCatalog() (*Catalog, error) {
	all := []Role{RoleProducer, RoleSupplier, RoleIntegrator, RoleManager, RoleTrafficManager, RoleOperator, RoleAdmin}
	return NewCatalog(CatalogVersion, []OperationDefinition{
		// Marketplace: listings.
		{Code: OpListingCreate, Domain: DomainMarketplace, EntityKind: KindListing, AllowedRoles: []Role{RoleProducer, RoleSupplier, RoleAdmin}, StateMachine: KindListing, EvidencePolicy: PolicyNone, Creates: true, ToState: ListingDraft},
		{Code: OpListingPublish, Domain: DomainMarketplace, EntityKind: KindListing, Critical: true, AllowedRoles: []Role{RoleProducer, RoleSupplier, RoleManager, RoleAdmin}, StateMachine: KindListing, EvidencePolicy: PolicyNone, ToState: ListingPublished},
		{Code: OpListingReserve, Domain: DomainMarketplace, EntityKind: KindListing, Critical: true, AllowedRoles: []Role{RoleIntegrator, RoleManager, RoleAdmin}, StateMachine: KindListing, EvidencePolicy: PolicyNone, ToState: ListingReserved},
		{Code: OpListingConfirmSale, Domain: DomainMarketplace, EntityKind: KindListing, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindListing, EvidencePolicy: PolicyContractSignatureB, ToState: ListingSold},
		{Code: OpListingArchive, Domain: DomainMarketplace, EntityKind: KindListing, AllowedRoles: []Role{RoleProducer, RoleSupplier, RoleManager, RoleAdmin}, StateMachine: KindListing, EvidencePolicy: PolicyNone, ToState: ListingArchived},

		// Marketplace: orders.
		{Code: OpOrderCreate, Domain: DomainMarketplace, EntityKind: KindOrder, AllowedRoles: []Role{RoleIntegrator, RoleManager, RoleAdmin}, StateMachine: KindOrder, EvidencePolicy: PolicyNone, Creates: true, ToState: OrderCreated},
		{Code: OpMarketDispatchConfirm, Domain: DomainMarketplace, EntityKind: KindOrder, Critical: true, AllowedRoles: []Role{RoleSupplier, RoleTrafficManager, RoleAdmin}, StateMachine: KindOrder, EvidencePolicy: PolicyDispatchAOrTelem, ToState: OrderDispatched},
		{Code: OpMarketDeliveryConfirm, Domain: DomainMarketplace, EntityKind: KindOrder, Critical: true, AllowedRoles: []Role{RoleIntegrator, RoleTrafficManager, RoleAdmin}, StateMachine: KindOrder, EvidencePolicy: PolicyDeliveryAAndB, ToState: OrderDelivered},
		{Code: OpOrderClose, Domain: DomainMarketplace, EntityKind: KindOrder, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindOrder, EvidencePolicy: PolicyNone, ToState: OrderClosed},
		{Code: OpOrderCancel, Domain: DomainMarketplace, EntityKind: KindOrder, Critical: true, AllowedRoles: []Role{RoleManager, RoleOperator, RoleAdmin}, StateMachine: KindOrder, EvidencePolicy: PolicyNone, ToState: OrderCancelled},

		// Contracts.
		{Code: OpContractCreate, Domain: DomainContracts, EntityKind: KindContract, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindContract, EvidencePolicy: PolicyNone, Creates: true, ToState: ContractDraft},
		{Code: OpContractIssue, Domain: DomainContracts, EntityKind: KindContract, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindContract, EvidencePolicy: PolicyNone, ToState: ContractIssued},
		{Code: OpContractSign, Domain: DomainContracts, EntityKind: KindContract, Critical: true, AllowedRoles: []Role{RoleProducer, RoleSupplier, RoleIntegrator, RoleAdmin}, StateMachine: KindContract, EvidencePolicy: PolicyContractSignatureB, ToState: ContractSigned},
		{Code: OpContractActivate, Domain: DomainContracts, EntityKind: KindContract, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindContract, EvidencePolicy: PolicyNone, ToState: ContractActive},
		{Code: OpContractComplete, Domain: DomainContracts, EntityKind: KindContract, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindContract, EvidencePolicy: PolicyContractSignatureB, ToState: ContractCompleted},
		{Code: OpContractTerminate, Domain: DomainContracts, EntityKind: KindContract, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindContract, EvidencePolicy: PolicyNone, ToState: ContractTerminated},

		// Settlements.
		{Code: OpSettlementCreate, Domain: DomainSettlements, EntityKind: KindSettlement, AllowedRoles: []Role{RoleManager, RoleOperator, RoleAdmin}, StateMachine: KindSettlement, EvidencePolicy: PolicyNone, Creates: true, ToState: SettlementCreated},
		{Code: OpSettlementEscrow, Domain: DomainSettlements, EntityKind: KindSettlement, Critical: true, AllowedRoles: []Role{RoleManager, RoleOperator, RoleAdmin}, StateMachine: KindSettlement, EvidencePolicy: PolicyNone, ToState: SettlementEscrowed},
		{Code: OpSettlementReleaseMilestone, Domain: DomainSettlements, EntityKind: KindSettlement, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindSettlement, EvidencePolicy: PolicySettlementAuditGate, ToState: SettlementReleased},

		// Disputes.
		{Code: OpDisputeOpen, Domain: DomainDisputes, EntityKind: KindDispute, AllowedRoles: all, StateMachine: KindDispute, EvidencePolicy: PolicyNone, Creates: true, ToState: DisputeOpen},
		{Code: OpDisputeReview, Domain: DomainDisputes, EntityKind: KindDispute, Critical: true, AllowedRoles: []Role{RoleManager, RoleOperator, RoleAdmin}, StateMachine: KindDispute, EvidencePolicy: PolicyNone, ToState: DisputeUnderReview},
		{Code: OpDisputeResolve, Domain: DomainDisputes, EntityKind: KindDispute, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindDispute, EvidencePolicy: PolicyContractSignatureB, ToState: DisputeResolved},
		{Code: OpDisputeReject, Domain: DomainDisputes, EntityKind: KindDispute, Critical: true, AllowedRoles: []Role{RoleManager, RoleAdmin}, StateMachine: KindDispute, EvidencePolicy: PolicyNone, ToState: DisputeRejected},
	})
}
