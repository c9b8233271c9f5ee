package domain

import "time"

// EvidenceKind classifies a supplied proof record.
//
// Type A is physical proof of an event: a photo, a GPS fix, or telemetry
// from the transport. Type B is a signed document: contract, acceptance
// note, invoice signature.
type EvidenceKind string

const (
	EvidenceTypeA     EvidenceKind = "type_a"
	EvidenceTypeB     EvidenceKind = "type_b"
	EvidenceTelemetry EvidenceKind = "telemetry"
)

// EvidenceRecord is one proof item supplied alongside an operation. The
// kernel checks presence of the required kind only; it never judges the
// content (GPS plausibility, signature validity); that is upstream work.
type EvidenceRecord struct {
	Kind        EvidenceKind
	Ref         string
	CollectedAt time.Time
}

// EvidencePolicy names which evidence kinds must be present before a
// transition is accepted. Policies are static lookups composed of three
// independent flags; evaluation is a pure predicate over the supplied
// records.
type EvidencePolicy struct {
	Code                     string
	RequireTypeA             bool
	RequireTypeB             bool
	AllowTelemetryEquivalent bool
}

// Evidence policy codes.
const (
	PolicyNone                = "NONE"
	PolicyDispatchAOrTelem    = "DISPATCH_A_OR_TELEMETRY"
	PolicyDeliveryAAndB       = "DELIVERY_A_AND_B"
	PolicyContractSignatureB  = "CONTRACT_SIGNATURE_B"
	PolicySettlementAuditGate = "SETTLEMENT_AUDIT_GATE"
)

// EvidencePolicies is the static policy registry. SETTLEMENT_AUDIT_GATE
// additionally requires an intact audit chain; that check lives in the
// enforcer, not in these flags.
var EvidencePolicies = map[string]EvidencePolicy{
	PolicyNone: {Code: PolicyNone},
	PolicyDispatchAOrTelem: {
		Code:                     PolicyDispatchAOrTelem,
		RequireTypeA:             true,
		AllowTelemetryEquivalent: true,
	},
	PolicyDeliveryAAndB: {
		Code:         PolicyDeliveryAAndB,
		RequireTypeA: true,
		RequireTypeB: true,
	},
	PolicyContractSignatureB: {
		Code:         PolicyContractSignatureB,
		RequireTypeB: true,
	},
	PolicySettlementAuditGate: {
		Code:         PolicySettlementAuditGate,
		RequireTypeB: true,
	},
}
