package domain

// StateMachine is the transition table governing one entity kind. The
// table is closed: every state reachable from Initial appears as a key,
// and terminal states carry an empty target set. No caller may special-case
// a transition outside the table; self-loops are legal only when listed.
type StateMachine struct {
	Kind        EntityKind
	Initial     State
	Transitions map[State][]State
}

// Machines holds the transition table for every entity kind. This is
// domain knowledge consumed by the FSM adapter and the catalog.
var Machines = map[EntityKind]StateMachine{
	KindListing: {
		Kind:    KindListing,
		Initial: ListingDraft,
		Transitions: map[State][]State{
			ListingDraft:     {ListingPublished, ListingArchived},
			ListingPublished: {ListingReserved, ListingArchived},
			ListingReserved:  {ListingSold, ListingPublished},
			ListingSold:      {},
			ListingArchived:  {},
		},
	},
	KindOrder: {
		Kind:    KindOrder,
		Initial: OrderCreated,
		Transitions: map[State][]State{
			OrderCreated:    {OrderDispatched, OrderCancelled},
			OrderDispatched: {OrderDelivered, OrderDisputed},
			OrderDelivered:  {OrderClosed, OrderDisputed},
			OrderDisputed:   {OrderClosed, OrderCancelled},
			OrderClosed:     {},
			OrderCancelled:  {},
		},
	},
	KindContract: {
		Kind:    KindContract,
		Initial: ContractDraft,
		Transitions: map[State][]State{
			ContractDraft:      {ContractIssued},
			ContractIssued:     {ContractSigned, ContractVoided},
			ContractSigned:     {ContractActive},
			ContractActive:     {ContractCompleted, ContractTerminated},
			ContractCompleted:  {},
			ContractTerminated: {},
			ContractVoided:     {},
		},
	},
	KindSettlement: {
		Kind:    KindSettlement,
		Initial: SettlementCreated,
		Transitions: map[State][]State{
			SettlementCreated:         {SettlementEscrowed, SettlementFailed},
			SettlementEscrowed:        {SettlementPartialReleased, SettlementReleased, SettlementFailed},
			SettlementPartialReleased: {SettlementReleased, SettlementFailed},
			SettlementReleased:        {},
			SettlementFailed:          {},
		},
	},
	KindDispute: {
		Kind:    KindDispute,
		Initial: DisputeOpen,
		Transitions: map[State][]State{
			DisputeOpen:        {DisputeUnderReview},
			DisputeUnderReview: {DisputeResolved, DisputeRejected},
			DisputeResolved:    {},
			DisputeRejected:    {},
		},
	},
}

// MachineFor returns the transition table for a kind. Unknown kinds yield
// a zero machine whose table rejects every transition.
func MachineFor(kind EntityKind) StateMachine {
	return Machines[kind]
}

// CanTransition reports whether from→to is listed in the table for kind.
// A from state missing from the table is always invalid, never a no-op.
func CanTransition(kind EntityKind, from, to State) bool {
	targets, ok := Machines[kind].Transitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}
