package domain

import (
	"encoding/json"
	"time"
)

// EntityKind enumerates the business aggregates the kernel governs.
type EntityKind string

const (
	KindListing    EntityKind = "listing"
	KindOrder      EntityKind = "order"
	KindContract   EntityKind = "contract"
	KindSettlement EntityKind = "settlement"
	KindDispute    EntityKind = "dispute"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []EntityKind{KindListing, KindOrder, KindContract, KindSettlement, KindDispute}

// State is a lifecycle state of an entity. Legal values depend on the
// entity kind; the per-kind tables live in machines.go.
type State string

// Listing states.
const (
	ListingDraft     State = "DRAFT"
	ListingPublished State = "PUBLISHED"
	ListingReserved  State = "RESERVED"
	ListingSold      State = "SOLD"
	ListingArchived  State = "ARCHIVED"
)

// Order states.
const (
	OrderCreated    State = "CREATED"
	OrderDispatched State = "DISPATCHED"
	OrderDelivered  State = "DELIVERED"
	OrderDisputed   State = "DISPUTED"
	OrderClosed     State = "CLOSED"
	OrderCancelled  State = "CANCELLED"
)

// Contract states.
const (
	ContractDraft      State = "DRAFT"
	ContractIssued     State = "ISSUED"
	ContractSigned     State = "SIGNED"
	ContractActive     State = "ACTIVE"
	ContractCompleted  State = "COMPLETED"
	ContractTerminated State = "TERMINATED"
	ContractVoided     State = "VOIDED"
)

// Settlement states.
const (
	SettlementCreated         State = "CREATED"
	SettlementEscrowed        State = "ESCROWED"
	SettlementPartialReleased State = "PARTIAL_RELEASED"
	SettlementReleased        State = "RELEASED"
	SettlementFailed          State = "FAILED"
)

// Dispute states.
const (
	DisputeOpen        State = "OPEN"
	DisputeUnderReview State = "UNDER_REVIEW"
	DisputeResolved    State = "RESOLVED"
	DisputeRejected    State = "REJECTED"
)

// Entity is a governed business aggregate. It is created in its machine's
// initial state and thereafter mutated only through the operation executor.
// Entities are never deleted: termination is a transition into a terminal
// state, which preserves the audit linkage.
type Entity struct {
	ID        string
	TenantID  string
	Kind      EntityKind
	State     State
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntity creates an entity in the initial state of its kind's machine.
func NewEntity(id, tenantID string, kind EntityKind, payload json.RawMessage) Entity {
	now := time.Now().UTC()
	return Entity{
		ID:        id,
		TenantID:  tenantID,
		Kind:      kind,
		State:     MachineFor(kind).Initial,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the entity has reached a terminal state of its
// machine, after which no operation may advance it.
func (e Entity) Terminal() bool {
	return len(MachineFor(e.Kind).Transitions[e.State]) == 0
}
