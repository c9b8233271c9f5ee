package domain

import "time"

// GenesisHash is the well-known sentinel PrevHash of a stream's first
// event: 64 zero hex characters.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Outcome tags an audit event as an applied mutation or a rejected attempt
// recorded for forensic completeness.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeRejected Outcome = "rejected"
)

// AuditEvent is one record in a tenant's hash-linked, append-only stream.
//
// Hash covers the SHA-256 of the event's canonical (RFC 8785) JSON form
// without the Hash field, concatenated with PrevHash. Rewriting any stored
// record breaks either its own hash or the next record's PrevHash link, so
// retroactive edits are detectable by replaying the stream.
//
// All fields are concrete types (no map[string]any) so canonical
// serialization is deterministic.
type AuditEvent struct {
	ID             string     `json:"id"`
	TenantStreamID string     `json:"tenant_stream_id"`
	Seq            int64      `json:"seq"`
	Timestamp      time.Time  `json:"ts"`
	ActorID        string     `json:"actor_id"`
	ActorRole      Role       `json:"actor_role"`
	OperationCode  string     `json:"operation_code"`
	CatalogVersion string     `json:"catalog_version"`
	EntityKind     EntityKind `json:"entity_kind"`
	EntityID       string     `json:"entity_id"`
	FromState      State      `json:"from_state"`
	ToState        State      `json:"to_state"`
	Outcome        Outcome    `json:"outcome"`
	Details        string     `json:"details,omitempty"`
	PrevHash       string     `json:"prev_hash"`
	Hash           string     `json:"-"`
}

// ChainVerification is the result of replaying a stream.
type ChainVerification struct {
	OK       bool
	Length   int
	BrokenAt int // index of the first broken record; -1 when OK
}
