package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/ciclogit/opskernel/internal/domain"
)

// AuditChain appends to and verifies the per-tenant hash-linked event
// streams. Each event's hash digests the event's canonical JSON form plus
// the previous event's hash, so a stream can be replayed and checked by
// anyone with read access. The chain does not stop an operator with raw
// store access from rewriting history; it makes the rewrite detectable.
type AuditChain struct {
	repo domain.AuditRepository
}

// NewAuditChain creates the chain service over the given repository.
func NewAuditChain(repo domain.AuditRepository) *AuditChain {
	return &AuditChain{repo: repo}
}

// AuditEntry is the caller-supplied portion of an audit event. Sequence,
// hashes and timestamps are assigned at append time.
type AuditEntry struct {
	TenantStreamID string
	Actor          domain.Principal
	OperationCode  string
	EntityKind     domain.EntityKind
	EntityID       string
	FromState      domain.State
	ToState        domain.State
	Outcome        domain.Outcome
	Details        string
}

// Append writes one event to the stream's tail. The repository runs the
// build callback inside the same transaction that read the tail, so two
// concurrent appends cannot both chain onto the same prevHash.
func (c *AuditChain) Append(ctx context.Context, entry AuditEntry) (domain.AuditEvent, error) {
	id, err := generateID()
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("generating audit event id: %w", err)
	}

	return c.repo.Append(ctx, entry.TenantStreamID, func(seq int64, prevHash string) (domain.AuditEvent, error) {
		event := domain.AuditEvent{
			ID:             id,
			TenantStreamID: entry.TenantStreamID,
			Seq:            seq,
			Timestamp:      time.Now().UTC().Truncate(time.Second),
			ActorID:        entry.Actor.ID,
			ActorRole:      entry.Actor.Role,
			OperationCode:  entry.OperationCode,
			CatalogVersion: domain.CatalogVersion,
			EntityKind:     entry.EntityKind,
			EntityID:       entry.EntityID,
			FromState:      entry.FromState,
			ToState:        entry.ToState,
			Outcome:        entry.Outcome,
			Details:        entry.Details,
			PrevHash:       prevHash,
		}
		hash, err := HashEvent(event)
		if err != nil {
			return domain.AuditEvent{}, err
		}
		event.Hash = hash
		return event, nil
	})
}

// Verify replays a stream from genesis, recomputing each event's hash and
// checking the prevHash linkage. It returns the index of the first broken
// record; a missing or empty stream verifies trivially.
func (c *AuditChain) Verify(ctx context.Context, streamID string) (domain.ChainVerification, error) {
	events, err := c.repo.Stream(ctx, streamID)
	if err != nil {
		return domain.ChainVerification{}, fmt.Errorf("loading stream %s: %w", streamID, err)
	}

	prev := domain.GenesisHash
	for i, event := range events {
		if event.PrevHash != prev {
			return domain.ChainVerification{Length: len(events), BrokenAt: i}, nil
		}
		recomputed, err := HashEvent(event)
		if err != nil {
			return domain.ChainVerification{}, fmt.Errorf("rehashing event %d: %w", i, err)
		}
		if recomputed != event.Hash {
			return domain.ChainVerification{Length: len(events), BrokenAt: i}, nil
		}
		prev = event.Hash
	}
	return domain.ChainVerification{OK: true, Length: len(events), BrokenAt: -1}, nil
}

// HashEvent computes SHA256(canonical(event) ++ prevHash). The Hash field
// itself is excluded from serialization; canonicalization follows RFC 8785
// so key order and escaping cannot perturb the digest.
func HashEvent(event domain.AuditEvent) (string, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("serializing audit event: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing audit event: %w", err)
	}
	sum := sha256.Sum256(append(canonical, []byte(event.PrevHash)...))
	return hex.EncodeToString(sum[:]), nil
}
