package domain

import (
	"fmt"
	"math"
	"time"
)

// MilestoneID identifies one of the five sequential settlement gates.
type MilestoneID string

const (
	MilestoneM1 MilestoneID = "M1"
	MilestoneM2 MilestoneID = "M2"
	MilestoneM3 MilestoneID = "M3"
	MilestoneM4 MilestoneID = "M4"
	MilestoneM5 MilestoneID = "M5"
)

// Milestone is one gate in the settlement sequence. Rank is explicit:
// release order is enforced on the ordinal, never on slice position.
type Milestone struct {
	ID    MilestoneID
	Rank  int
	Title string
}

// PartyShare is one beneficiary of a settlement split. Shares across a
// template must sum to 1.0 within SplitEpsilon.
type PartyShare struct {
	Party string
	Share float64
}

// SplitEpsilon is the tolerated rounding slack when validating that a
// template's shares sum to one.
const SplitEpsilon = 1e-9

// SettlementTemplate names a split and the five milestones it gates on.
type SettlementTemplate struct {
	Code       string
	Split      []PartyShare
	Milestones []Milestone
}

// StandardMilestones is the canonical M1..M5 sequence shared by templates.
var StandardMilestones = []Milestone{
	{ID: MilestoneM1, Rank: 1, Title: "Authorization and role gate validated"},
	{ID: MilestoneM2, Rank: 2, Title: "Business rules and state machine validated"},
	{ID: MilestoneM3, Rank: 3, Title: "Evidence validated"},
	{ID: MilestoneM4, Rank: 4, Title: "Audit chain verified and escrow recorded"},
	{ID: MilestoneM5, Rank: 5, Title: "Delivery confirmed and split released"},
}

// TemplateMarketplaceStandard is the default marketplace split.
const TemplateMarketplaceStandard = "MARKETPLACE_STANDARD"

// SettlementTemplates is the static template registry.
var SettlementTemplates = map[string]SettlementTemplate{
	TemplateMarketplaceStandard: {
		Code: TemplateMarketplaceStandard,
		Split: []PartyShare{
			{Party: "producer", Share: 0.87},
			{Party: "platform", Share: 0.08},
			{Party: "logistics", Share: 0.05},
		},
		Milestones: StandardMilestones,
	},
}

// TemplateFor resolves a settlement template code.
func TemplateFor(code string) (SettlementTemplate, error) {
	t, ok := SettlementTemplates[code]
	if !ok {
		return SettlementTemplate{}, fmt.Errorf("unknown settlement template %q", code)
	}
	return t, nil
}

// Validate checks the template's structural invariants: shares sum to one
// within SplitEpsilon and milestone ranks are strictly increasing.
func (t SettlementTemplate) Validate() error {
	var sum float64
	for _, p := range t.Split {
		if p.Share <= 0 {
			return fmt.Errorf("template %s: party %q has non-positive share", t.Code, p.Party)
		}
		sum += p.Share
	}
	if math.Abs(sum-1.0) > SplitEpsilon {
		return fmt.Errorf("template %s: shares sum to %v, want 1.0", t.Code, sum)
	}
	prev := 0
	for _, m := range t.Milestones {
		if m.Rank <= prev {
			return fmt.Errorf("template %s: milestone %s rank %d not strictly increasing", t.Code, m.ID, m.Rank)
		}
		prev = m.Rank
	}
	return nil
}

// Milestone returns the template milestone with the given id.
func (t SettlementTemplate) Milestone(id MilestoneID) (Milestone, bool) {
	for _, m := range t.Milestones {
		if m.ID == id {
			return m, true
		}
	}
	return Milestone{}, false
}

// ComputeSplit divides escrowCents across the template parties. Each
// party's amount is escrow*share rounded half-to-even to the cent; any
// remainder is assigned to the first-listed party so the amounts always
// sum to escrowCents exactly.
func (t SettlementTemplate) ComputeSplit(escrowCents int64) []Release {
	out := make([]Release, len(t.Split))
	var allocated int64
	for i, p := range t.Split {
		amount := int64(math.RoundToEven(float64(escrowCents) * p.Share))
		out[i] = Release{MilestoneID: MilestoneM5, Party: p.Party, AmountCents: amount}
		allocated += amount
	}
	if len(out) > 0 {
		out[0].AmountCents += escrowCents - allocated
	}
	return out
}

// Release is one recorded payout toward a settlement's escrow.
type Release struct {
	MilestoneID MilestoneID `json:"milestone_id"`
	Party       string      `json:"party"`
	AmountCents int64       `json:"amount_cents"`
	ReleasedAt  time.Time   `json:"released_at"`
}

// Satisfaction records that a milestone gate passed.
type Satisfaction struct {
	MilestoneID MilestoneID `json:"milestone_id"`
	SatisfiedAt time.Time   `json:"satisfied_at"`
}

// Settlement tracks escrowed funds for an order through the milestone
// sequence. Amounts are integer cents; the kernel computes and records
// intended splits, it does not move real money.
type Settlement struct {
	ID           string
	TenantID     string
	OrderID      string
	TemplateCode string
	State        State
	EscrowCents  int64
	Satisfied    []Satisfaction
	Releases     []Release
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MilestoneSatisfied reports whether the given milestone already passed.
func (s Settlement) MilestoneSatisfied(id MilestoneID) bool {
	for _, m := range s.Satisfied {
		if m.MilestoneID == id {
			return true
		}
	}
	return false
}

// ReleasedCents sums every recorded release. The invariant enforced by
// the settlement engine is ReleasedCents() <= EscrowCents at all times.
func (s Settlement) ReleasedCents() int64 {
	var total int64
	for _, r := range s.Releases {
		total += r.AmountCents
	}
	return total
}
