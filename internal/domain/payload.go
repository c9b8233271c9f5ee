package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Typed operation payloads, one per entity kind. Payloads arrive on the
// wire as JSON and are decoded into exactly one of these shapes before
// rule evaluation; there is no loosely-typed passthrough.

// ListingPayload carries the fields a listing operation may act on.
type ListingPayload struct {
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	HeadCount  int64  `json:"head_count"`
}

// OrderPayload carries the fields an order operation may act on.
// CheckedQuantity is the physically counted quantity at dispatch or
// delivery; InvoiceQuantity is what the fiscal note declares.
type OrderPayload struct {
	ListingID       string `json:"listing_id"`
	Quantity        int64  `json:"quantity"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	InvoiceQuantity int64  `json:"invoice_quantity"`
	CheckedQuantity int64  `json:"checked_quantity"`
}

// ContractPayload carries the fields a contract operation may act on.
type ContractPayload struct {
	OrderID string   `json:"order_id"`
	Parties []string `json:"parties"`
}

// SettlementPayload carries the fields a settlement operation may act on.
// MilestoneID is only meaningful for milestone releases.
type SettlementPayload struct {
	OrderID      string      `json:"order_id"`
	TemplateCode string      `json:"template_code"`
	EscrowCents  int64       `json:"escrow_cents"`
	MilestoneID  MilestoneID `json:"milestone_id,omitempty"`
}

// DisputePayload carries the fields a dispute operation may act on.
type DisputePayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// DecodePayload decodes raw into the payload type for kind. Unknown
// fields are rejected so malformed client payloads fail loudly instead
// of validating against zero values.
func DecodePayload(kind EntityKind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	decode := func(dst any) (any, error) {
		if err := strictUnmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
		}
		return dst, nil
	}
	switch kind {
	case KindListing:
		return decode(&ListingPayload{})
	case KindOrder:
		return decode(&OrderPayload{})
	case KindContract:
		return decode(&ContractPayload{})
	case KindSettlement:
		return decode(&SettlementPayload{})
	case KindDispute:
		return decode(&DisputePayload{})
	default:
		return nil, fmt.Errorf("no payload type for entity kind %q", kind)
	}
}

func strictUnmarshal(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
