package domain

import "time"

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFlat       DiscountType = "FLAT"
	DiscountTypeBoth       DiscountType = "BOTH"
)

type DiscountReason string

const (
	DiscountReasonExpired       DiscountReason = "EXPIRED"
	DiscountReasonNotApplicable DiscountReason = "NOT_APPLICABLE"
	DiscountReasonInvalid       DiscountReason = "INVALID"
)

// DiscountOutcome is the classified result of validating a code against the
// external discount engine. The engine's wire schema is provisional, so only
// this shape is allowed to leak past the engine client.
type DiscountOutcome struct {
	Valid      bool
	Reason     DiscountReason
	Type       DiscountType
	Percentage float64
	FlatAmount float64
}

// AppliedDiscount is the single resolved discount a session may hold.
// Zero or one per session, never more.
type AppliedDiscount struct {
	Code           string    `json:"code"`
	ResolvedAmount float64   `json:"resolved_amount"`
	AppliedAt      time.Time `json:"applied_at"`
}
