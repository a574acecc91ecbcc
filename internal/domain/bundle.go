/**
 * @description
 * This file defines the Bundle domain model. A bundle is one recurring-payment
 * schedule under a controller: an amount, a minimum interval between payments,
 * and a marker of when it last paid out.
 */
package domain

// Bundle represents a single recurring-payment schedule owned by a controller.
//
// LastPaid is a unix timestamp in seconds. The zero value is a reserved
// sentinel meaning "never paid"; it must never be conflated with a real epoch
// timestamp.
type Bundle struct {
	Owner             string `json:"owner"`
	BundleID          uint64 `json:"bundle_id"`
	AmountPerInterval int64  `json:"amount_per_interval"`
	IntervalSeconds   int64  `json:"interval_seconds"`
	RecipientAccount  string `json:"recipient_account"`
	LastPaid          int64  `json:"last_paid"`
}

// NextEligibleAt returns the earliest unix timestamp at which the bundle may
// pay again. A never-paid bundle is eligible immediately, so 0 is returned.
func (b Bundle) NextEligibleAt() int64 {
	if b.LastPaid == 0 {
		return 0
	}
	return b.LastPaid + b.IntervalSeconds
}

// IsDue reports whether the bundle's interval gate would pass at the given
// unix timestamp.
func (b Bundle) IsDue(now int64) bool {
	return b.LastPaid == 0 || now-b.LastPaid >= b.IntervalSeconds
}

// BundleView is the API response shape for a bundle, including the computed
// next eligibility time so clients do not re-implement the interval rule.
type BundleView struct {
	Bundle
	NextEligibleAt int64 `json:"next_eligible_at"`
}
