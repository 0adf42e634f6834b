package domain

import "time"

// Hold reserves stock for a prospective buyer until ExpiresAt. It ends
// either redeemed (converted to an order) or released (expired unconsumed).
type Hold struct {
	ID              string
	ProductID       string
	Quantity        int
	ExpiresAt       time.Time
	IsRedeemed      bool
	ReleasedAt      *time.Time
	PaymentIntentID *string
	CreatedAt       time.Time
}

// ValidateUsable reports why the hold cannot be redeemed at now, checking
// the most specific cause first: redeemed, then released, then expired.
// A hold already linked to an order counts as redeemed even after a
// failed payment has cleared IsRedeemed.
func (h Hold) ValidateUsable(now time.Time) error {
	if h.IsRedeemed || h.PaymentIntentID != nil {
		return ErrHoldAlreadyRedeemed
	}
	if h.ReleasedAt != nil {
		return ErrHoldReleased
	}
	if !h.ExpiresAt.After(now) {
		return ErrHoldExpired
	}
	return nil
}

// Reclaimable reports whether the expiry reclaimer may release the hold's
// reservation at now.
func (h Hold) Reclaimable(now time.Time) bool {
	if h.ReleasedAt != nil || h.PaymentIntentID != nil {
		return false
	}
	return !h.ExpiresAt.After(now)
}
