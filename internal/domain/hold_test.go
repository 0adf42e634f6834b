package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHold_ValidateUsable(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	released := now.Add(-time.Minute)

	tests := []struct {
		name string
		hold Hold
		want error
	}{
		{name: "active", hold: Hold{ExpiresAt: now.Add(time.Minute)}},
		{name: "redeemed", hold: Hold{IsRedeemed: true, ExpiresAt: now.Add(time.Minute)}, want: ErrHoldAlreadyRedeemed},
		{name: "released", hold: Hold{ReleasedAt: &released, ExpiresAt: now.Add(-time.Minute)}, want: ErrHoldReleased},
		{name: "expired", hold: Hold{ExpiresAt: now.Add(-time.Second)}, want: ErrHoldExpired},
		{name: "expires exactly now", hold: Hold{ExpiresAt: now}, want: ErrHoldExpired},
		{name: "redeemed wins over released and expired", hold: Hold{IsRedeemed: true, ReleasedAt: &released, ExpiresAt: now.Add(-time.Hour)}, want: ErrHoldAlreadyRedeemed},
		{name: "linked to an order", hold: Hold{PaymentIntentID: strPtr("order-1"), ExpiresAt: now.Add(time.Minute)}, want: ErrHoldAlreadyRedeemed},
		{name: "released wins over expired", hold: Hold{ReleasedAt: &released, ExpiresAt: now.Add(-time.Hour)}, want: ErrHoldReleased},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.hold.ValidateUsable(now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHold_Reclaimable(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	released := now
	intent := "order-1"

	assert.True(t, Hold{ExpiresAt: now.Add(-time.Minute)}.Reclaimable(now))
	assert.True(t, Hold{ExpiresAt: now}.Reclaimable(now))
	assert.False(t, Hold{ExpiresAt: now.Add(time.Minute)}.Reclaimable(now))
	assert.False(t, Hold{ExpiresAt: now.Add(-time.Minute), ReleasedAt: &released}.Reclaimable(now))
	assert.False(t, Hold{ExpiresAt: now.Add(-time.Minute), PaymentIntentID: &intent}.Reclaimable(now))
}

func strPtr(s string) *string { return &s }
