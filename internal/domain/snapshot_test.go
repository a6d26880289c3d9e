package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lot := Normalize(Snapshot{
		LotID:         " 123 ",
		Title:         " Drill press ",
		CurrentBid:    12.5,
		BidCount:      Int(3),
		TimeRemaining: str("1h 5m"),
	}, now)

	assert.Equal(t, "123", lot.LotID)
	assert.Equal(t, "Drill press", lot.Title)
	assert.Equal(t, StatusPending, lot.Status)
	assert.Equal(t, Minutes(65), lot.MinutesLeft)
	assert.Equal(t, "1h 5m", lot.TimeRemaining)
	assert.InDelta(t, 0.15, lot.BuyersPremium, 1e-9)
	assert.Equal(t, now, lot.LastSeen)
}

func TestNormalize_KeepsExplicitPremiumAndMissingTime(t *testing.T) {
	lot := Normalize(Snapshot{LotID: "1", BuyersPremium: Float(0.18)}, time.Now())
	assert.InDelta(t, 0.18, lot.BuyersPremium, 1e-9)
	assert.False(t, lot.MinutesLeft.IsKnown())
	assert.Nil(t, lot.BidCount)
}
