package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var lifecycleCfg = LifecycleConfig{StaleAfter: 2 * time.Hour}

func TestAdvance_PendingZeroMinutesEndsOnce(t *testing.T) {
	now := time.Now()
	lot := Lot{LotID: "a", Status: StatusPending, MinutesLeft: Minutes(0), LastSeen: now}

	next, changed := Advance(lot, now, lifecycleCfg)
	assert.True(t, changed)
	assert.Equal(t, StatusEnded, next)

	// Segunda pasada sobre el estado resultante: no-op.
	lot.Status = next
	again, changed := Advance(lot, now, lifecycleCfg)
	assert.False(t, changed)
	assert.Equal(t, StatusEnded, again)
}

func TestAdvance_PendingWithTimeLeftStays(t *testing.T) {
	now := time.Now()
	lot := Lot{Status: StatusPending, MinutesLeft: Minutes(15), LastSeen: now.Add(-48 * time.Hour)}
	next, changed := Advance(lot, now, lifecycleCfg)
	assert.False(t, changed)
	assert.Equal(t, StatusPending, next)
}

func TestAdvance_IndeterminateStaleness(t *testing.T) {
	now := time.Now()
	fresh := Lot{Status: StatusPending, MinutesLeft: Indeterminate(), LastSeen: now.Add(-time.Hour)}
	stale := Lot{Status: StatusPending, MinutesLeft: Indeterminate(), LastSeen: now.Add(-3 * time.Hour)}

	_, changed := Advance(fresh, now, lifecycleCfg)
	assert.False(t, changed)

	next, changed := Advance(stale, now, lifecycleCfg)
	assert.True(t, changed)
	assert.Equal(t, StatusEnded, next)
}

func TestAdvance_EndedWithFinalPriceIsSold(t *testing.T) {
	now := time.Now()
	lot := Lot{Status: StatusEnded, MinutesLeft: Minutes(0), FinalPrice: Float(80)}
	next, changed := Advance(lot, now, lifecycleCfg)
	assert.True(t, changed)
	assert.Equal(t, StatusSoldHistory, next)

	lot.Status = next
	_, changed = Advance(lot, now, lifecycleCfg)
	assert.False(t, changed)
}

func TestAdvance_PendingReachesFixpointInOneCall(t *testing.T) {
	lot := Lot{Status: StatusPending, MinutesLeft: Minutes(0), FinalPrice: Float(10)}
	next, _ := Advance(lot, time.Now(), lifecycleCfg)
	assert.Equal(t, StatusSoldHistory, next)

	path := Path(lot, time.Now(), lifecycleCfg)
	assert.Equal(t, []Status{StatusEnded, StatusSoldHistory}, path)
	prev := lot.Status
	for _, st := range path {
		assert.True(t, CanTransition(prev, st), "%s→%s", prev, st)
		prev = st
	}
}

func TestAdvance_TerminalStatesNeverMove(t *testing.T) {
	now := time.Now()
	for _, st := range []Status{StatusSoldHistory, StatusWon, StatusArchived} {
		lot := Lot{Status: st, MinutesLeft: Minutes(500), FinalPrice: Float(1)}
		next, changed := Advance(lot, now, lifecycleCfg)
		assert.False(t, changed, st)
		assert.Equal(t, st, next)
	}
}

func TestCanTransition_Graph(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusEnded))
	assert.True(t, CanTransition(StatusPending, StatusWon))
	assert.True(t, CanTransition(StatusPending, StatusArchived))
	assert.True(t, CanTransition(StatusEnded, StatusSoldHistory))
	assert.True(t, CanTransition(StatusEnded, StatusArchived))

	assert.False(t, CanTransition(StatusEnded, StatusPending))
	assert.False(t, CanTransition(StatusEnded, StatusWon))
	assert.False(t, CanTransition(StatusSoldHistory, StatusPending))
	assert.False(t, CanTransition(StatusWon, StatusArchived))
	assert.False(t, CanTransition(StatusArchived, StatusPending))
}
