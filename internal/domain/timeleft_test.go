package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func str(s string) *string { return &s }

func TestParseTimeRemaining_TokenSum(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"45m", 45},
		{"2h", 120},
		{"1d", 1440},
		{"1d 2h 5m", 1440 + 120 + 5},
		{"3 h 10 m", 190},
		{"2D 0H 1M", 2881},
		{"0m", 0},
		{"Time left: 4h 30m", 270},
	}
	for _, c := range cases {
		got := ParseTimeRemaining(str(c.text))
		v, ok := got.Value()
		assert.True(t, ok, c.text)
		assert.Equal(t, c.want, v, c.text)
	}
}

func TestParseTimeRemaining_WeightedSumGrid(t *testing.T) {
	for d := 0; d <= 3; d++ {
		for h := 0; h <= 23; h += 7 {
			for m := 0; m <= 59; m += 13 {
				text := fmt.Sprintf("%dd %dh %dm", d, h, m)
				v, ok := ParseTimeRemaining(&text).Value()
				assert.True(t, ok)
				assert.Equal(t, d*1440+h*60+m, v, text)
			}
		}
	}
}

func TestParseTimeRemaining_Indeterminate(t *testing.T) {
	for _, text := range []*string{nil, str(""), str("   "), str("Closed"), str("Unknown"), str("CLOSED 0m"), str("soon")} {
		got := ParseTimeRemaining(text)
		assert.False(t, got.IsKnown())
		assert.Equal(t, Indeterminate(), got)
	}
}

func TestMinutesLeft_SentinelSortsLast(t *testing.T) {
	assert.True(t, Minutes(10_000_000).Less(Indeterminate()))
	assert.False(t, Indeterminate().Less(Minutes(0)))
	assert.False(t, Indeterminate().Less(Indeterminate()))
	assert.True(t, Minutes(3).Less(Minutes(4)))
}

func TestMinutesLeft_PtrRoundTrip(t *testing.T) {
	assert.Nil(t, Indeterminate().Ptr())
	assert.Equal(t, Indeterminate(), MinutesFromPtr(nil))
	assert.Equal(t, Minutes(7), MinutesFromPtr(Minutes(7).Ptr()))
	assert.Equal(t, "2h05m", Minutes(125).Format())
	assert.Equal(t, "?", Indeterminate().Format())
}

func TestParseTimeRemaining_HugeValuesAreIndeterminate(t *testing.T) {
	for _, text := range []string{
		"9999999999999999d",
		"99999999999999999999999m",
		"400d",
		"364d 48h",
		"200d 200d",
	} {
		got := ParseTimeRemaining(&text)
		assert.False(t, got.IsKnown(), text)
	}

	text := "364d 23h 59m"
	v, ok := ParseTimeRemaining(&text).Value()
	assert.True(t, ok)
	assert.Equal(t, 364*1440+23*60+59, v)
}
