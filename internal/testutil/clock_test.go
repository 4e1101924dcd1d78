package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_Deterministic(t *testing.T) {
	start := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c := NewClock(start, time.Minute)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Minute), c.Now())
	assert.Equal(t, start.Add(2*time.Minute), c.Peek())

	c.Advance(time.Hour)
	assert.Equal(t, start.Add(2*time.Minute).Add(time.Hour), c.Now())
}

func TestClock_RunsAreIdentical(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()

	ticks := func() []time.Time {
		c := NewClock(start, time.Second)
		out := make([]time.Time, 0, 5)
		for i := 0; i < 5; i++ {
			out = append(out, c.Now())
		}
		return out
	}

	assert.Equal(t, ticks(), ticks())
}
