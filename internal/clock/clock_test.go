package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock(t *testing.T) {
	at := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	c := NewFixed(at)
	assert.Equal(t, at, c.Now())
	assert.Equal(t, at, c.Now())
}

func TestManualClockAdvance(t *testing.T) {
	at := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	c := NewManual(at)
	c.Advance(90 * time.Minute)
	assert.Equal(t, at.Add(90*time.Minute), c.Now())
}

func TestRealClockIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, NewReal().Now().Location())
}
