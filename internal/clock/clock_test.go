package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFake(start)

	assert.Equal(t, start, f.Now())

	f.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), f.Now())

	f.Set(start)
	assert.Equal(t, start, f.Now())
}

func TestReal_IsCloseToTimeNow(t *testing.T) {
	now := Real().Now()
	assert.WithinDuration(t, time.Now(), now, time.Second)
}
