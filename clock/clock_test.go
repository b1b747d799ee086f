package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSteppingClock(t *testing.T) {
	t1 := time.Date(2020, time.November, 15, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	c := NewSteppingClock(t1, t2)
	assert.Equal(t, t1, c.Now())
	assert.Equal(t, t2, c.Now())
	// The last time repeats.
	assert.Equal(t, t2, c.Now())

	empty := NewSteppingClock()
	assert.Equal(t, 1980, empty.Now().Year())
}

func TestStoppedClock(t *testing.T) {
	t1 := time.Date(2020, time.November, 15, 0, 0, 0, 0, time.UTC)
	c := NewStoppedClock(t1)
	assert.Equal(t, t1, c.Now())
	assert.Equal(t, t1, c.Now())

	t2 := t1.Add(time.Hour)
	c.SetTime(t2)
	assert.Equal(t, t2, c.Now())
}

func TestGPSTime(t *testing.T) {
	testData := []struct {
		description string
		time        time.Time
		leap        int
		wantWeek    int
		wantSeconds float64
	}{
		{"start of week", time.Date(2020, time.November, 15, 0, 0, 0, 0, time.UTC), 0, 2132, 0},
		{"with leap seconds", time.Date(2020, time.November, 15, 0, 0, 0, 0, time.UTC), 18, 2132, 18},
		{"end of week", time.Date(2020, time.November, 21, 23, 59, 50, 0, time.UTC), 0, 2132, 604790},
		{"leap seconds cross the week", time.Date(2020, time.November, 21, 23, 59, 50, 0, time.UTC), 18, 2133, 8},
	}

	for _, td := range testData {
		week, seconds := GPSTime(NewStoppedClock(td.time), td.leap)
		assert.Equal(t, td.wantWeek, week, td.description)
		assert.InDelta(t, td.wantSeconds, seconds, 1e-9, td.description)
	}
}

func TestSystemClock(t *testing.T) {
	before := time.Now()
	now := NewSystemClock().Now()
	assert.False(t, now.Before(before.Add(-time.Second)))
	assert.Equal(t, time.UTC, now.Location())
}
