package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_TickerFiresWhenDue(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewManual(start)
	ticker := c.NewTicker(time.Minute)

	c.Advance(30 * time.Second)
	select {
	case <-ticker.Chan():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case at := <-ticker.Chan():
		assert.Equal(t, start.Add(time.Minute), at)
	default:
		t.Fatal("ticker did not fire")
	}

	assert.Equal(t, 1, c.ActiveTickers())
	ticker.Stop()
	assert.Equal(t, 0, c.ActiveTickers())

	c.Advance(time.Hour)
	select {
	case <-ticker.Chan():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestReal(t *testing.T) {
	c := Real()
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)

	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.Chan():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}
