package trader

import (
	"sync/atomic"
	"time"
)

// Cooldown holds the process-wide last trade time. The executor writes it,
// the detector reads it.
type Cooldown struct {
	duration time.Duration
	last     atomic.Int64
}

func NewCooldown(duration time.Duration) *Cooldown {
	return &Cooldown{duration: duration}
}

// Mark records a trade decision at now.
func (c *Cooldown) Mark(now time.Time) {
	c.last.Store(now.UnixNano())
}

// Active reports whether less than the cooldown duration has passed since the
// last trade.
func (c *Cooldown) Active(now time.Time) bool {
	last := c.last.Load()
	if last == 0 {
		return false
	}
	return now.Sub(time.Unix(0, last)) < c.duration
}

// LastTrade returns the zero time if no trade has been made.
func (c *Cooldown) LastTrade() time.Time {
	last := c.last.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.Unix(0, last)
}
