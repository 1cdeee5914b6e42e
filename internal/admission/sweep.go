package admission

import "time"

// Sweep removes records that are not cooling down and whose last call is
// older than the configured IdleTTL. It returns the number removed and does
// nothing when IdleTTL is zero.
func (c *Controller) Sweep(now time.Time) int {
	if c.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-c.cfg.IdleTTL)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.entries {
		r := e.record.Load()
		if r.coolingDown(now) || !r.LastRequest.Before(cutoff) {
			continue
		}
		delete(c.entries, id)
		removed++
	}
	return removed
}

// Close stops the background sweeper. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Sweep(c.now())
		}
	}
}
