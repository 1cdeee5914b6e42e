// Package admission implements a per-identifier request throttle. Each
// identifier (typically a client IP) may make Limit calls before it is blocked
// for the cooldown period; a call arriving after the cooldown has elapsed
// resets the identifier's count. The number of distinct identifiers tracked at
// once is bounded, and new identifiers are rejected once that bound is hit.
package admission

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults used by DefaultConfig.
const (
	DefaultLimit       = 3
	DefaultMaxCapacity = 120
	DefaultCooldown    = time.Minute

	// DefaultMaxIdentifierLength bounds identifiers in bytes.
	DefaultMaxIdentifierLength = 256
)

// minRetryAfter is the smallest wait reported to a denied caller. A call
// landing exactly on BlockedUntil is still blocked, so advertising zero would
// invite an immediate retry that is denied again.
const minRetryAfter = time.Second

// Config holds the admission parameters.
type Config struct {
	Limit         int           // calls allowed per identifier before blocking
	MaxCapacity   int           // distinct identifiers tracked at once
	Cooldown      time.Duration // how long a blocked identifier waits before being reset
	IdleTTL       time.Duration // records idle longer than this may be swept; 0 disables sweeping
	SweepInterval time.Duration // period of the background sweeper; 0 means Sweep is only called manually

	MaxIdentifierLength int // longest identifier accepted, in bytes
}

// DefaultConfig returns limit 3, capacity 120, a one minute cooldown, a 256
// byte identifier cap and no idle sweeping.
func DefaultConfig() Config {
	return Config{
		Limit:               DefaultLimit,
		MaxCapacity:         DefaultMaxCapacity,
		Cooldown:            DefaultCooldown,
		MaxIdentifierLength: DefaultMaxIdentifierLength,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	if c.MaxCapacity <= 0 {
		return errors.New("max capacity must be positive")
	}
	if c.Cooldown <= 0 {
		return errors.New("cooldown must be positive")
	}
	if c.MaxIdentifierLength <= 0 {
		return errors.New("max identifier length must be positive")
	}
	if c.IdleTTL < 0 {
		return errors.New("idle TTL cannot be negative")
	}
	if c.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}
	if c.SweepInterval > 0 && c.IdleTTL == 0 {
		return errors.New("sweep interval requires an idle TTL")
	}
	return nil
}

// Option configures optional Controller behavior.
type Option func(*Controller)

// WithClock replaces time.Now as the controller's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// entry is a table slot. The record pointer is replaced wholesale on every
// transition, so concurrent calls for one identifier serialize through
// compare-and-swap while calls for other identifiers never contend.
type entry struct {
	record atomic.Pointer[Record]
}

// Controller owns the admission table. It is safe for concurrent use.
type Controller struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a Controller. When cfg.SweepInterval is positive a background
// goroutine evicts idle records; call Close to stop it.
func New(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid admission config: %w", err)
	}

	c := &Controller{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}
	return c, nil
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// AdmitValue is Admit for callers holding an untyped identifier, such as a
// decoded JSON field. Anything other than a string is rejected with
// ErrInvalidInput regardless of table state.
func (c *Controller) AdmitValue(v any) (Decision, error) {
	identifier, ok := v.(string)
	if !ok {
		err := NewInvalidInputError(fmt.Sprintf("expected string, received %T", v))
		return Decision{Reason: err.Reason, Limit: c.cfg.Limit}, err
	}
	return c.Admit(identifier)
}

// Admit records a call from identifier and decides whether it may proceed.
// A nil error means the call is allowed. Denials return an *Error whose
// Reason is also set on the returned Decision.
func (c *Controller) Admit(identifier string) (Decision, error) {
	if identifier == "" {
		err := NewInvalidInputError("expected non-empty string")
		return Decision{Reason: err.Reason, Limit: c.cfg.Limit}, err
	}
	if len(identifier) > c.cfg.MaxIdentifierLength {
		err := NewInvalidInputError(fmt.Sprintf("identifier exceeds %d bytes", c.cfg.MaxIdentifierLength))
		return Decision{Reason: err.Reason, Limit: c.cfg.Limit}, err
	}

	now := c.now()

	e, created, err := c.acquire(identifier, now)
	if err != nil {
		return Decision{Identifier: identifier, Reason: ReasonCapacityExceeded, Limit: c.cfg.Limit}, err
	}
	if created {
		return c.decide(e.record.Load(), ReasonAllowed, now), nil
	}

	for {
		prev := e.record.Load()
		next, reason := c.transition(prev, now)
		if next == prev {
			return c.decide(prev, reason, now), NewStillBlockedError(identifier, prev.BlockedUntil)
		}
		if !e.record.CompareAndSwap(prev, next) {
			continue
		}
		if reason == ReasonRateLimitExceeded {
			return c.decide(next, reason, now), NewRateLimitExceededError(identifier, next.BlockedUntil)
		}
		return c.decide(next, reason, now), nil
	}
}

// acquire returns the entry for identifier, creating it with a fresh record
// when absent. The capacity check gates only creation.
func (c *Controller) acquire(identifier string, now time.Time) (*entry, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[identifier]
	c.mu.RUnlock()
	if ok {
		return e, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[identifier]; ok {
		return e, false, nil
	}
	if len(c.entries) >= c.cfg.MaxCapacity {
		return nil, false, NewCapacityExceededError(identifier, c.cfg.MaxCapacity)
	}

	e = &entry{}
	e.record.Store(newRecord(identifier, now))
	c.entries[identifier] = e
	return e, true, nil
}

// transition applies one call at now to prev. It returns prev itself when the
// call is absorbed by an unexpired cooldown.
func (c *Controller) transition(prev *Record, now time.Time) (*Record, Reason) {
	switch {
	case prev.RequestCount < c.cfg.Limit:
		return &Record{
			Identifier:   prev.Identifier,
			RequestCount: prev.RequestCount + 1,
			LastRequest:  now,
		}, ReasonAllowed
	case !prev.Blocked:
		return &Record{
			Identifier:   prev.Identifier,
			RequestCount: prev.RequestCount,
			Blocked:      true,
			BlockedUntil: now.Add(c.cfg.Cooldown),
			LastRequest:  now,
		}, ReasonRateLimitExceeded
	case now.After(prev.BlockedUntil):
		return newRecord(prev.Identifier, now), ReasonAllowed
	default:
		return prev, ReasonStillBlocked
	}
}

func (c *Controller) decide(r *Record, reason Reason, now time.Time) Decision {
	d := Decision{
		Identifier: r.Identifier,
		Allowed:    reason == ReasonAllowed,
		Reason:     reason,
		Record:     *r,
		Limit:      c.cfg.Limit,
	}
	if d.Allowed {
		d.Remaining = max(c.cfg.Limit-r.RequestCount, 0)
	}
	if r.Blocked {
		d.RetryAfter = max(r.BlockedUntil.Sub(now), minRetryAfter)
	}
	return d
}

// Lookup returns a copy of the record held for identifier.
func (c *Controller) Lookup(identifier string) (Record, bool) {
	c.mu.RLock()
	e, ok := c.entries[identifier]
	c.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	return *e.record.Load(), true
}

// Reset forgets identifier, returning it to the fresh state. It reports
// whether a record was removed.
func (c *Controller) Reset(identifier string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[identifier]
	delete(c.entries, identifier)
	return ok
}

// Len returns the number of tracked identifiers.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Capacity returns the maximum number of tracked identifiers.
func (c *Controller) Capacity() int {
	return c.cfg.MaxCapacity
}

// Stats summarizes the table. Blocked counts only unexpired cooldowns.
func (c *Controller) Stats() Stats {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Tracked:  len(c.entries),
		Capacity: c.cfg.MaxCapacity,
		Limit:    c.cfg.Limit,
	}
	for _, e := range c.entries {
		if e.record.Load().coolingDown(now) {
			s.Blocked++
		}
	}
	return s
}
