package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

type BreakerSettings struct {
	FailureThreshold int
	CoolDown         time.Duration
	OnStateChange    func(name string, from, to BreakerState)
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		CoolDown:         60 * time.Second,
	}
}

func (s BreakerSettings) normalize() BreakerSettings {
	def := DefaultBreakerSettings()
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = def.FailureThreshold
	}
	if s.CoolDown <= 0 {
		s.CoolDown = def.CoolDown
	}
	return s
}

// Breaker is a consecutive-failure circuit breaker driven by a Clock.
// States move CLOSED -> OPEN -> HALF_OPEN -> CLOSED, or back to OPEN when the
// single half-open trial fails.
type Breaker struct {
	name     string
	settings BreakerSettings
	clock    Clock

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

func NewBreaker(name string, settings BreakerSettings, clock Clock) *Breaker {
	if clock == nil {
		clock = RealClock{}
	}
	return &Breaker{
		name:     name,
		settings: settings.normalize(),
		clock:    clock,
		state:    StateClosed,
	}
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Allow reserves a call slot. In HALF_OPEN only one trial may be in flight.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	switch b.state {
	case StateOpen:
		return b.openError()
	case StateHalfOpen:
		if b.trialInFlight {
			return b.openError()
		}
		b.trialInFlight = true
	}
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		b.failures = 0
		b.transitionLocked(StateClosed)
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		b.openedAt = b.clock.Now()
		b.transitionLocked(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.openedAt = b.clock.Now()
			b.transitionLocked(StateOpen)
		}
	}
}

// Execute runs fn unless the circuit is open. isFailure decides whether an
// error counts against the breaker; nil counts every error. A panic in fn
// counts as a failure and is re-raised.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error, isFailure func(error) bool) error {
	if err := b.Allow(); err != nil {
		return err
	}
	defer func() {
		if rec := recover(); rec != nil {
			b.RecordFailure()
			panic(rec)
		}
	}()

	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess()
	case isFailure == nil || isFailure(err):
		b.RecordFailure()
	default:
		b.release()
	}
	return err
}

type BreakerSnapshot struct {
	Name     string       `json:"name"`
	State    BreakerState `json:"state"`
	Failures int          `json:"failures"`
	OpenedAt *time.Time   `json:"openedAt,omitempty"`
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	snap := BreakerSnapshot{
		Name:     b.name,
		State:    b.state,
		Failures: b.failures,
	}
	if b.state != StateClosed {
		openedAt := b.openedAt
		snap.OpenedAt = &openedAt
	}
	return snap
}

func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.trialInFlight = false
	}
}

func (b *Breaker) refreshLocked() {
	if b.state != StateOpen {
		return
	}
	if b.clock.Now().Sub(b.openedAt) >= b.settings.CoolDown {
		b.trialInFlight = false
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) transitionLocked(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	slog.Warn("circuit_breaker_state_change", "resource", b.name, "from", string(from), "to", string(to))
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) openError() error {
	return domain.WrapError(domain.ErrCircuitOpen, "breaker "+b.name, fmt.Errorf("state=%s", b.state))
}

// BreakerRegistry hands out one breaker per named resource.
type BreakerRegistry struct {
	settings BreakerSettings
	clock    Clock

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewBreakerRegistry(settings BreakerSettings, clock Clock) *BreakerRegistry {
	if clock == nil {
		clock = RealClock{}
	}
	return &BreakerRegistry{
		settings: settings.normalize(),
		clock:    clock,
		breakers: make(map[string]*Breaker),
	}
}

func (r *BreakerRegistry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if breaker, ok := r.breakers[name]; ok {
		return breaker
	}
	breaker := NewBreaker(name, r.settings, r.clock)
	r.breakers[name] = breaker
	return breaker
}

func (r *BreakerRegistry) Snapshots() []BreakerSnapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, breaker := range r.breakers {
		breakers = append(breakers, breaker)
	}
	r.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(breakers))
	for _, breaker := range breakers {
		out = append(out, breaker.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
