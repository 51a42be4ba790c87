package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls immediately after repeated failures.
	CircuitOpen
	// CircuitHalfOpen allows a single probe call to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected by an open circuit.
// It is transient: the provider may recover before the retry budget runs out.
var ErrCircuitOpen = NewTransientError(eris.New("circuit breaker is open"), 0)

// CircuitConfig controls breaker behavior for one provider.
type CircuitConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before allowing a
	// probe. Default: 30s.
	ResetTimeout time.Duration
}

// DefaultCircuitConfig returns the defaults used for provider breakers.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// Breaker guards one external provider. Failures that pass IsTransient count
// toward the threshold; validation-class errors do not trip it.
type Breaker struct {
	cfg CircuitConfig

	mu           sync.Mutex
	state        CircuitState
	failures     int
	lastFailure  time.Time
	nowFunc      func() time.Time
}

// NewBreaker creates a Breaker with the given config.
func NewBreaker(cfg CircuitConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, state: CircuitClosed, nowFunc: time.Now}
}

// Execute runs fn through the breaker, returning ErrCircuitOpen when the
// circuit rejects the call.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// ExecuteVal is Execute preserving a return value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.nowFunc().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen {
		if b.nowFunc().Sub(b.lastFailure) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.state = CircuitHalfOpen
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !IsTransient(err) {
		b.state = CircuitClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.nowFunc()
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = CircuitOpen
	}
}

// BreakerSet manages one Breaker per named provider.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      CircuitConfig
}

// NewBreakerSet creates a registry of per-provider breakers.
func NewBreakerSet(cfg CircuitConfig) *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns the breaker for the named provider, creating it if needed.
func (s *BreakerSet) Get(provider string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[provider]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(s.cfg)
	s.breakers[provider] = b
	return b
}

// States returns a snapshot of all breaker states for observability.
func (s *BreakerSet) States() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make(map[string]string, len(s.breakers))
	for name, b := range s.breakers {
		states[name] = b.State().String()
	}
	return states
}
