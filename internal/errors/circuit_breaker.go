package errors

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edgeandnode/candidate-selection/internal/logging"
)

// ErrCircuitOpen is returned by Allow while a candidate's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// StateClosed - candidate eligible for selection
	StateClosed CircuitState = iota
	// StateOpen - too many consecutive failures, candidate excluded
	StateOpen
	// StateHalfOpen - cool-down elapsed, candidate may be probed again
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	FailureThreshold int                                      // Consecutive failures that open the circuit (default: 5)
	SuccessThreshold int                                      // Consecutive half-open successes that close it (default: 2)
	Timeout          time.Duration                            // Cool-down before half-open (default: 30s)
	OnStateChange    func(from, to CircuitState, name string) // Optional callback, invoked synchronously
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

func (c *CircuitBreakerConfig) defaults() {
	d := DefaultCircuitBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
}

// CircuitBreaker tracks consecutive outcomes for one candidate.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
}

func newCircuitBreaker(name string, config CircuitBreakerConfig, now func() time.Time, logger logging.Logger) *CircuitBreaker {
	config.defaults()
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logging.OrNop(logger),
		now:             now,
		state:           StateClosed,
		lastStateChange: now(),
	}
}

// Allow reports whether the candidate may be selected. An open breaker whose
// cool-down has elapsed moves to half-open and admits the request.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		elapsed := cb.now().Sub(cb.lastFailureTime)
		if elapsed >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.successCount = 0
			cb.logger.Info("[%s] circuit half-open, probing candidate", cb.name)
			return nil
		}
		return fmt.Errorf("%w for %s, retry in %v", ErrCircuitOpen, cb.name, cb.config.Timeout-elapsed)
	default:
		return fmt.Errorf("unknown circuit breaker state: %v", cb.state)
	}
}

// Record records a success or failure.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		cb.logger.Debug("[%s] success in half-open state (%d/%d)",
			cb.name, cb.successCount, cb.config.SuccessThreshold)
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
			cb.logger.Info("[%s] circuit closed, candidate recovered", cb.name)
		}

	case StateOpen:
		// Outcome of a request dispatched before the circuit opened.
		cb.logger.Debug("[%s] late success while open", cb.name)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
			cb.logger.Warn("[%s] circuit opened after %d consecutive failures", cb.name, cb.failureCount)
		}

	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.successCount = 0
		cb.logger.Warn("[%s] circuit reopened, probe failed", cb.name)

	case StateOpen:
		cb.logger.Debug("[%s] failure while open", cb.name)
	}
}

// setState transitions to a new state. Caller must hold mu.
func (cb *CircuitBreaker) setState(newState CircuitState) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	if cb.config.OnStateChange != nil && oldState != newState {
		cb.config.OnStateChange(oldState, newState, cb.name)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns current circuit breaker metrics
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset closes the breaker and clears its counters. The transition is
// reported through OnStateChange like any other.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.failureCount = 0
	cb.successCount = 0
	if oldState != StateClosed {
		cb.setState(StateClosed)
		cb.logger.Info("[%s] circuit manually reset from %s to closed", cb.name, oldState)
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics
type CircuitBreakerMetrics struct {
	Name            string
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
}

// CircuitBreakerManager hands out one breaker per candidate id.
type CircuitBreakerManager struct {
	breakers sync.Map // candidate id -> *CircuitBreaker
	config   CircuitBreakerConfig
	now      func() time.Time
	logger   logging.Logger
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager(config CircuitBreakerConfig) *CircuitBreakerManager {
	return NewCircuitBreakerManagerWithClock(config, time.Now, logging.NewComponentLogger("circuit-breaker"))
}

// NewCircuitBreakerManagerWithClock is NewCircuitBreakerManager with an
// explicit time source and logger, used by the engine and tests.
func NewCircuitBreakerManagerWithClock(config CircuitBreakerConfig, now func() time.Time, logger logging.Logger) *CircuitBreakerManager {
	config.defaults()
	if now == nil {
		now = time.Now
	}
	return &CircuitBreakerManager{
		config: config,
		now:    now,
		logger: logging.OrNop(logger),
	}
}

// Get returns the breaker for the given candidate, creating it if needed.
func (m *CircuitBreakerManager) Get(name string) *CircuitBreaker {
	if v, ok := m.breakers.Load(name); ok {
		return v.(*CircuitBreaker)
	}
	created := newCircuitBreaker(name, m.config, m.now, m.logger)
	actual, _ := m.breakers.LoadOrStore(name, created)
	return actual.(*CircuitBreaker)
}

// Lookup returns the breaker for name without creating one.
func (m *CircuitBreakerManager) Lookup(name string) (*CircuitBreaker, bool) {
	v, ok := m.breakers.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*CircuitBreaker), true
}

// GetMetrics returns metrics for all circuit breakers, sorted by name.
func (m *CircuitBreakerManager) GetMetrics() []CircuitBreakerMetrics {
	var metrics []CircuitBreakerMetrics
	m.breakers.Range(func(_, v any) bool {
		metrics = append(metrics, v.(*CircuitBreaker).Metrics())
		return true
	})
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics
}

// ResetAll closes every breaker.
func (m *CircuitBreakerManager) ResetAll() {
	m.breakers.Range(func(_, v any) bool {
		v.(*CircuitBreaker).Reset()
		return true
	})
}

// Remove removes a circuit breaker
func (m *CircuitBreakerManager) Remove(name string) {
	m.breakers.Delete(name)
}
