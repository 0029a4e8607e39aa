// Package resilience guards calls to flaky dependencies.
package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Metrics exports breaker state per target.
type Metrics struct {
	State       *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
}

// NewMetrics registers the breaker collectors on reg, reusing collectors that are
// already registered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open.",
		}, []string{"target"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transition_total",
			Help:      "Count of breaker state transitions.",
		}, []string{"target", "from", "to"}),
	}
	if err := reg.Register(m.State); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			m.State = are.ExistingCollector.(*prometheus.GaugeVec)
		}
	}
	if err := reg.Register(m.Transitions); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			m.Transitions = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return m
}

// Options configures a Breaker. Zero values fall back to sensible defaults.
type Options struct {
	Target       string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	// IsFailure decides whether an error counts against the dependency. Defaults to
	// every non-nil error except context cancellation.
	IsFailure func(error) bool
	Logger    zerolog.Logger
	Metrics   *Metrics
}

// Breaker implements a failure-ratio circuit breaker.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool

	opts Options
	now  func() time.Time
}

// NewBreaker constructs a breaker that opens once MinRequests outcomes have been
// observed and the failure ratio reaches FailureRatio.
func NewBreaker(opts Options) *Breaker {
	if opts.MinRequests <= 0 {
		opts.MinRequests = 1
	}
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = 0.5
	}
	if opts.FailureRatio > 1 {
		opts.FailureRatio = 1
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 30 * time.Second
	}
	if strings.TrimSpace(opts.Target) == "" {
		opts.Target = "default"
	}
	if opts.IsFailure == nil {
		opts.IsFailure = defaultIsFailure
	}
	b := &Breaker{state: Closed, opts: opts, now: time.Now}
	b.recordStateLocked()
	return b
}

// Do runs fn when the breaker admits the call and reports its outcome.
// A panic in fn is reported as a failure and then propagates.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) (err error) {
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	returned := false
	defer func() {
		b.Report(ctx, returned && (err == nil || !b.opts.IsFailure(err)))
	}()
	err = fn(ctx)
	returned = true
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request is permitted. Once the cool-off has passed an
// open breaker admits exactly one probe and moves to half-open.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.opts.OpenFor {
			return false
		}
		b.changeStateLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an admitted request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.opts.MinRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.opts.FailureRatio {
		b.changeStateLocked(ctx, Open)
		return
	}
	if total > b.opts.MinRequests*2 {
		// keep the window rolling
		b.successes = (b.successes + 1) / 2
		b.failures = (b.failures + 1) / 2
	}
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.failures = 0
	b.successes = 0
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.recordStateLocked()

	if m := b.opts.Metrics; m != nil {
		m.Transitions.WithLabelValues(b.opts.Target, prev.String(), next.String()).Inc()
	}
	evt := b.opts.Logger.Info()
	if next == Open {
		evt = b.opts.Logger.Warn()
	}
	evt = evt.Str("target", b.opts.Target).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) recordStateLocked() {
	if m := b.opts.Metrics; m != nil {
		m.State.WithLabelValues(b.opts.Target).Set(float64(b.state))
	}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}
