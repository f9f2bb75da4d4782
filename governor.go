package livia

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool names shared by every caller. The llm pool covers the provider's
// Responses, file, and transcription surfaces; the integration pool covers
// streamed calls that target the MCP gateway.
const (
	PoolLLM         = "llm"
	PoolIntegration = "integration"
)

// Envelope bounds one pool: concurrency, sliding request windows, and the
// retry budget applied to transient failures.
type Envelope struct {
	MaxConcurrent int
	PerMinute     int
	PerHour       int
	RetryAttempts int
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
}

// DefaultLLMEnvelope is the default envelope for the llm pool.
func DefaultLLMEnvelope() Envelope {
	return Envelope{
		MaxConcurrent: 8,
		PerMinute:     500,
		PerHour:       10000,
		RetryAttempts: 5,
		MinBackoff:    time.Second,
		MaxBackoff:    60 * time.Second,
	}
}

// DefaultIntegrationEnvelope is the default envelope for the integration pool.
func DefaultIntegrationEnvelope() Envelope {
	return Envelope{
		MaxConcurrent: 3,
		PerMinute:     60,
		PerHour:       75,
		RetryAttempts: 3,
		MinBackoff:    2 * time.Second,
		MaxBackoff:    30 * time.Second,
	}
}

// PoolStats is a snapshot of one pool's counters.
type PoolStats struct {
	InFlight int
	Issued   int64
	Retried  int64
	Failed   int64
}

// Governor enforces per-pool concurrency, sliding-window rate limits, and
// retry budgets for all outbound API calls. It has no knowledge of what the
// governed operation does.
//
// Permit acquisition within a pool is FIFO with respect to arrival. Waits on
// a saturated rate window are uncoordinated: a request that wakes first may
// acquire first.
type Governor struct {
	pools  map[string]*pool
	logger *slog.Logger
}

type pool struct {
	name string
	env  Envelope
	sem  *semaphore.Weighted

	mu       sync.Mutex
	minute   []time.Time
	hour     []time.Time
	inFlight int
	issued   int64
	retried  int64
	failed   int64
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithPool registers or replaces a named pool.
func WithPool(name string, env Envelope) GovernorOption {
	return func(g *Governor) { g.register(name, env) }
}

// WithGovernorLogger sets the structured logger for retry and saturation
// events. Defaults to a no-op logger.
func WithGovernorLogger(l *slog.Logger) GovernorOption {
	return func(g *Governor) { g.logger = l }
}

// NewGovernor creates a Governor with the llm and integration pools
// registered at their defaults. Options adjust or add pools.
func NewGovernor(opts ...GovernorOption) *Governor {
	g := &Governor{pools: make(map[string]*pool)}
	g.register(PoolLLM, DefaultLLMEnvelope())
	g.register(PoolIntegration, DefaultIntegrationEnvelope())
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = nopLogger
	}
	return g
}

func (g *Governor) register(name string, env Envelope) {
	if env.MaxConcurrent <= 0 {
		env.MaxConcurrent = 1
	}
	if env.MinBackoff <= 0 {
		env.MinBackoff = time.Second
	}
	if env.MaxBackoff < env.MinBackoff {
		env.MaxBackoff = env.MinBackoff
	}
	g.pools[name] = &pool{
		name: name,
		env:  env,
		sem:  semaphore.NewWeighted(int64(env.MaxConcurrent)),
	}
}

// Execute runs op under the named pool's envelope.
func (g *Governor) Execute(ctx context.Context, name string, op func(context.Context) error) error {
	_, err := Govern(ctx, g, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Stats returns a snapshot of the named pool's counters.
func (g *Governor) Stats(name string) PoolStats {
	p, ok := g.pools[name]
	if !ok {
		return PoolStats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{InFlight: p.inFlight, Issued: p.issued, Retried: p.retried, Failed: p.failed}
}

// Govern acquires the pool's concurrency permit, waits for rate-window
// budget, and runs fn, retrying transient failures with exponential backoff
// between the envelope's min and max waits. Non-transient errors surface
// immediately. The permit is held across retries so a flapping upstream
// cannot amplify concurrency.
func Govern[T any](ctx context.Context, g *Governor, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p, ok := g.pools[name]
	if !ok {
		return zero, fmt.Errorf("governor: unknown pool %q", name)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer p.sem.Release(1)

	p.mu.Lock()
	p.inFlight++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	var last error
	for attempt := 0; attempt <= p.env.RetryAttempts; attempt++ {
		if err := p.waitForWindow(ctx); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			p.mu.Lock()
			p.issued++
			p.mu.Unlock()
			return result, nil
		}
		last = err

		if Category(err) != CatTransient || attempt == p.env.RetryAttempts {
			p.mu.Lock()
			p.failed++
			p.mu.Unlock()
			if attempt == p.env.RetryAttempts && Category(err) == CatTransient {
				g.logger.Error("all retry attempts exhausted",
					"pool", name,
					"attempts", p.env.RetryAttempts,
					"error", last)
			}
			return zero, err
		}

		p.mu.Lock()
		p.retried++
		p.mu.Unlock()
		g.logger.Warn("retrying transient error",
			"pool", name,
			"status", statusOf(err),
			"attempt", attempt+1,
			"max_attempts", p.env.RetryAttempts)

		delay := retryDelay(p.env, attempt, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, last
}

// waitForWindow blocks until both the minute and hour windows have budget,
// then records the request in both. Returns ctx.Err() if cancelled while
// waiting.
func (p *pool) waitForWindow(ctx context.Context) error {
	for {
		p.mu.Lock()
		now := time.Now()
		p.minute = pruneTimes(p.minute, now.Add(-time.Minute))
		p.hour = pruneTimes(p.hour, now.Add(-time.Hour))

		minuteOK := p.env.PerMinute <= 0 || len(p.minute) < p.env.PerMinute
		hourOK := p.env.PerHour <= 0 || len(p.hour) < p.env.PerHour

		if minuteOK && hourOK {
			if p.env.PerMinute > 0 {
				p.minute = append(p.minute, now)
			}
			if p.env.PerHour > 0 {
				p.hour = append(p.hour, now)
			}
			p.mu.Unlock()
			return nil
		}

		// Wait until the oldest entry in the saturated window expires.
		var wait time.Duration
		if !minuteOK && len(p.minute) > 0 {
			wait = p.minute[0].Add(time.Minute).Sub(now)
		}
		if !hourOK && len(p.hour) > 0 {
			w := p.hour[0].Add(time.Hour).Sub(now)
			if wait == 0 || w < wait {
				wait = w
			}
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		p.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// pruneTimes removes entries older than cutoff from a sorted time slice.
func pruneTimes(s []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(s) && s[i].Before(cutoff) {
		i++
	}
	return s[i:]
}

// retryDelay computes the delay before retry attempt i: exponential backoff
// capped at MaxBackoff, with the server's Retry-After value (if present) as
// a minimum.
func retryDelay(env Envelope, i int, err error) time.Duration {
	d := retryBackoff(env.MinBackoff, i)
	if d > env.MaxBackoff {
		d = env.MaxBackoff
	}
	if ra := retryAfterOf(err); ra > d {
		d = ra
	}
	return d
}

// retryBackoff returns the delay for retry i (0-indexed).
// Exponential: base * 2^i, plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

// nopLogger is a logger that discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
