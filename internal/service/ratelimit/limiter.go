package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	domain "github.com/dernekportal/portal-api/internal/domain/ratelimit"
)

const (
	// DefaultIdleTTL is how long an unused bucket is kept.
	DefaultIdleTTL = 10 * time.Minute
	// DefaultSweepInterval is how often idle buckets are dropped.
	DefaultSweepInterval = time.Minute
)

// Budget is a named request allowance per client over a window.
type Budget struct {
	Name     string
	Requests int
	Window   time.Duration
}

func (b Budget) limit() rate.Limit {
	if b.Requests <= 0 || b.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(b.Requests) / b.Window.Seconds())
}

// DefaultBudgets returns the built-in allowance for each classification.
func DefaultBudgets() map[domain.Classification]Budget {
	return map[domain.Classification]Budget{
		domain.ClassAuth:      {Name: "authRateLimit", Requests: 10, Window: 10 * time.Minute},
		domain.ClassUpload:    {Name: "uploadRateLimit", Requests: 10, Window: time.Minute},
		domain.ClassSearch:    {Name: "searchRateLimit", Requests: 30, Window: time.Minute},
		domain.ClassDashboard: {Name: "dashboardRateLimit", Requests: 60, Window: time.Minute},
		domain.ClassModify:    {Name: "dataModificationRateLimit", Requests: 50, Window: time.Minute},
		domain.ClassRead:      {Name: "readOnlyRateLimit", Requests: 200, Window: time.Minute},
	}
}

// Decision is the limiter's answer for one request.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Budget     string
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least 1 when denied.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// LimiterOptions configures a Limiter.
type LimiterOptions struct {
	Budgets       map[domain.Classification]Budget
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Logger        *slog.Logger
	Clock         func() time.Time
}

type bucketKey struct {
	class domain.Classification
	key   string
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter holds one token bucket per classification and client key.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[bucketKey]*bucket
	budgets  map[domain.Classification]Budget
	idleTTL  time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewLimiter constructs a Limiter. Classifications missing from Budgets use the defaults.
func NewLimiter(opts LimiterOptions) *Limiter {
	budgets := DefaultBudgets()
	for c, b := range opts.Budgets {
		if b.Name == "" {
			b.Name = budgets[c].Name
		}
		budgets[c] = b
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		buckets:  make(map[bucketKey]*bucket),
		budgets:  budgets,
		idleTTL:  ttl,
		interval: interval,
		logger:   logger.With("component", "ratelimit_limiter"),
		now:      now,
	}
}

// Budget returns the allowance applied to class.
func (l *Limiter) Budget(class domain.Classification) Budget {
	if b, ok := l.budgets[class]; ok {
		return b
	}
	return l.budgets[domain.ClassRead]
}

// Allow consumes one token from the bucket of class and key.
func (l *Limiter) Allow(class domain.Classification, key string) Decision {
	if key == "" {
		key = "unknown"
	}
	budget := l.Budget(class)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	k := bucketKey{class: class, key: key}
	b, ok := l.buckets[k]
	if !ok {
		burst := budget.Requests
		if burst <= 0 {
			burst = 1
		}
		b = &bucket{lim: rate.NewLimiter(budget.limit(), burst)}
		l.buckets[k] = b
	}
	b.seen = now

	if b.lim.AllowN(now, 1) {
		return Decision{Allowed: true, Budget: budget.Name}
	}
	r := b.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return Decision{Allowed: false, RetryAfter: delay, Budget: budget.Name}
}

// Sweep drops buckets idle for longer than the TTL and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("swept idle rate limit buckets", "count", n)
			}
		}
	}
}
