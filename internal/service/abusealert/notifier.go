// Package abusealert escalates clients that repeatedly trip rate limits to
// external notification sinks.
package abusealert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domain "github.com/dernekportal/portal-api/internal/domain/ratelimit"
	"github.com/dernekportal/portal-api/internal/observability/notify"
)

const (
	defaultThreshold = 20
	defaultWindow    = 5 * time.Minute
	defaultCooldown  = 30 * time.Minute
	defaultTimeout   = 10 * time.Second
	pruneEvery       = 256
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the abuse alert service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Threshold is the number of violations by one client and class inside
	// Window that triggers an alert.
	Threshold int
	Window    time.Duration
	// Cooldown suppresses repeat alerts for the same client and class.
	Cooldown time.Duration
	// Timeout bounds a single fan-out.
	Timeout time.Duration
	Clock   func() time.Time
}

type trackKey struct {
	client string
	class  domain.Classification
}

type track struct {
	hits      []time.Time
	lastAlert time.Time
}

// Service counts violations per client and dispatches alerts to all registered sinks.
type Service struct {
	logger    *slog.Logger
	sinks     []SinkRegistration
	threshold int
	window    time.Duration
	cooldown  time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	tracks   map[trackKey]*track
	observed int

	inflight sync.WaitGroup
}

// NewService constructs an abuse alert service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	s := &Service{
		logger:    logger.With("component", "abuse_alert"),
		sinks:     sinks,
		threshold: opts.Threshold,
		window:    opts.Window,
		cooldown:  opts.Cooldown,
		timeout:   opts.Timeout,
		now:       opts.Clock,
		tracks:    make(map[trackKey]*track),
	}
	if s.threshold <= 0 {
		s.threshold = defaultThreshold
	}
	if s.window <= 0 {
		s.window = defaultWindow
	}
	if s.cooldown <= 0 {
		s.cooldown = defaultCooldown
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Enabled reports whether the service has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

// ViolationObserved counts a stored violation and fires an alert in the
// background once the client crosses the threshold.
func (s *Service) ViolationObserved(v domain.Violation) {
	if !s.Enabled() {
		return
	}
	payload, fire := s.observe(v)
	if !fire {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.Notify(ctx, payload)
	}()
}

func (s *Service) observe(v domain.Violation) (notify.AbuseAlertPayload, bool) {
	now := s.now()
	cutoff := now.Add(-s.window)
	key := trackKey{client: v.ClientKey, class: v.Classification}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.observed++
	if s.observed%pruneEvery == 0 {
		s.pruneLocked(cutoff)
	}

	t, ok := s.tracks[key]
	if !ok {
		t = &track{}
		s.tracks[key] = t
	}
	t.hits = append(dropBefore(t.hits, cutoff), now)

	if len(t.hits) < s.threshold {
		return notify.AbuseAlertPayload{}, false
	}
	if !t.lastAlert.IsZero() && now.Sub(t.lastAlert) < s.cooldown {
		return notify.AbuseAlertPayload{}, false
	}
	t.lastAlert = now

	severity := notify.SeverityWarning
	if v.Classification == domain.ClassAuth {
		severity = notify.SeverityCritical
	}
	meta := map[string]string{}
	if v.UserAgent != "" {
		meta["user_agent"] = v.UserAgent
	}
	if v.UserID != "" {
		meta["user_id"] = v.UserID
	}
	return notify.AbuseAlertPayload{
		ClientKey:      v.ClientKey,
		Classification: string(v.Classification),
		Endpoint:       v.Endpoint,
		Violations:     len(t.hits),
		Window:         s.window,
		Severity:       severity,
		OccurredAt:     now,
		Metadata:       meta,
	}, true
}

func (s *Service) pruneLocked(cutoff time.Time) {
	for key, t := range s.tracks {
		t.hits = dropBefore(t.hits, cutoff)
		if len(t.hits) == 0 && (t.lastAlert.IsZero() || t.lastAlert.Before(cutoff.Add(-s.cooldown))) {
			delete(s.tracks, key)
		}
	}
}

func dropBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// Notify fans the payload out to all sinks and waits for them.
func (s *Service) Notify(ctx context.Context, payload notify.AbuseAlertPayload) {
	if payload.Severity == "" {
		payload.Severity = notify.SeverityWarning
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendAbuseAlert(ctx, payload); err != nil {
				s.logger.Error("abuse alert delivery error",
					"sink", entry.Name,
					"client", payload.ClientKey,
					"classification", payload.Classification,
					"error", err,
				)
				return
			}
			s.logger.Info("abuse alert delivered",
				"sink", entry.Name, "client", payload.ClientKey, "violations", payload.Violations)
		}()
	}
	wg.Wait()
}

// Wait blocks until background deliveries finish.
func (s *Service) Wait() {
	s.inflight.Wait()
}
