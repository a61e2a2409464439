// Package ratelimit holds the request limiter and the in-process violation monitor.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/oklog/ulid/v2"

	domain "github.com/dernekportal/portal-api/internal/domain/ratelimit"
)

// DefaultCapacity bounds the violation buffer.
const DefaultCapacity = 10000

const topClientsLimit = 10

// ViolationRecorder receives violation counts for metrics.
type ViolationRecorder interface {
	Violation(classification, outcome string)
}

// ViolationListener is notified after each violation is stored.
// Implementations must not block.
type ViolationListener interface {
	ViolationObserved(v domain.Violation)
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	Capacity  int
	Metrics   ViolationRecorder
	Listeners []ViolationListener
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Monitor is a bounded, time-ordered buffer of rate limit violations.
// It is safe for concurrent use; reads return copies.
type Monitor struct {
	mu        sync.Mutex
	entries   []domain.Violation
	capacity  int
	entropy   *ulid.MonotonicEntropy
	metrics   ViolationRecorder
	listeners []ViolationListener
	logger    *slog.Logger
	now       func() time.Time
}

// NewMonitor constructs a Monitor.
func NewMonitor(opts MonitorOptions) *Monitor {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		capacity: capacity,
		//nolint:gosec // ids only need to be unique and sortable
		entropy:   ulid.Monotonic(mathrand.New(mathrand.NewSource(now().UnixNano())), 0),
		metrics:   opts.Metrics,
		listeners: opts.Listeners,
		logger:    logger.With("component", "ratelimit_monitor"),
		now:       now,
	}
}

// ViolationInput is a violation before the monitor stamps it.
type ViolationInput struct {
	ClientKey      string                `json:"ipAddress"`
	Classification domain.Classification `json:"classification"`
	Endpoint       string                `json:"endpoint"`
	Method         string                `json:"method,omitempty"`
	UserAgent      string                `json:"userAgent,omitempty"`
	UserID         string                `json:"userId,omitempty"`
	Outcome        domain.Outcome        `json:"outcome,omitempty"`
	RetryAfter     int                   `json:"retryAfter,omitempty"`
}

// Validate checks a manually submitted violation.
func (in ViolationInput) Validate() error {
	if strings.TrimSpace(in.ClientKey) == "" {
		return fmt.Errorf("ipAddress is required")
	}
	if _, ok := domain.ParseClassification(string(in.Classification)); !ok {
		return fmt.Errorf("unknown classification %q", in.Classification)
	}
	if strings.TrimSpace(in.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

// RecordViolation appends a violation, evicting entries older than the longest window
// and the oldest entries beyond capacity.
func (m *Monitor) RecordViolation(in ViolationInput) domain.Violation {
	outcome := in.Outcome
	if outcome == "" {
		outcome = domain.OutcomeBlocked
	}

	m.mu.Lock()
	now := m.now().UTC()
	v := domain.Violation{
		ID:             ulid.MustNew(ulid.Timestamp(now), m.entropy).String(),
		Timestamp:      now,
		ClientKey:      in.ClientKey,
		Classification: in.Classification,
		Endpoint:       in.Endpoint,
		Method:         in.Method,
		UserAgent:      in.UserAgent,
		UserID:         in.UserID,
		Outcome:        outcome,
		RetryAfter:     in.RetryAfter,
	}
	m.evictLocked(now)
	if len(m.entries) >= m.capacity {
		drop := len(m.entries) - m.capacity + 1
		m.entries = append(m.entries[:0], m.entries[drop:]...)
	}
	m.entries = append(m.entries, v)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Violation(string(v.Classification), string(v.Outcome))
	}
	for _, l := range m.listeners {
		l.ViolationObserved(v)
	}
	m.logger.Warn("rate limit violation",
		"client", v.ClientKey, "classification", v.Classification, "endpoint", v.Endpoint, "outcome", v.Outcome)
	return v
}

func (m *Monitor) evictLocked(now time.Time) {
	cutoff := now.Add(-domain.MaxRetention)
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Timestamp.After(cutoff) })
	if i > 0 {
		m.entries = append(m.entries[:0], m.entries[i:]...)
	}
}

// window returns a copy of the entries inside r, oldest first.
func (m *Monitor) window(r domain.TimeRange) ([]domain.Violation, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	since := m.now().UTC().Add(-r.Duration())
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Timestamp.After(since) })
	return append([]domain.Violation(nil), m.entries[i:]...), since
}

// ClientCount is one row of the top-clients table.
type ClientCount struct {
	ClientKey string `json:"ip"`
	Count     int    `json:"count"`
}

// Stats aggregates violations inside a window.
type Stats struct {
	TimeRange        domain.TimeRange              `json:"timeRange"`
	Since            time.Time                     `json:"since"`
	TotalViolations  int                           `json:"totalViolations"`
	ByClassification map[domain.Classification]int `json:"violationsByType"`
	ByEndpoint       map[string]int                `json:"violationsByEndpoint"`
	TopClients       []ClientCount                 `json:"topViolatingIPs"`
	UniqueClients    int                           `json:"uniqueIPs"`
}

// GetStats aggregates the violations recorded within r.
func (m *Monitor) GetStats(r domain.TimeRange) Stats {
	entries, since := m.window(r)
	st := Stats{
		TimeRange:        r,
		Since:            since,
		TotalViolations:  len(entries),
		ByClassification: make(map[domain.Classification]int),
		ByEndpoint:       make(map[string]int),
	}
	byClient := make(map[string]int)
	for _, v := range entries {
		st.ByClassification[v.Classification]++
		st.ByEndpoint[v.Endpoint]++
		byClient[v.ClientKey]++
	}
	st.UniqueClients = len(byClient)
	st.TopClients = topClients(byClient, topClientsLimit)
	return st
}

func topClients(counts map[string]int, n int) []ClientCount {
	out := make([]ClientCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, ClientCount{ClientKey: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ClientKey < out[j].ClientKey
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// GetRecentViolations returns up to limit violations, newest first.
func (m *Monitor) GetRecentViolations(limit int) []domain.Violation {
	if limit <= 0 {
		return []domain.Violation{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]domain.Violation, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out
}

// IPStats aggregates one client's violations inside a window.
type IPStats struct {
	TotalViolations  int                           `json:"totalViolations"`
	ByClassification map[domain.Classification]int `json:"violationsByType"`
	ByEndpoint       map[string]int                `json:"violationsByEndpoint"`
	FirstSeen        *time.Time                    `json:"firstViolation,omitempty"`
	LastSeen         *time.Time                    `json:"lastViolation,omitempty"`
}

// GetIPStats aggregates the violations of clientKey within r.
func (m *Monitor) GetIPStats(clientKey string, r domain.TimeRange) IPStats {
	entries, _ := m.window(r)
	st := IPStats{
		ByClassification: make(map[domain.Classification]int),
		ByEndpoint:       make(map[string]int),
	}
	for _, v := range entries {
		if v.ClientKey != clientKey {
			continue
		}
		st.TotalViolations++
		st.ByClassification[v.Classification]++
		st.ByEndpoint[v.Endpoint]++
		ts := v.Timestamp
		if st.FirstSeen == nil {
			st.FirstSeen = &ts
		}
		st.LastSeen = &ts
	}
	return st
}

// Export is the snapshot written by ExportData.
type Export struct {
	ExportedAt time.Time                  `json:"exportedAt"`
	Capacity   int                        `json:"capacity"`
	Violations []domain.Violation         `json:"violations"`
	Stats      map[domain.TimeRange]Stats `json:"stats"`
}

// Snapshot returns the full buffer with stats for every window.
func (m *Monitor) Snapshot() Export {
	all, _ := m.window(domain.Range30d)
	stats := make(map[domain.TimeRange]Stats, 4)
	for _, r := range []domain.TimeRange{domain.Range1h, domain.Range24h, domain.Range7d, domain.Range30d} {
		stats[r] = m.GetStats(r)
	}
	return Export{ExportedAt: m.now().UTC(), Capacity: m.capacity, Violations: all, Stats: stats}
}

// ExportData serializes Snapshot as indented JSON.
func (m *Monitor) ExportData() ([]byte, error) {
	b, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return b, nil
}

// ExportQuery applies a JMESPath expression to the export snapshot, e.g.
// "violations[?classification=='auth'].ipAddress".
func (m *Monitor) ExportQuery(expr string) ([]byte, error) {
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	raw, err := json.Marshal(m.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	res, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate query: %w", err)
	}
	return json.MarshalIndent(res, "", "  ")
}

// Len reports the number of buffered violations.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Reset drops every buffered violation.
func (m *Monitor) Reset() {
	m.mu.Lock()
	n := len(m.entries)
	m.entries = nil
	m.mu.Unlock()
	m.logger.Info("rate limit monitor reset", "dropped", n)
}
