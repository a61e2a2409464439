package config

import "time"

// Budget bounds, applied by Sanitize.
const (
	minWindow       = time.Second
	maxWindow       = 24 * time.Hour
	maxRequests     = 100000
	maxMonitorSize  = 1000000
	defaultCapacity = 10000
)

// BudgetConfig is one allowance: Requests per Window per client.
type BudgetConfig struct {
	Requests int           `env:"REQUESTS"`
	Window   time.Duration `env:"WINDOW"`
}

func (b *BudgetConfig) sanitize(requests int, window time.Duration) {
	if b.Requests <= 0 {
		b.Requests = requests
	}
	b.Requests = min(b.Requests, maxRequests)
	if b.Window <= 0 {
		b.Window = window
	}
	b.Window = min(max(b.Window, minWindow), maxWindow)
}

// RateLimitConfig holds per-classification budgets.
type RateLimitConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`

	Auth      BudgetConfig `envPrefix:"AUTH_"`
	Upload    BudgetConfig `envPrefix:"UPLOAD_"`
	Search    BudgetConfig `envPrefix:"SEARCH_"`
	Dashboard BudgetConfig `envPrefix:"DASHBOARD_"`
	Modify    BudgetConfig `envPrefix:"MODIFY_"`
	Read      BudgetConfig `envPrefix:"READ_"`

	// IdleTTL drops buckets of clients not seen for this long.
	IdleTTL       time.Duration `env:"IDLE_TTL"       envDefault:"10m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

// Sanitize fills missing budgets with defaults and clamps them to sane bounds.
func (r *RateLimitConfig) Sanitize() {
	r.Auth.sanitize(10, 10*time.Minute)
	r.Upload.sanitize(10, time.Minute)
	r.Search.sanitize(30, time.Minute)
	r.Dashboard.sanitize(60, time.Minute)
	r.Modify.sanitize(50, time.Minute)
	r.Read.sanitize(200, time.Minute)
	if r.IdleTTL <= 0 {
		r.IdleTTL = 10 * time.Minute
	}
	if r.SweepInterval <= 0 {
		r.SweepInterval = time.Minute
	}
}

// MonitoringConfig controls the violation monitor and its endpoint.
type MonitoringConfig struct {
	Capacity int `env:"CAPACITY" envDefault:"10000"`
	// RequireSession guards GET /api/monitoring/rate-limit with settings:view.
	RequireSession bool `env:"REQUIRE_SESSION" envDefault:"false"`
	// TokenSecret signs reset tokens. Reset is refused while it is empty.
	TokenSecret string `env:"TOKEN_SECRET"`
}

// Sanitize clamps the monitor capacity.
func (m *MonitoringConfig) Sanitize() {
	if m.Capacity <= 0 {
		m.Capacity = defaultCapacity
	}
	m.Capacity = min(m.Capacity, maxMonitorSize)
}
