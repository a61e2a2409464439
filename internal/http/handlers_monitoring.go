package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
	domain "github.com/dernekportal/portal-api/internal/domain/ratelimit"
	"github.com/dernekportal/portal-api/internal/service"
	"github.com/dernekportal/portal-api/internal/service/ratelimit"
)

const (
	defaultViolationsLimit = 50
	maxViolationsLimit     = 1000
	overviewRecentLimit    = 10
)

var availableMonitoringActions = []string{
	"stats - Get overall statistics",
	"violations - Get recent violations",
	"ip-stats - Get IP-specific statistics",
	"export - Export all monitoring data",
	"reset - Reset monitoring data (admin only)",
}

// MonitorTokenVerifier checks bearer tokens for privileged monitoring actions.
type MonitorTokenVerifier interface {
	Enabled() bool
	Verify(token, scope string) (*service.MonitorClaims, error)
}

// MonitoringHandlers serves the rate limit monitoring endpoint.
type MonitoringHandlers struct {
	Monitor *ratelimit.Monitor
	Tokens  MonitorTokenVerifier
	Logger  *slog.Logger
	Now     func() time.Time
}

func (h *MonitoringHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *MonitoringHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// Get dispatches on the action query parameter.
// GET /api/monitoring/rate-limit?action=stats|violations|ip-stats|export|reset.
func (h *MonitoringHandlers) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch q.Get("action") {
	case "stats":
		tr := domain.ParseTimeRange(q.Get("timeRange"), domain.Range24h)
		WriteSuccess(w, http.StatusOK, h.Monitor.GetStats(tr))
	case "violations":
		limit, _ := ParseLimitOffset(r, defaultViolationsLimit, maxViolationsLimit)
		violations := h.Monitor.GetRecentViolations(limit)
		WriteSuccess(w, http.StatusOK, map[string]any{"violations": violations, "count": len(violations)})
	case "ip-stats":
		h.ipStats(w, r)
	case "export":
		h.export(w, r)
	case "reset":
		h.reset(w, r)
	default:
		WriteSuccess(w, http.StatusOK, map[string]any{
			"stats":            h.Monitor.GetStats(domain.Range24h),
			"recentViolations": h.Monitor.GetRecentViolations(overviewRecentLimit),
			"availableActions": availableMonitoringActions,
		})
	}
}

func (h *MonitoringHandlers) ipStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ip := strings.TrimSpace(q.Get("ip"))
	if ip == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: CodeBadRequest,
			Err:     errors.New("IP address required for ip-stats action"),
		})
		return
	}
	tr := domain.ParseTimeRange(q.Get("timeRange"), domain.Range24h, domain.Range1h, domain.Range24h, domain.Range7d)
	WriteSuccess(w, http.StatusOK, map[string]any{
		"ip":        ip,
		"timeRange": tr,
		"stats":     h.Monitor.GetIPStats(ip, tr),
	})
}

func (h *MonitoringHandlers) export(w http.ResponseWriter, r *http.Request) {
	var (
		body []byte
		err  error
	)
	if expr := strings.TrimSpace(r.URL.Query().Get("query")); expr != "" {
		body, err = h.Monitor.ExportQuery(expr)
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeBadRequest, Err: errors.New("invalid export query")})
			return
		}
	} else {
		body, err = h.Monitor.ExportData()
		if err != nil {
			h.logger().ErrorContext(r.Context(), "export monitoring data", "error", err)
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err})
			return
		}
	}
	writeAttachment(w, fmt.Sprintf("rate-limit-export-%s.json", h.now().Format(time.DateOnly)), body)
}

func (h *MonitoringHandlers) reset(w http.ResponseWriter, r *http.Request) {
	if h.Tokens == nil || !h.Tokens.Enabled() {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: CodeUnavailable,
			Err:     errors.New("monitoring reset is not configured"),
		})
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		WriteAuthError(w, domainauth.Unauthorized("admin token required"))
		return
	}
	claims, err := h.Tokens.Verify(token, service.ScopeMonitoringReset)
	if err != nil {
		h.logger().WarnContext(r.Context(), "monitoring reset rejected", "error", err)
		WriteAuthError(w, domainauth.Unauthorized("admin token required"))
		return
	}
	h.Monitor.Reset()
	h.logger().InfoContext(r.Context(), "monitoring data reset", "subject", claims.Subject)
	WriteSuccess(w, http.StatusOK, map[string]string{"message": "Rate limit monitoring data reset successfully"})
}

type monitoringPostRequest struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Post handles record-violation and bulk-export.
// POST /api/monitoring/rate-limit.
func (h *MonitoringHandlers) Post(w http.ResponseWriter, r *http.Request) {
	var req monitoringPostRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	switch req.Action {
	case "record-violation":
		var in ratelimit.ViolationInput
		dec := json.NewDecoder(bytes.NewReader(req.Data))
		dec.DisallowUnknownFields()
		if len(req.Data) == 0 || dec.Decode(&in) != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeInvalidJSON, Err: errors.New("invalid violation data")})
			return
		}
		if err := in.Validate(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeValidation, Err: err})
			return
		}
		if in.Outcome == "" {
			in.Outcome = domain.OutcomeReported
		}
		v := h.Monitor.RecordViolation(in)
		WriteSuccess(w, http.StatusCreated, map[string]any{"message": "Violation recorded successfully", "violation": v})
	case "bulk-export":
		body, err := h.Monitor.ExportData()
		if err != nil {
			h.logger().ErrorContext(r.Context(), "bulk export monitoring data", "error", err)
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: CodeInternal, Err: err})
			return
		}
		writeAttachment(w, fmt.Sprintf("bulk-rate-limit-data-%s.json", h.now().Format("20060102T150405Z")), body)
	default:
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: CodeBadRequest,
			Err:     errors.New("invalid POST action; available: record-violation, bulk-export"),
		})
	}
}

func writeAttachment(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
