// Package ratelimit holds the types shared by the rate limiter, the violation
// monitor and the HTTP layer.
package ratelimit

import (
	"net/http"
	"strings"
	"time"
)

// Classification buckets an endpoint for budget selection and monitoring.
type Classification string

const (
	ClassAuth      Classification = "auth"
	ClassUpload    Classification = "upload"
	ClassSearch    Classification = "search"
	ClassDashboard Classification = "dashboard"
	ClassModify    Classification = "modify"
	ClassRead      Classification = "read"
)

// AllClassifications lists every classification.
func AllClassifications() []Classification {
	return []Classification{ClassAuth, ClassUpload, ClassSearch, ClassDashboard, ClassModify, ClassRead}
}

// ParseClassification parses a classification name case-insensitively.
func ParseClassification(s string) (Classification, bool) {
	v := Classification(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range AllClassifications() {
		if c == v {
			return c, true
		}
	}
	return "", false
}

// Classify derives the classification from the request path and method. Rules are checked
// in order and the first match wins.
func Classify(method, path string) Classification {
	lower := strings.ToLower(path)
	segments := strings.Split(strings.Trim(lower, "/"), "/")

	switch {
	case hasSegment(segments, "auth"):
		return ClassAuth
	case hasSegment(segments, "storage") || strings.Contains(lower, "upload"):
		return ClassUpload
	case hasSegment(segments, "dashboard"):
		return ClassDashboard
	case hasSegment(segments, "search") || strings.Contains(lower, "search"):
		return ClassSearch
	}

	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return ClassModify
	default:
		return ClassRead
	}
}

func hasSegment(segments []string, want string) bool {
	for _, s := range segments {
		if s == want {
			return true
		}
	}
	return false
}

// TimeRange is a rolling statistics window.
type TimeRange string

const (
	Range1h  TimeRange = "1h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

// MaxRetention is the longest supported window; older entries are evicted.
const MaxRetention = 30 * 24 * time.Hour

// Duration returns the window length. Unknown ranges report 24h.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case Range1h:
		return time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return MaxRetention
	default:
		return 24 * time.Hour
	}
}

// ParseTimeRange returns the range named s, or fallback when s is not one of allowed.
// With no allowed values given, every declared range is accepted.
func ParseTimeRange(s string, fallback TimeRange, allowed ...TimeRange) TimeRange {
	if len(allowed) == 0 {
		allowed = []TimeRange{Range1h, Range24h, Range7d, Range30d}
	}
	v := TimeRange(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range allowed {
		if v == a {
			return a
		}
	}
	return fallback
}

// Outcome records what the limiter did with the request.
type Outcome string

const (
	OutcomeBlocked  Outcome = "blocked"
	OutcomeReported Outcome = "reported"
)

// Violation is one monitor entry.
type Violation struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	ClientKey      string         `json:"ipAddress"`
	Classification Classification `json:"classification"`
	Endpoint       string         `json:"endpoint"`
	Method         string         `json:"method,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	Outcome        Outcome        `json:"outcome"`
	RetryAfter     int            `json:"retryAfter,omitempty"`
}
