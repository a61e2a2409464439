package ratelimit

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		method, path string
		want         Classification
	}{
		{"POST", "/api/auth/login", ClassAuth},
		{"GET", "/api/auth/session", ClassAuth},
		{"GET", "/api/authors", ClassRead},
		{"POST", "/api/storage/files", ClassUpload},
		{"POST", "/api/documents/upload", ClassUpload},
		{"GET", "/api/uploads/123", ClassUpload},
		{"GET", "/api/dashboard/metrics", ClassDashboard},
		{"GET", "/api/search", ClassSearch},
		{"GET", "/api/beneficiaries/quicksearch", ClassSearch},
		{"POST", "/api/beneficiaries", ClassModify},
		{"PUT", "/api/beneficiaries/1", ClassModify},
		{"PATCH", "/api/users/1", ClassModify},
		{"DELETE", "/api/tasks/9", ClassModify},
		{"GET", "/api/tasks", ClassRead},
		{"HEAD", "/api/tasks", ClassRead},
		{"post", "/API/Auth/Logout", ClassAuth},
		// Order matters: auth wins over upload, upload over dashboard.
		{"POST", "/api/auth/upload", ClassAuth},
		{"GET", "/api/dashboard/upload-stats", ClassUpload},
	}
	for _, tt := range tests {
		if got := Classify(tt.method, tt.path); got != tt.want {
			t.Errorf("Classify(%s, %s) = %s, want %s", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestParseTimeRange(t *testing.T) {
	if got := ParseTimeRange("7d", Range24h); got != Range7d {
		t.Fatalf("got %s", got)
	}
	if got := ParseTimeRange("", Range24h); got != Range24h {
		t.Fatalf("got %s", got)
	}
	if got := ParseTimeRange("30d", Range24h, Range1h, Range24h, Range7d); got != Range24h {
		t.Fatalf("30d must fall back when not allowed, got %s", got)
	}
	if got := ParseTimeRange("1Y", Range1h); got != Range1h {
		t.Fatalf("got %s", got)
	}
}

func TestTimeRangeDuration(t *testing.T) {
	if Range1h.Duration() != time.Hour || Range30d.Duration() != MaxRetention {
		t.Fatal("unexpected durations")
	}
	if TimeRange("bogus").Duration() != 24*time.Hour {
		t.Fatal("unknown range should report 24h")
	}
}

func TestParseClassification(t *testing.T) {
	if c, ok := ParseClassification(" AUTH "); !ok || c != ClassAuth {
		t.Fatalf("got %s %v", c, ok)
	}
	if _, ok := ParseClassification("other"); ok {
		t.Fatal("unexpected parse")
	}
}
