package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewMetricsDisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.ObserveRun("succeeded", time.Second)
	m.ObserveAction("pacman", "install", true, time.Second)
	m.CountError("EXECUTION_FAILED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled handler status = %d, want 404", rec.Code)
	}
	if err := m.Serve(); err != nil {
		t.Errorf("Serve() = %v, want nil while disabled", err)
	}
}

func TestMetricsExposition(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "pacrec"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.ObserveRun("succeeded", 250*time.Millisecond)
	m.ObserveRun("failed", time.Second)
	m.ObserveAction("pacman", "install", true, 100*time.Millisecond)
	m.CountError("PACKAGE_NOT_FOUND")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("handler status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`pacrec_runs_total{status="succeeded"} 1`,
		`pacrec_runs_total{status="failed"} 1`,
		`pacrec_actions_total{backend="pacman",changed="true",operation="install"} 1`,
		`pacrec_errors_total{code="PACKAGE_NOT_FOUND"} 1`,
		"pacrec_run_duration_seconds_count",
		"pacrec_action_duration_seconds_count",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
