package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func counterValue(t *testing.T, m *Metrics, name string, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label == "" {
				return metric.GetCounter().GetValue()
			}
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Claimed()
	m.Claimed()
	m.Sent("email")
	m.Skipped("skipped_booking_inactive")
	m.Retried()
	m.Failed()
	m.ClaimLost()
	m.Released(3)
	m.Released(0)
	m.Reply("affirmative")
	m.NoShow()

	cases := []struct {
		name  string
		label string
		want  float64
	}{
		{"cadence_jobs_claimed_total", "", 2},
		{"cadence_messages_sent_total", "email", 1},
		{"cadence_jobs_skipped_total", "skipped_booking_inactive", 1},
		{"cadence_jobs_retried_total", "", 1},
		{"cadence_jobs_failed_total", "", 1},
		{"cadence_claims_lost_total", "", 1},
		{"cadence_stale_claims_released_total", "", 3},
		{"cadence_replies_total", "affirmative", 1},
		{"cadence_no_shows_marked_total", "", 1},
	}
	for _, tc := range cases {
		if got := counterValue(t, m, tc.name, tc.label); got != tc.want {
			t.Errorf("%s{%s} = %v, want %v", tc.name, tc.label, got, tc.want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Claimed()
	m.Sent("sms")
	m.Skipped("x")
	m.Retried()
	m.Failed()
	m.ClaimLost()
	m.Released(1)
	m.Reply("unknown")
	m.NoShow()
	m.ObserveSweep(time.Now())
	if m.Registry() != nil {
		t.Error("nil metrics returned a registry")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Sent("sms")
	m.ObserveSweep(time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{`cadence_messages_sent_total{channel="sms"} 1`, "cadence_sweep_duration_seconds_count 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
