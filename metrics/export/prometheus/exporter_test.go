package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logauth "github.com/origbo/logware-auth"
)

type fakeSource struct {
	snapshot logauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() logauth.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                     { return f.dropped }

func testSource() *fakeSource {
	return &fakeSource{
		snapshot: logauth.MetricsSnapshot{
			Counters: map[logauth.MetricID]uint64{
				logauth.MetricLoginSuccess:         42,
				logauth.MetricLoginFailure:         7,
				logauth.MetricRefreshReplayBlocked: 3,
			},
			Histograms: map[logauth.MetricID][]uint64{
				logauth.MetricLoginLatency: {5, 2, 0, 0, 1, 0, 0, 0},
			},
		},
		dropped: 9,
	}
}

func TestRenderExposition(t *testing.T) {
	exporter := NewExporterFromSource(testSource())
	out := exporter.Render()

	for _, want := range []string{
		"# TYPE logauth_login_success_total counter",
		"logauth_login_success_total 42",
		"logauth_login_failure_total 7",
		"logauth_refresh_replay_blocked_total 3",
		"# TYPE logauth_login_latency_seconds histogram",
		"logauth_login_latency_seconds_bucket{le=\"0.005\"} 5",
		"logauth_login_latency_seconds_bucket{le=\"0.01\"} 7",
		"logauth_login_latency_seconds_bucket{le=\"+Inf\"} 8",
		"logauth_login_latency_seconds_count 8",
		"logauth_audit_dropped_total 9",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEmptySource(t *testing.T) {
	exporter := NewExporterFromSource(&fakeSource{
		snapshot: logauth.MetricsSnapshot{
			Counters:   map[logauth.MetricID]uint64{},
			Histograms: map[logauth.MetricID][]uint64{},
		},
	})
	if out := exporter.Render(); out != "" {
		t.Fatalf("expected empty exposition, got:\n%s", out)
	}

	var nilExporter *Exporter
	if out := nilExporter.Render(); out != "" {
		t.Fatal("nil exporter must render nothing")
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	exporter := NewExporterFromSource(testSource())

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "logauth_login_success_total 42") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}
