package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	riskgate "github.com/velkorin/riskgate"
)

type fakeSource struct {
	snapshot riskgate.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() riskgate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptySnapshot(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: riskgate.MetricsSnapshot{
			Counters:   map[riskgate.MetricID]uint64{},
			Histograms: map[riskgate.MetricID][]uint64{},
		},
	})

	if out := exp.Render(); out != "" {
		t.Fatalf("expected empty output for empty snapshot, got %q", out)
	}
}

func TestRenderCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: riskgate.MetricsSnapshot{
			Counters: map[riskgate.MetricID]uint64{
				riskgate.MetricLoginSuccess: 7,
			},
			Histograms: map[riskgate.MetricID][]uint64{
				riskgate.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "riskgate_login_success_total 7") {
		t.Fatalf("missing login success counter:\n%s", out)
	}
	if !strings.Contains(out, "riskgate_validate_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("missing first bucket:\n%s", out)
	}
	if !strings.Contains(out, "riskgate_validate_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("missing cumulative +Inf bucket:\n%s", out)
	}
	if !strings.Contains(out, "riskgate_audit_dropped_total 2") {
		t.Fatalf("missing audit dropped counter:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: riskgate.MetricsSnapshot{
			Counters:   map[riskgate.MetricID]uint64{riskgate.MetricLoginSuccess: 1},
			Histograms: map[riskgate.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: riskgate.MetricsSnapshot{
			Counters: map[riskgate.MetricID]uint64{
				riskgate.MetricLoginSuccess:         1000,
				riskgate.MetricLoginFailure:         40,
				riskgate.MetricCaptchaRequired:      25,
				riskgate.MetricSecondFactorRequired: 300,
				riskgate.MetricSecondFactorSuccess:  280,
				riskgate.MetricBindingCreated:       800,
				riskgate.MetricBindingRevoked:       20,
			},
			Histograms: map[riskgate.MetricID][]uint64{
				riskgate.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
