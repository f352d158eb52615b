package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsRecordAndExpose(t *testing.T) {
	m := NewMetrics()
	m.IncUtterance(ResultAccepted)
	m.IncUtterance(ResultAccepted)
	m.IncUtterance(ResultEmbedError)
	m.AddLinks(3)
	m.AddLinks(0)
	m.AddSubscribers(2)
	m.AddSubscribers(-1)
	m.IncDelivery(true)
	m.IncDelivery(false)
	m.ObserveEmbed("fallback", nil, 2*time.Millisecond)
	m.ObserveEmbed("fallback", errors.New("x"), time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, line := range []string{
		`mindmesh_utterances_total{result="accepted"} 2`,
		`mindmesh_utterances_total{result="embed_error"} 1`,
		`mindmesh_links_created_total 3`,
		`mindmesh_subscribers 1`,
		`mindmesh_broadcast_deliveries_total{result="failed"} 1`,
		`mindmesh_embed_duration_seconds_count{provider="fallback",status="ok"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("exposition missing %q", line)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncUtterance(ResultAccepted)
	m.AddLinks(1)
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.IncDelivery(false)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil metrics handler: want 503 got %d", rec.Code)
	}
}
