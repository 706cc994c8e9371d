package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.Inc(RoomJoin)
	m.Inc(RoomJoin)
	m.Inc(DropReasonRoomMismatch)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "# TYPE callwave_signaling_events_total counter") {
		t.Fatalf("missing TYPE line:\n%s", body)
	}
	if !strings.Contains(body, `callwave_signaling_events_total{event="room_join"} 2`) {
		t.Fatalf("missing room_join counter:\n%s", body)
	}
	if !strings.Contains(body, `callwave_signaling_events_total{event="room_mismatch"} 1`) {
		t.Fatalf("missing room_mismatch counter:\n%s", body)
	}
}

func TestPrometheusHandler_EscapesLabelValues(t *testing.T) {
	m := New()
	m.Inc(`weird"event\name`)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `event="weird\"event\\name"`) {
		t.Fatalf("label value not escaped:\n%s", rec.Body.String())
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 500 {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
}
