package telemetry

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestConfig_Defaults(t *testing.T) {
	p := NewProvider(Config{})

	if p.cfg.ServiceName != "clinicdesk-server" {
		t.Fatalf("expected default ServiceName='clinicdesk-server', got %q", p.cfg.ServiceName)
	}
	if p.cfg.ServiceVersion != "0.0.0" {
		t.Fatalf("expected default ServiceVersion='0.0.0', got %q", p.cfg.ServiceVersion)
	}
	if p.cfg.Environment != "development" {
		t.Fatalf("expected default Environment='development', got %q", p.cfg.Environment)
	}
	if !p.cfg.metricsOn() {
		t.Fatal("expected MetricsEnabled=true by default")
	}
}

func TestConfig_CustomValues(t *testing.T) {
	p := NewProvider(Config{
		ServiceName:    "my-desk",
		ServiceVersion: "1.2.3",
		Environment:    "production",
		MetricsEnabled: BoolPtr(true),
	})

	res := p.Resource()
	if res["service.name"] != "my-desk" {
		t.Fatalf("expected service.name='my-desk', got %q", res["service.name"])
	}
	if res["service.version"] != "1.2.3" {
		t.Fatalf("expected service.version='1.2.3', got %q", res["service.version"])
	}
	if res["deployment.environment"] != "production" {
		t.Fatalf("expected deployment.environment='production', got %q", res["deployment.environment"])
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	p := NewProvider(Config{})

	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/appointments/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/appointments/123", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	h := p.GetHistogram("http.server.request.duration")
	if h == nil {
		t.Fatal("expected duration histogram to exist")
	}
	if h.Count() != 1 {
		t.Fatalf("expected 1 observation, got %d", h.Count())
	}

	// Labeled by route pattern, not the concrete path
	key := LabelsKey(http.MethodGet, "/appointments/:id", "200")
	lh := p.GetLabeledHistogram("http.server.request.duration", key)
	if lh == nil {
		t.Fatalf("expected labeled histogram for key %q", key)
	}
	if lh.Count() != 1 {
		t.Fatalf("expected 1 labeled observation, got %d", lh.Count())
	}
}

func TestMetricsMiddleware_DisabledIsPassthrough(t *testing.T) {
	p := NewProvider(Config{MetricsEnabled: BoolPtr(false)})

	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if h := p.GetHistogram("http.server.request.duration"); h != nil {
		t.Fatal("expected no histogram when metrics disabled")
	}
}

func TestOperationCounter(t *testing.T) {
	p := NewProvider(Config{})

	p.OperationCounter("appointment", "book")
	p.OperationCounter("appointment", "book")
	p.OperationCounter("queue", "call_next")

	if got := p.GetCounter("desk.operation.count", "appointment", "book"); got != 2 {
		t.Fatalf("expected 2 book operations, got %d", got)
	}
	if got := p.GetCounter("desk.operation.count", "queue", "call_next"); got != 1 {
		t.Fatalf("expected 1 call_next operation, got %d", got)
	}
	if got := p.GetCounter("desk.operation.count", "queue", "complete"); got != 0 {
		t.Fatalf("expected 0 complete operations, got %d", got)
	}
}

func TestOperationCounter_Concurrent(t *testing.T) {
	p := NewProvider(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.OperationCounter("checkin", "admit")
		}()
	}
	wg.Wait()

	if got := p.GetCounter("desk.operation.count", "checkin", "admit"); got != 50 {
		t.Fatalf("expected 50 admissions, got %d", got)
	}
}

func TestHealthMetrics_Gauges(t *testing.T) {
	p := NewProvider(Config{})
	hm := p.HealthMetrics()

	hm.SetDBPoolActive(3)
	hm.SetDBPoolIdle(7)
	hm.SetQueueWaiting(12)

	if got := p.GetGauge("db.pool.active_connections"); got != 3 {
		t.Fatalf("expected 3 active connections, got %d", got)
	}
	if got := p.GetGauge("db.pool.idle_connections"); got != 7 {
		t.Fatalf("expected 7 idle connections, got %d", got)
	}
	if got := p.GetGauge("queue.waiting.patients"); got != 12 {
		t.Fatalf("expected 12 waiting patients, got %d", got)
	}
}

func TestPrometheusHandler_Exposition(t *testing.T) {
	p := NewProvider(Config{})

	p.OperationCounter("appointment", "book")
	p.HealthMetrics().SetQueueWaiting(4)

	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/queue", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", p.PrometheusHandler())

	// Generate one measured request first
	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()

	for _, want := range []string{
		"# TYPE http_server_request_duration_seconds histogram",
		`http_server_request_duration_seconds_bucket{method="GET",route="/queue",status_code="200",le="+Inf"} 1`,
		"# TYPE desk_operation_count counter",
		`desk_operation_count{entity_type="appointment",operation="book"} 1`,
		"# TYPE queue_waiting_patients gauge",
		"queue_waiting_patients 4",
		"# TYPE db_pool_active_connections gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q\nbody:\n%s", want, body)
		}
	}
}

func TestHistogram_BucketsAndSum(t *testing.T) {
	h := newHistogram([]float64{0.1, 0.5, 1.0})

	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.7)
	h.Observe(5.0) // above all boundaries, +Inf only

	if h.Count() != 4 {
		t.Fatalf("expected count 4, got %d", h.Count())
	}
	if diff := h.Sum() - 6.05; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected sum 6.05, got %g", h.Sum())
	}

	cum := h.cumulativeBuckets()
	want := []int64{1, 2, 3}
	for i, w := range want {
		if cum[i] != w {
			t.Fatalf("bucket %d: expected cumulative %d, got %d", i, w, cum[i])
		}
	}
}

func TestHistogram_ConcurrentObserve(t *testing.T) {
	h := newHistogram(defaultDurationBuckets)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Observe(float64(i%10) / 100.0)
		}(i)
	}
	wg.Wait()

	if h.Count() != 100 {
		t.Fatalf("expected 100 observations, got %d", h.Count())
	}
}

func TestActiveRequestsGauge(t *testing.T) {
	p := NewProvider(Config{})

	blocker := make(chan struct{})
	started := make(chan struct{})

	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/slow", func(c echo.Context) error {
		close(started)
		<-blocker
		return c.String(http.StatusOK, "ok")
	})

	go func() {
		req := httptest.NewRequest(http.MethodGet, "/slow", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}()

	<-started
	if got := p.GetGauge("http.server.active_requests"); got != 1 {
		t.Errorf("expected 1 active request, got %d", got)
	}
	close(blocker)
}

func TestLabelsKey(t *testing.T) {
	got := LabelsKey("POST", "/checkins", "201")
	want := fmt.Sprintf("%s|%s|%s", "POST", "/checkins", "201")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
