package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker(newTestBackend(t), "1.2.3")
	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var got HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "healthy" || got.Version != "1.2.3" {
		t.Errorf("health = %+v", got)
	}
	if got.Checks["products"] != "2 listed" || got.Checks["users"] != "1 registered" {
		t.Errorf("checks = %v", got.Checks)
	}
}

func TestHealthChecker_NoBackend(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthChecker(nil, "").Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServer_StartServesAndStops(t *testing.T) {
	srv := NewServer(newTestBackend(t), WithAddr("127.0.0.1:0"), WithLogger(testLogger()), WithVersion("test"))
	addr, err := srv.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	base := "http://" + addr.String()
	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get(base + "/health")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/products/")
	if err != nil {
		t.Fatalf("GET /products/ error = %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `storefront_mock_requests_total{method="GET",route="/products/",status="ok"} 1`) {
		t.Errorf("metrics output missing products request:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected Go runtime collector output")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestServer_ListenIsIdempotent(t *testing.T) {
	srv := NewServer(newTestBackend(t), WithAddr("127.0.0.1:0"), WithLogger(testLogger()))
	a1, err := srv.Listen()
	if err != nil {
		t.Fatal(err)
	}
	a2, err := srv.Listen()
	if err != nil {
		t.Fatal(err)
	}
	if a1.String() != a2.String() {
		t.Errorf("Listen() bound twice: %s then %s", a1, a2)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv := NewServer(newTestBackend(t), WithLogger(testLogger()))
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
