package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devskill-org/menu-co2e/menu"
	"github.com/gorilla/websocket"
)

// newTestWebServer returns a dashboard over a pipeline whose cache holds a
// three-day dataset. Pass empty=true to leave the cache empty.
func newTestWebServer(t *testing.T, empty bool) (*WebServer, *httptest.Server) {
	t.Helper()

	p := newTestPipeline(t, testConfig(t, "http://localhost"))

	if !empty {
		dataset := menu.NewDataset(
			[]menu.Day{
				menu.NewDay([]string{"a"}, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), menu.Survey{Cornflakes: 0.1, Lingon: 0.5}),
				menu.NewDay([]string{"b"}, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), menu.Survey{Cornflakes: 0.3, Lingon: 0.4}),
				menu.NewDay([]string{"a", "b"}, time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC), menu.Survey{Cornflakes: 0.2, Lingon: 0.45}),
			},
			[]menu.Dish{
				menu.NewDish("Pasta", 0.2, "a"),
				menu.NewDish("Curry", 1.0, "b"),
			},
		)
		if err := dataset.Save(context.Background(), p.store); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}

	ws := NewWebServer(p, 8080)
	ws.Refresh(context.Background())

	srv := httptest.NewServer(ws.Handler())
	t.Cleanup(srv.Close)
	return ws, srv
}

func TestNewWebServerDisabled(t *testing.T) {
	if ws := NewWebServer(&Pipeline{}, 0); ws != nil {
		t.Error("Expected nil server for port 0")
	}

	var ws *WebServer
	if err := ws.Start(context.Background()); err != nil {
		t.Errorf("Start on disabled server returned error: %v", err)
	}
	if err := ws.Stop(context.Background()); err != nil {
		t.Errorf("Stop on disabled server returned error: %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	_, srv := newTestWebServer(t, false)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", health.Status)
	}
	if health.Dataset.Days != 3 || health.Dataset.Dishes != 2 {
		t.Errorf("Expected 3 days and 2 dishes, got %+v", health.Dataset)
	}
	if health.Dataset.CacheBackend != "file" {
		t.Errorf("Expected file backend, got %s", health.Dataset.CacheBackend)
	}
}

func TestHealthHandlerWithoutCache(t *testing.T) {
	_, srv := newTestWebServer(t, true)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "unhealthy" || health.Dataset.Error == "" {
		t.Errorf("Expected unhealthy with error, got %+v", health)
	}
}

func TestDatasetHandler(t *testing.T) {
	_, srv := newTestWebServer(t, false)

	resp, err := http.Get(srv.URL + "/api/dataset")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var dataset DatasetResponse
	if err := json.NewDecoder(resp.Body).Decode(&dataset); err != nil {
		t.Fatalf("Failed to decode dataset: %v", err)
	}
	if len(dataset.Days) != 3 {
		t.Fatalf("Expected 3 days, got %d", len(dataset.Days))
	}
	if dataset.Days[0].Date != "2023-01-02" {
		t.Errorf("Expected first day 2023-01-02, got %s", dataset.Days[0].Date)
	}
	if dataset.Dishes["b"].Title != "Curry" {
		t.Errorf("Expected dish b to be Curry, got %+v", dataset.Dishes["b"])
	}
}

func TestReportHandler(t *testing.T) {
	_, srv := newTestWebServer(t, false)

	resp, err := http.Get(srv.URL + "/api/report")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var summary struct {
		Days          int `json:"days"`
		CornflakesFit *struct {
			Slope float64 `json:"slope"`
		} `json:"cornflakes_fit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if summary.Days != 3 {
		t.Errorf("Expected 3 days, got %d", summary.Days)
	}
	if summary.CornflakesFit == nil || summary.CornflakesFit.Slope <= 0 {
		t.Errorf("Expected rising cornflakes trend, got %+v", summary.CornflakesFit)
	}
}

func TestPlotHandler(t *testing.T) {
	_, srv := newTestWebServer(t, false)

	resp, err := http.Get(srv.URL + "/plot.png")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Error("Expected PNG body")
	}
}

func TestHandlersUnavailableWithoutCache(t *testing.T) {
	_, srv := newTestWebServer(t, true)

	for _, path := range []string{"/api/dataset", "/api/report", "/plot.png"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + path)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("Expected 503, got %d", resp.StatusCode)
			}
		})
	}
}

func TestHandlersRejectPost(t *testing.T) {
	_, srv := newTestWebServer(t, false)

	for _, path := range []string{"/api/health", "/api/dataset", "/api/report", "/plot.png"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader("{}"))
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusMethodNotAllowed {
				t.Errorf("Expected 405, got %d", resp.StatusCode)
			}
		})
	}
}

func TestWebSocketUpdates(t *testing.T) {
	ws, srv := newTestWebServer(t, false)

	go ws.handleBroadcasts()
	t.Cleanup(func() { close(ws.done) })

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	readUpdate := func() map[string]any {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		return msg
	}

	initial := readUpdate()
	if initial["type"] != "report_update" {
		t.Errorf("Expected report_update, got %v", initial["type"])
	}
	if _, ok := initial["report"].(map[string]any); !ok {
		t.Errorf("Expected report object, got %v", initial["report"])
	}

	// registration follows the initial message
	deadline := time.Now().Add(5 * time.Second)
	for ws.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	ws.broadcastSummary()

	pushed := readUpdate()
	if pushed["type"] != "report_update" {
		t.Errorf("Expected pushed report_update, got %v", pushed["type"])
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 1*time.Minute + 1500*time.Millisecond, "2h1m2s"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.in); got != tt.want {
			t.Errorf("formatUptime(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestHealthHandlerReportFailure(t *testing.T) {
	p := newTestPipeline(t, testConfig(t, "http://localhost"))

	// the cache loads, but the only day references a dish that is not there
	dataset := menu.NewDataset(
		[]menu.Day{menu.NewDay([]string{"missing"}, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), menu.Survey{})},
		[]menu.Dish{menu.NewDish("Pasta", 0.2, "a")},
	)
	if err := dataset.Save(context.Background(), p.store); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	ws := NewWebServer(p, 8080)
	ws.Refresh(context.Background())

	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "unhealthy" {
		t.Errorf("Expected unhealthy, got %s", health.Status)
	}
	if !health.Dataset.Loaded {
		t.Error("Expected dataset to be reported as loaded")
	}
	if !strings.Contains(health.Dataset.Error, "unknown dish") {
		t.Errorf("Expected unknown dish error, got %q", health.Dataset.Error)
	}
}

func TestWebSocketConnectDuringBroadcast(t *testing.T) {
	ws, srv := newTestWebServer(t, false)

	go ws.handleBroadcasts()
	t.Cleanup(func() { close(ws.done) })

	stop := make(chan struct{})
	var broadcaster sync.WaitGroup
	broadcaster.Add(1)
	go func() {
		defer broadcaster.Done()
		for {
			select {
			case <-stop:
				return
			default:
				ws.broadcastSummary()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	var clients sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		clients.Add(1)
		go func() {
			defer clients.Done()

			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				errs <- err
				return
			}
			if msg["type"] != "report_update" {
				errs <- fmt.Errorf("unexpected message type %v", msg["type"])
			}
		}()
	}

	clients.Wait()
	close(stop)
	broadcaster.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Client failed: %v", err)
	}
}
