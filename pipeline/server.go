package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/devskill-org/menu-co2e/logger"
	"github.com/devskill-org/menu-co2e/menu"
	"github.com/devskill-org/menu-co2e/report"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebServer serves the cached dataset, its report and the chart over HTTP,
// and pushes report updates to WebSocket clients.
type WebServer struct {
	pipeline  *Pipeline
	server    *http.Server
	mux       *http.ServeMux
	port      int
	startTime time.Time
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
	logger    *zap.SugaredLogger

	mu       sync.RWMutex
	snapshot *snapshot
}

// snapshot is the state produced by one reload of the store
type snapshot struct {
	dataset  *menu.Dataset
	summary  *report.Summary
	plot     []byte
	loadedAt time.Time
	err      error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Dataset   DatasetHealth `json:"dataset"`
	System    SystemHealth  `json:"system"`
}

// DatasetHealth describes the last reload
type DatasetHealth struct {
	Loaded          bool       `json:"loaded"`
	Days            int        `json:"days"`
	Dishes          int        `json:"dishes"`
	LoadedAt        *time.Time `json:"loaded_at,omitempty"`
	Error           string     `json:"error,omitempty"`
	CacheBackend    string     `json:"cache_backend"`
	RefreshInterval string     `json:"refresh_interval"`
}

// SystemHealth represents system-level health information
type SystemHealth struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
}

// DatasetResponse is the cached dataset in its cache document form
type DatasetResponse struct {
	Dishes map[string]menu.DishRecord `json:"dishes"`
	Days   []menu.DayRecord           `json:"days"`
}

// NewWebServer creates a new dashboard server. It returns nil when port is 0.
func NewWebServer(p *Pipeline, port int) *WebServer {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	ws := &WebServer{
		pipeline:  p,
		mux:       mux,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		logger:    logger.Named(p.logger, "server"),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/api/health", ws.healthHandler)
	mux.HandleFunc("/api/dataset", ws.datasetHandler)
	mux.HandleFunc("/api/report", ws.reportHandler)
	mux.HandleFunc("/plot.png", ws.plotHandler)
	mux.HandleFunc("/api/ws", ws.wsHandler)

	return ws
}

// Handler returns the HTTP handler with every route registered
func (ws *WebServer) Handler() http.Handler {
	return ws.mux
}

// Start loads the cache once, then serves and reloads it every refresh
// interval until ctx is cancelled or Stop is called.
func (ws *WebServer) Start(ctx context.Context) error {
	if ws == nil {
		return nil
	}

	ws.Refresh(ctx)

	go ws.handleBroadcasts()

	task := &PeriodicTask{
		name:         "Cache reload",
		initialDelay: ws.pipeline.config.RefreshInterval,
		interval:     ws.pipeline.config.RefreshInterval,
		runFunc: func(ctx context.Context) {
			ws.Refresh(ctx)
			ws.broadcastSummary()
		},
	}
	go task.run(ctx, ws.done, ws.logger)

	go func() {
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.logger.Errorf("Web server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the web server
func (ws *WebServer) Stop(ctx context.Context) error {
	if ws == nil {
		return nil
	}

	close(ws.done)

	ws.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	return ws.server.Shutdown(ctx)
}

// Refresh reloads the dataset from the store and rebuilds the report and the
// chart. A failed reload replaces the previous snapshot and carries the error.
func (ws *WebServer) Refresh(ctx context.Context) {
	snap := &snapshot{loadedAt: time.Now()}

	dataset, err := ws.pipeline.Load(ctx)
	if err != nil {
		ws.logger.Warnf("Reload failed: %v", err)
		snap.err = err
		ws.setSnapshot(snap)
		return
	}
	snap.dataset = dataset

	series, err := report.Build(dataset, ws.pipeline.now())
	if err != nil {
		ws.logger.Warnf("Report failed: %v", err)
		snap.err = err
		ws.setSnapshot(snap)
		return
	}

	summary := series.Summarize()
	snap.summary = &summary

	var buf bytes.Buffer
	if err := report.Render(series, &buf); err != nil {
		ws.logger.Warnf("Chart failed: %v", err)
		snap.err = err
	} else {
		snap.plot = buf.Bytes()
	}

	ws.logger.Debugf("Reloaded %d days and %d dishes", len(dataset.Days), len(dataset.Dishes))
	ws.setSnapshot(snap)
}

func (ws *WebServer) setSnapshot(snap *snapshot) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.snapshot = snap
}

func (ws *WebServer) current() *snapshot {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if ws.snapshot == nil {
		return &snapshot{}
	}
	return ws.snapshot
}

// healthHandler handles the /api/health endpoint
func (ws *WebServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := ws.buildHealth()

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	ws.writeJSON(w, status, health)
}

// datasetHandler handles the /api/dataset endpoint
func (ws *WebServer) datasetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := ws.current()
	if snap.dataset == nil {
		http.Error(w, "Dataset not loaded", http.StatusServiceUnavailable)
		return
	}

	response := DatasetResponse{
		Dishes: make(map[string]menu.DishRecord, len(snap.dataset.Dishes)),
		Days:   make([]menu.DayRecord, 0, len(snap.dataset.Days)),
	}
	for id, dish := range snap.dataset.Dishes {
		response.Dishes[id] = dish.Record()
	}
	for _, day := range snap.dataset.Days {
		response.Days = append(response.Days, day.Serialize())
	}

	ws.writeJSON(w, http.StatusOK, response)
}

// reportHandler handles the /api/report endpoint
func (ws *WebServer) reportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := ws.current()
	if snap.summary == nil {
		http.Error(w, "Report not available", http.StatusServiceUnavailable)
		return
	}

	ws.writeJSON(w, http.StatusOK, snap.summary)
}

// plotHandler handles the /plot.png endpoint
func (ws *WebServer) plotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := ws.current()
	if snap.plot == nil {
		http.Error(w, "Plot not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(snap.plot)
}

// wsHandler handles WebSocket connections
func (ws *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	// The initial message goes out before the client is registered, so that
	// handleBroadcasts stays the only writer once it is.
	if message, err := sonic.ConfigStd.Marshal(ws.buildUpdate()); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			ws.logger.Warnf("Failed to send initial data: %v", err)
			conn.Close()
			return
		}
	}

	ws.clients.Store(conn, true)
	ws.logger.Debugf("New WebSocket client connected. Total clients: %d", ws.clientCount())

	defer func() {
		ws.clients.Delete(conn)
		conn.Close()
		ws.logger.Debugf("WebSocket client disconnected. Total clients: %d", ws.clientCount())
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.logger.Warnf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// handleBroadcasts sends messages to all connected clients
func (ws *WebServer) handleBroadcasts() {
	for {
		select {
		case message := <-ws.broadcast:
			ws.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}

				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					ws.logger.Warnf("WebSocket write error: %v", err)
					conn.Close()
					ws.clients.Delete(conn)
				}
				return true
			})
		case <-ws.done:
			return
		}
	}
}

// broadcastSummary queues the current report for every connected client
func (ws *WebServer) broadcastSummary() {
	if ws.clientCount() == 0 {
		return
	}

	message, err := sonic.ConfigStd.Marshal(ws.buildUpdate())
	if err != nil {
		ws.logger.Errorf("Failed to marshal report update: %v", err)
		return
	}

	select {
	case ws.broadcast <- message:
	default:
		ws.logger.Warn("Broadcast queue full, dropping report update")
	}
}

func (ws *WebServer) clientCount() int {
	count := 0
	ws.clients.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// buildUpdate builds the message pushed to WebSocket clients
func (ws *WebServer) buildUpdate() map[string]any {
	return map[string]any{
		"type":   "report_update",
		"health": ws.buildHealth(),
		"report": ws.current().summary,
	}
}

func (ws *WebServer) buildHealth() HealthResponse {
	snap := ws.current()
	config := ws.pipeline.GetConfig()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
		Dataset: DatasetHealth{
			Loaded:          snap.dataset != nil,
			CacheBackend:    config.CacheBackend,
			RefreshInterval: config.RefreshInterval.String(),
		},
		System: SystemHealth{
			Uptime:     formatUptime(time.Since(ws.startTime)),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	if snap.dataset != nil {
		health.Dataset.Days = len(snap.dataset.Days)
		health.Dataset.Dishes = len(snap.dataset.Dishes)
		loadedAt := snap.loadedAt
		health.Dataset.LoadedAt = &loadedAt
	}
	if snap.err != nil {
		health.Dataset.Error = snap.err.Error()
	}
	if snap.dataset == nil || snap.err != nil {
		health.Status = "unhealthy"
	}

	return health
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// formatUptime formats a duration as a string with seconds rounded to integer
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
