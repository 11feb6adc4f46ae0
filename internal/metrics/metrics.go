package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"binarysignal/internal/feed"
	"binarysignal/internal/model"
	"binarysignal/internal/signalengine"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal server.
type Metrics struct {
	// Evaluation pipeline
	Evaluations    *prometheus.CounterVec // labels: kind, outcome
	Holds          *prometheus.CounterVec // labels: reason
	Confidence     prometheus.Histogram
	FetchDur       prometheus.Histogram
	FetchErrors    prometheus.Counter
	ScanTicks      prometheus.Counter
	ScanDur        prometheus.Histogram
	MarketOpenPair prometheus.Gauge
	PairFaults     *prometheus.CounterVec // labels: source

	// Feed circuit breaker
	FeedCircuitState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	FeedCircuitTrips prometheus.Counter

	// Gateway
	WSClients      prometheus.Gauge
	Broadcasts     *prometheus.CounterVec // labels: type
	NotifyFailures prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_evaluations_total",
			Help: "Pair evaluations by kind (compute, force) and outcome (signal, hold, fault)",
		}, []string{"kind", "outcome"}),
		Holds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_holds_total",
			Help: "Holds by reason",
		}, []string{"reason"}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_confidence",
			Help:    "Confidence of produced signals",
			Buckets: []float64{50, 55, 60, 65, 70, 75, 80, 85, 90, 95, 99},
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_feed_fetch_duration_seconds",
			Help:    "Candle feed fetch latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_feed_fetch_errors_total",
			Help: "Candle feed fetches that returned an error",
		}),
		ScanTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_scan_ticks_total",
			Help: "Background scan ticks run",
		}),
		ScanDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_scan_duration_seconds",
			Help:    "Wall time of one background scan tick",
			Buckets: prometheus.DefBuckets,
		}),
		MarketOpenPair: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_market_open_pairs",
			Help: "Watch-list pairs whose market was open at the last scan",
		}),
		PairFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_pair_faults_total",
			Help: "Per-pair faults swallowed by scan ticks and auto-pick, by source",
		}, []string{"source"}),
		FeedCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_feed_circuit_state",
			Help: "Feed circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		FeedCircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_feed_circuit_trips_total",
			Help: "Times the feed circuit breaker tripped open",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broadcasts_total",
			Help: "Messages fanned out to all clients, by type",
		}, []string{"type"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_notify_failures_total",
			Help: "Signal notifications that failed to deliver",
		}),
	}

	reg.MustRegister(
		m.Evaluations,
		m.Holds,
		m.Confidence,
		m.FetchDur,
		m.FetchErrors,
		m.ScanTicks,
		m.ScanDur,
		m.MarketOpenPair,
		m.PairFaults,
		m.FeedCircuitState,
		m.FeedCircuitTrips,
		m.WSClients,
		m.Broadcasts,
		m.NotifyFailures,
	)

	return m
}

// ObserveFetch records one candle feed round trip.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	m.FetchDur.Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.Inc()
	}
}

// ObserveOutcome records the result of one evaluation.
func (m *Metrics) ObserveOutcome(kind string, o signalengine.Outcome) {
	switch {
	case o.Signal != nil:
		m.Evaluations.WithLabelValues(kind, "signal").Inc()
		m.Confidence.Observe(float64(o.Signal.Confidence))
	case o.Err != nil:
		m.Evaluations.WithLabelValues(kind, "fault").Inc()
	default:
		m.Evaluations.WithLabelValues(kind, "hold").Inc()
	}
	if o.Hold != nil {
		m.Holds.WithLabelValues(HoldReasonLabel(o.Hold.Reason)).Inc()
	}
}

// ObserveCircuit tracks feed breaker transitions.
func (m *Metrics) ObserveCircuit(from, to feed.State) {
	m.FeedCircuitState.Set(float64(to))
	if to == feed.StateOpen {
		m.FeedCircuitTrips.Inc()
	}
}

// ObserveBroadcast counts one fan-out of msgType.
func (m *Metrics) ObserveBroadcast(msgType string) {
	m.Broadcasts.WithLabelValues(msgType).Inc()
}

// ObserveClients tracks the connected WebSocket client count.
func (m *Metrics) ObserveClients(n int) {
	m.WSClients.Set(float64(n))
}

// ObserveScan records one background scan tick.
func (m *Metrics) ObserveScan(openPairs int, d time.Duration) {
	m.ScanTicks.Inc()
	m.ScanDur.Observe(d.Seconds())
	m.MarketOpenPair.Set(float64(openPairs))
}

// FaultHandler counts per-pair faults under source and logs them.
func (m *Metrics) FaultHandler(source string, lg *slog.Logger) signalengine.FaultFunc {
	faults := m.PairFaults.WithLabelValues(source)
	return func(pair string, err error) {
		faults.Inc()
		lg.Warn("pair fault", slog.String("source", source), slog.String("pair", pair), slog.String("error", err.Error()))
	}
}

// HoldReasonLabel bounds label cardinality by dropping the value suffix of
// reasons like "confidence too low:54".
func HoldReasonLabel(reason string) string {
	if i := strings.IndexByte(reason, ':'); i > 0 {
		return reason[:i]
	}
	return reason
}

// HealthStatus represents the signal server health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedSource     string    `json:"feed_source"`
	FeedState      string    `json:"feed_state"`
	RedisEnabled   bool      `json:"-"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"-"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	WSClients      int       `json:"ws_clients"`
	LastSignalAt   time.Time `json:"last_signal_at"`
	LastScanAt     time.Time `json:"last_scan_at"`

	// Liveness check results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status for feedSource.
func NewHealthStatus(feedSource string) *HealthStatus {
	return &HealthStatus{
		FeedSource: feedSource,
		FeedState:  feed.StateClosed.String(),
		StartedAt:  time.Now(),
	}
}

func (h *HealthStatus) SetFeedState(s feed.State) {
	h.mu.Lock()
	h.FeedState = s.String()
	h.mu.Unlock()
}

func (h *HealthStatus) SetWSClients(n int) {
	h.mu.Lock()
	h.WSClients = n
	h.mu.Unlock()
}

func (h *HealthStatus) RecordSignal(s model.Signal) {
	h.mu.Lock()
	h.LastSignalAt = time.Unix(s.EntryTS, 0).UTC()
	h.mu.Unlock()
}

func (h *HealthStatus) RecordScan(t time.Time) {
	h.mu.Lock()
	h.LastScanAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// RunLivenessChecker runs periodic dependency checks until ctx is cancelled.
// Nil dependencies are skipped.
func (h *HealthStatus) RunLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(checkCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(checkCtx, sqlDB)
		}
	}
	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if h.FeedState == feed.StateOpen.String() {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastSignal := ""
	if !h.LastSignalAt.IsZero() {
		lastSignal = h.LastSignalAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedSource      string  `json:"feed_source"`
		FeedState       string  `json:"feed_state"`
		WSClients       int     `json:"ws_clients"`
		LastSignalAt    string  `json:"last_signal_at"`
		LastScanAt      string  `json:"last_scan_at"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedSource:      h.FeedSource,
		FeedState:       h.FeedState,
		WSClients:       h.WSClients,
		LastSignalAt:    lastSignal,
		LastScanAt:      h.LastScanAt.Format(time.RFC3339),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server backed by gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler exposes the mux for tests and for mounting on another server.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
