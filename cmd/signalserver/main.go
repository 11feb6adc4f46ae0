// Command signalserver runs the binary-options signal engine behind a
// WebSocket gateway, with an optional background scan.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"binarysignal/config"
	"binarysignal/internal/feed"
	"binarysignal/internal/gateway"
	"binarysignal/internal/logger"
	"binarysignal/internal/marketdata/sim"
	"binarysignal/internal/metrics"
	"binarysignal/internal/model"
	"binarysignal/internal/notification"
	"binarysignal/internal/signalengine"
	redisstore "binarysignal/internal/store/redis"
	sqlitestore "binarysignal/internal/store/sqlite"
	"binarysignal/internal/strategy"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalserver] starting...")

	if err := run(); err != nil {
		log.Fatalf("[signalserver] %v", err)
	}
	log.Println("[signalserver] stopped")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	lg := logger.Init("signalserver", logger.ParseLevel(cfg.LogLevel))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.FeedSource)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, prometheus.DefaultGatherer)

	// ---- Notifications ----
	notifier := buildNotifier(cfg)

	// ---- Candle feed ----
	var (
		rdb   *goredis.Client
		sqlDB *sql.DB
		src   model.CandleFeed
	)
	connectRedis := func() error {
		if rdb != nil {
			return nil
		}
		c, err := redisstore.Connect(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			return err
		}
		rdb = c
		return nil
	}
	defer func() {
		if rdb != nil {
			rdb.Close()
		}
	}()

	switch cfg.FeedSource {
	case config.FeedRedis:
		if err := connectRedis(); err != nil {
			return fmt.Errorf("redis feed: %w", err)
		}
		src = redisstore.NewReader(rdb)
		log.Printf("[signalserver] reading candles from redis at %s", cfg.RedisAddr)
	case config.FeedSQLite:
		reader, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite feed: %w", err)
		}
		defer reader.Close()
		sqlDB = reader.DB()
		src = reader
		log.Printf("[signalserver] reading candles from %s", cfg.SQLitePath)
	default:
		src = sim.New()
		log.Println("[signalserver] using simulated candles")
	}

	// The bus needs redis even when candles come from elsewhere.
	if cfg.UseRedisBus() {
		if err := connectRedis(); err != nil {
			return fmt.Errorf("redis bus: %w", err)
		}
	}

	guarded := feed.NewGuard(src, cfg.GuardConfig(), func(from, to feed.State) {
		prom.ObserveCircuit(from, to)
		health.SetFeedState(to)
		go sendAlert(notifier, notification.FeedAlert(from.String(), to.String()))
	})
	health.SetFeedState(guarded.State())

	// ---- Engine ----
	scorer := strategy.NewScorer(cfg.StrategyConfig())
	engine := signalengine.New(cfg.EngineConfig(), guarded, scorer,
		signalengine.WithObserver(prom),
		signalengine.WithLogger(lg.With(slog.String("component", "engine"))),
		signalengine.WithFaultHandler(prom.FaultHandler("autopick", lg)),
	)

	// ---- Gateway ----
	hubOpts := []gateway.HubOption{
		gateway.WithObserver(gatewayTelemetry{Metrics: prom, health: health}),
		gateway.WithHubLogger(lg.With(slog.String("component", "gateway"))),
		gateway.WithSignalHook(func(s model.Signal) {
			health.RecordSignal(s)
			go func() {
				if err := sendAlert(notifier, notification.SignalAlert(s)); err != nil {
					prom.NotifyFailures.Inc()
				}
			}()
		}),
	}
	if cfg.UseRedisBus() {
		hubOpts = append(hubOpts, gateway.WithBus(redisstore.NewSignalBus(rdb)))
		log.Println("[signalserver] relaying broadcasts over redis pubsub")
	}
	hub := gateway.NewHub(engine, cfg.OwnerName, hubOpts...)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, cfg.StaticDir)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ---- Run ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	metricsSrv.Start()
	g.Go(func() error {
		log.Printf("[signalserver] listening on %s (watch=%v)", srv.Addr, engine.WatchList())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return hub.RunBus(gctx) })
	g.Go(func() error {
		health.RunLivenessChecker(gctx, rdb, sqlDB, 10*time.Second)
		return nil
	})
	if cfg.BackgroundScan {
		scanner := gateway.NewScanner(hub, engine.WatchList(), engine.Config().ScanInterval,
			gateway.WithMarketHours(cfg.RespectMarketHours),
			gateway.WithScanFault(prom.FaultHandler("scan", lg)),
			gateway.WithScanReport(func(r gateway.ScanReport) {
				prom.ObserveScan(r.OpenPairs, r.Duration)
				health.RecordScan(r.At)
			}),
		)
		g.Go(func() error { return scanner.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Println("[signalserver] shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// gatewayTelemetry feeds gateway events to both Prometheus and /healthz.
type gatewayTelemetry struct {
	*metrics.Metrics
	health *metrics.HealthStatus
}

func (t gatewayTelemetry) ObserveClients(n int) {
	t.Metrics.ObserveClients(n)
	t.health.SetWSClients(n)
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	multi := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		multi = append(multi, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return multi
}

func sendAlert(n notification.Notifier, alert notification.Alert) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := n.Send(ctx, alert)
	if err != nil {
		log.Printf("[signalserver] notify %q failed: %v", alert.Title, err)
	}
	return err
}
