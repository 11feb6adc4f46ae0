package gateway

import (
	"context"
	"log/slog"
	"time"

	"binarysignal/internal/markethours"
	"binarysignal/internal/model"
	"binarysignal/internal/signalengine"
)

// ScanReport summarises one scanner tick.
type ScanReport struct {
	At        time.Time
	OpenPairs int
	Signals   int
	Duration  time.Duration
	Results   []signalengine.PairResult
}

// Scanner drives periodic normal-mode scans of the watch list and broadcasts
// every ok signal.
type Scanner struct {
	hub          *Hub
	watch        []string
	interval     time.Duration
	respectHours bool
	now          func() time.Time
	onFault      signalengine.FaultFunc
	onTick       func(ScanReport)
}

// ScannerOption customises a Scanner.
type ScannerOption func(*Scanner)

// WithMarketHours skips pairs whose market is closed.
func WithMarketHours(enabled bool) ScannerOption {
	return func(s *Scanner) { s.respectHours = enabled }
}

// WithScanClock replaces the wall clock used for market-hour checks.
func WithScanClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) { s.now = now }
}

// WithScanFault receives per-pair faults.
func WithScanFault(fn signalengine.FaultFunc) ScannerOption {
	return func(s *Scanner) { s.onFault = fn }
}

// WithScanReport is called after every tick.
func WithScanReport(fn func(ScanReport)) ScannerOption {
	return func(s *Scanner) { s.onTick = fn }
}

// NewScanner creates a scanner over watch that ticks every interval.
func NewScanner(hub *Hub, watch []string, interval time.Duration, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		hub:      hub,
		watch:    append([]string(nil), watch...),
		interval: interval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.onFault == nil {
		s.onFault = func(pair string, err error) {
			hub.log.Warn("scan fault", slog.String("pair", pair), slog.String("error", err.Error()))
		}
	}
	return s
}

// Run ticks until ctx is cancelled. A slow tick delays the next one; ticks
// never overlap.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.hub.log.Info("background scan started",
		slog.Duration("interval", s.interval), slog.Int("pairs", len(s.watch)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scan pass.
func (s *Scanner) Tick(ctx context.Context) ScanReport {
	start := s.now()
	pairs := s.watch
	if s.respectHours {
		pairs = markethours.OpenPairs(s.watch, start)
	}

	report := ScanReport{At: start, OpenPairs: len(pairs)}
	if len(pairs) == 0 && len(s.watch) > 0 {
		s.hub.log.Debug("scan skipped, markets closed",
			slog.String("pair", s.watch[0]),
			slog.String("status", markethours.StatusString(s.watch[0], start)))
	}
	if len(pairs) > 0 {
		report.Results = signalengine.RunScanTick(ctx, pairs, func(ctx context.Context, pair string) signalengine.Outcome {
			return s.hub.engine.ComputeSignal(ctx, pair, model.ModeNormal)
		}, func(sig model.Signal) {
			report.Signals++
			s.hub.BroadcastSignal(ctx, sig)
		}, s.onFault)
	}
	report.Duration = s.now().Sub(start)

	if s.onTick != nil {
		s.onTick(report)
	}
	return report
}
