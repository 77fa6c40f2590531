// Package runctl wires a config.Config into a running replay:
// resolving senders and the capture/bitmap inputs, constructing a
// replay.Context, exposing its control.Surface over a metrics HTTP
// server, and driving the whole thing under an errgroup with
// signal-aware shutdown -- the same shape as cmd/gobfd/main.go's
// runServers, generalized from a BFD gRPC+receiver daemon to a
// one-shot (or looped) packet replay.
package runctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/gopacket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/greplay/greplay/internal/capture"
	"github.com/greplay/greplay/internal/classify"
	"github.com/greplay/greplay/internal/config"
	"github.com/greplay/greplay/internal/control"
	"github.com/greplay/greplay/internal/dispatch"
	"github.com/greplay/greplay/internal/metrics"
	"github.com/greplay/greplay/internal/netio"
	"github.com/greplay/greplay/internal/rate"
	"github.com/greplay/greplay/internal/replay"
	"github.com/greplay/greplay/internal/timing"
)

// shutdownTimeout bounds how long the metrics HTTP server is given to
// drain in-flight scrapes during shutdown.
const shutdownTimeout = 10 * time.Second

// Run builds senders and a replay.Context from cfg and drives one
// Replay(-1) call (every configured source, in order) to completion,
// honoring SIGINT/SIGTERM as abort and SIGUSR1 as a suspend/restart
// toggle. It blocks until the replay finishes, is aborted, or the
// metrics server fails.
func Run(cfg *config.Config, logger *slog.Logger) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts, warn, err := buildOptions(cfg)
	if err != nil {
		return fmt.Errorf("build replay options: %w", err)
	}
	if warn != nil {
		logger.Warn("configuration warning", slog.String("warning", warn.String()))
	}

	senderA, senderB, fileLinkType, err := buildSenders(cfg)
	if err != nil {
		return fmt.Errorf("open senders: %w", err)
	}
	defer closeSenders(senderA, senderB, logger)

	if err := dispatch.ValidateDLT(senderA, senderB, fileLinkType); err != nil {
		return fmt.Errorf("validate interface link types: %w", err)
	}

	bitmap, err := loadBitmap(cfg.Replay.BitmapPath)
	if err != nil {
		return fmt.Errorf("load classification bitmap: %w", err)
	}

	rc, warn, err := replay.NewContext(opts, senderA, senderB, bitmap)
	if err != nil {
		return fmt.Errorf("construct replay context: %w", err)
	}
	if warn != nil {
		logger.Warn("configuration warning", slog.String("warning", warn.String()))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(rc.Surface()))

	return runWithServers(cfg, rc, reg, logger)
}

// runWithServers drives the replay and the metrics HTTP server under a
// signal-aware errgroup, mirroring cmd/gobfd/main.go's runServers.
func runWithServers(cfg *config.Config, rc *replay.Context, reg *prometheus.Registry, logger *slog.Logger) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(sigCtx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	g.Go(func() error {
		watchSuspendToggle(gCtx, rc, logger)
		return nil
	})

	replayDone := make(chan error, 1)
	g.Go(func() error {
		replayDone <- rc.Replay(-1)
		return nil
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			logger.Info("shutdown signal received, aborting replay")
			rc.Abort()
		case <-replayDone:
		}
		return nil
	})

	notifyReady(logger)

	replayErr := <-replayDone
	notifyStopping(logger)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("background goroutine error", slog.String("error", err.Error()))
	}

	if replayErr != nil {
		return fmt.Errorf("replay: %w", replayErr)
	}

	snap := rc.Surface().Stats.Snapshot()
	logger.Info("replay complete",
		slog.Uint64("packets_sent", snap.PktsSent),
		slog.Uint64("bytes_sent", snap.BytesSent),
		slog.Uint64("failed", snap.Failed),
		slog.Uint64("skipped", snap.Skipped),
	)
	return nil
}

// watchSuspendToggle toggles ctx between Suspend and Restart on every
// SIGUSR1, the conventional operator-driven pause/resume signal for
// long-running replay tooling in this family (spec.md section 7
// "operator control surface").
func watchSuspendToggle(ctx context.Context, rc *replay.Context, logger *slog.Logger) {
	sigToggle := make(chan os.Signal, 1)
	signal.Notify(sigToggle, syscall.SIGUSR1)
	defer signal.Stop(sigToggle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigToggle:
			if rc.IsSuspended() {
				rc.Restart()
				logger.Info("replay resumed (SIGUSR1)")
			} else {
				rc.Suspend()
				logger.Info("replay suspended (SIGUSR1)")
			}
		}
	}
}

// buildOptions translates the declarative config.ReplayConfig into a
// validated control.Options via the functional-option constructor.
func buildOptions(cfg *config.Config) (*control.Options, *control.Warning, error) {
	rc := cfg.Replay

	mode, err := speedMode(rc)
	if err != nil {
		return nil, nil, err
	}

	strategy, err := timingStrategy(rc.Strategy)
	if err != nil {
		return nil, nil, err
	}

	buildOpts := []control.Option{
		control.WithLoop(rc.Loop),
		control.WithSpeed(mode),
		control.WithStrategy(strategy),
		control.WithLimitSend(rc.LimitSend),
		control.WithAccel(rc.AccelMicros),
		control.WithInterfaces(rc.IfaceA, rc.IfaceB),
	}
	if rc.MTU > 0 {
		buildOpts = append(buildOpts, control.WithMTU(rc.MTU))
	}
	if rc.EnableFileCache {
		buildOpts = append(buildOpts, control.WithFileCache())
	}
	if rc.UsePktHdrLen {
		buildOpts = append(buildOpts, control.WithUsePktHdrLen())
	}

	for i, src := range cfg.Sources {
		hasBitmap := rc.BitmapPath != "" && i == 0 && len(cfg.Sources) == 1
		buildOpts = append(buildOpts, control.WithFilenameSource(src.Path, hasBitmap))
	}

	opts, err := control.New(buildOpts...)
	if err != nil {
		return nil, nil, err
	}
	warn, err := opts.Validate()
	if err != nil {
		return nil, nil, err
	}
	return opts, warn, nil
}

func speedMode(rc config.ReplayConfig) (rate.Mode, error) {
	switch rc.Speed {
	case "multiplier":
		return rate.NewMultiplier(rc.SpeedMultiplier), nil
	case "mbps":
		return rate.NewMbps(rc.SpeedMbps), nil
	case "pps":
		return rate.NewPPS(rc.SpeedPPS, rc.SpeedBurst), nil
	case "oneatatime":
		return rate.Mode{}, control.NewError(control.KindConfig,
			"oneatatime speed mode requires a Go-API caller to supply a callback", nil)
	case "topspeed", "":
		return rate.NewTopSpeed(), nil
	default:
		return rate.Mode{}, fmt.Errorf("speed mode %q: %w", rc.Speed, config.ErrInvalidSpeed)
	}
}

func timingStrategy(name string) (timing.Strategy, error) {
	switch name {
	case "absolute-time":
		return timing.AbsoluteTime, nil
	case "gettimeofday-spin":
		return timing.GettimeofdaySpin, nil
	case "select-sleep":
		return timing.SelectSleep, nil
	case "rdtsc-spin":
		return timing.RdtscSpin, nil
	case "ioport-sleep":
		return timing.IoportSleep, nil
	case "nanosleep", "":
		return timing.Nanosleep, nil
	default:
		return 0, fmt.Errorf("timing strategy %q: %w", name, timing.ErrPlatformUnavailable)
	}
}

// buildSenders opens interface A (required) and interface B (optional)
// as AF_PACKET senders, and returns the capture file's link type taken
// from the first configured source for DLT validation.
func buildSenders(cfg *config.Config) (senderA, senderB netio.Sender, fileLinkType gopacket.LinkType, err error) {
	if len(cfg.Sources) == 0 {
		return nil, nil, 0, config.ErrNoSources
	}

	r, err := capture.Open(cfg.Sources[0].Path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open first source %s: %w", cfg.Sources[0].Path, err)
	}
	linkType := r.LinkType()
	_ = r.Close()

	senderA, err = netio.NewPacketSocket(cfg.Replay.IfaceA)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open interface A %s: %w", cfg.Replay.IfaceA, err)
	}

	if cfg.Replay.IfaceB != "" {
		senderB, err = netio.NewPacketSocket(cfg.Replay.IfaceB)
		if err != nil {
			_ = senderA.Close()
			return nil, nil, 0, fmt.Errorf("open interface B %s: %w", cfg.Replay.IfaceB, err)
		}
	}

	return senderA, senderB, linkType, nil
}

func closeSenders(a, b netio.Sender, logger *slog.Logger) {
	if a != nil {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close interface A sender", slog.String("error", err.Error()))
		}
	}
	if b != nil {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close interface B sender", slog.String("error", err.Error()))
		}
	}
}

func loadBitmap(path string) (*classify.Bitmap, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bitmap file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	bm, err := classify.Load(f)
	if err != nil {
		return nil, fmt.Errorf("parse bitmap file %s: %w", path, err)
	}
	return bm, nil
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval; it is a no-op when no watchdog is
// configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		return nil
	}

	tickInterval := interval / 2
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Metrics HTTP Server
// -------------------------------------------------------------------------

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}
