// Command earshot is the main entry point for the Earshot acoustic
// monitoring server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/earshot-io/earshot/internal/archive"
	"github.com/earshot-io/earshot/internal/config"
	"github.com/earshot-io/earshot/internal/export"
	"github.com/earshot-io/earshot/internal/health"
	"github.com/earshot-io/earshot/internal/ingest"
	"github.com/earshot-io/earshot/internal/narrate"
	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/internal/resilience"
	"github.com/earshot-io/earshot/internal/server"
	"github.com/earshot-io/earshot/internal/session"
	"github.com/earshot-io/earshot/pkg/classify"
	classifymock "github.com/earshot-io/earshot/pkg/classify/mock"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	// ── Logger (level is hot-reloadable) ──────────────────────────────────────
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Configuration with hot reload ─────────────────────────────────────────
	exporter := &reloadableExporter{}
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ExportDirChanged {
			exporter.setDir(d.NewExportDir)
			slog.Info("export directory changed", "dir", d.NewExportDir)
		}
		if d.RestartRequired {
			slog.Warn("server or classifier configuration changed; restart to apply")
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))
	exporter.setDir(cfg.Export.Dir)

	slog.Info("earshot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "earshot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Classifier ────────────────────────────────────────────────────────────
	provider, err := buildClassifier(cfg.Classifier)
	if err != nil {
		slog.Error("failed to build classifier", "err", err)
		return 1
	}
	slog.Info("classifier configured", "kind", cfg.Classifier.Kind, "base_url", cfg.Classifier.BaseURL)

	// ── Archive (optional) ────────────────────────────────────────────────────
	checkers := []health.Checker{health.Classifier(provider)}
	var store *archive.Store
	if cfg.Archive.PostgresDSN != "" {
		store, err = archive.New(ctx, cfg.Archive.PostgresDSN)
		if err != nil {
			slog.Error("failed to open session archive", "err", err)
			return 1
		}
		defer store.Close()
		checkers = append(checkers, health.Archive(store))
		slog.Info("session archive connected")
	} else {
		slog.Info("session archive disabled")
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	hub := ingest.NewHub(logger, metrics)

	controllerCfg := session.ControllerConfig{
		Provider:        provider,
		Source:          hub,
		Narrator:        narrate.New(),
		Exporter:        exporter,
		Metrics:         metrics,
		Logger:          logger,
		ReadyTimeout:    cfg.Classifier.ReadyTimeout.Std(),
		ClassifyTimeout: cfg.Classifier.ClassifyTimeout.Std(),
		Breaker: resilience.BreakerConfig{
			Name:      "classifier",
			Threshold: cfg.Classifier.Breaker.Threshold,
			Cooldown:  cfg.Classifier.Breaker.Cooldown.Std(),
			Probes:    cfg.Classifier.Breaker.Probes,
		},
	}
	if store != nil {
		controllerCfg.Archiver = store
	}
	controller, err := session.NewController(controllerCfg)
	if err != nil {
		slog.Error("failed to build session controller", "err", err)
		return 1
	}
	defer controller.Close()

	// ── HTTP server ───────────────────────────────────────────────────────────
	srvCfg := server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Controller: controller,
		Hub:        hub,
		Health:     health.New(checkers...),
		Metrics:    metrics,
		Logger:     logger,
	}
	if cfg.Server.TLS != nil {
		srvCfg.CertFile = cfg.Server.TLS.CertFile
		srvCfg.KeyFile = cfg.Server.TLS.KeyFile
	}
	if store != nil {
		srvCfg.Archive = store
	}
	srv := server.New(srvCfg)

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildClassifier constructs the configured classifier backend.
func buildClassifier(cfg config.ClassifierConfig) (classify.Provider, error) {
	switch cfg.Kind {
	case config.ClassifierHTTP:
		var opts []classify.Option
		if cfg.ClassifyTimeout > 0 {
			opts = append(opts, classify.WithTimeout(cfg.ClassifyTimeout.Std()))
		}
		if cfg.Model != "" {
			opts = append(opts, classify.WithModel(cfg.Model))
		}
		return classify.NewHTTP(cfg.BaseURL, opts...)
	case config.ClassifierMock, "":
		return classifymock.New(), nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", cfg.Kind)
	}
}

// reloadableExporter wraps the report writer so the target directory can be
// swapped by the config watcher without restarting.
type reloadableExporter struct {
	mu sync.Mutex
	w  *export.Writer
}

func (e *reloadableExporter) setDir(dir string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.w = export.NewWriter(dir)
}

func (e *reloadableExporter) Export(ctx context.Context, res session.Result) (string, error) {
	e.mu.Lock()
	w := e.w
	e.mu.Unlock()
	return w.Export(ctx, res)
}

// slogLevel maps a config log level to the slog equivalent.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
