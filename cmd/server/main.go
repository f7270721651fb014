package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/api"
	"github.com/nvr-ai/braintumor/audit"
	"github.com/nvr-ai/braintumor/config"
	"github.com/nvr-ai/braintumor/inference"
	"github.com/nvr-ai/braintumor/models/model"
	"github.com/nvr-ai/braintumor/monitoring"
	"github.com/nvr-ai/braintumor/web"
	"github.com/nvr-ai/braintumor/zlog"
)

const (
	// auditBuffer is how many predictions may wait for the audit sinks.
	auditBuffer = 1024
	// auditTimeout bounds one write to the audit sinks.
	auditTimeout = 5 * time.Second
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		zlog.Fatal("loading configuration", zap.Error(err))
	}

	if err := zlog.Init(zlog.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogConfig.MaxSizeMB,
		MaxBackups: cfg.LogConfig.MaxBackups,
		MaxAgeDays: cfg.LogConfig.MaxAgeDays,
		Compress:   cfg.Compress,
	}); err != nil {
		zlog.Fatal("initializing logger", zap.Error(err))
	}
	defer zlog.Sync()

	if err := run(cfg); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	gin.SetMode(cfg.GinMode)

	recorder := monitoring.NewRecorder(model.DefaultClasses)
	collector := monitoring.NewCollector(cfg.HistorySize)
	drift := monitoring.NewDriftMonitor(cfg.DriftThreshold)
	if len(cfg.Baseline) > 0 {
		if err := drift.SetBaseline(cfg.Baseline); err != nil {
			return errors.Wrap(err, "drift baseline")
		}
	}

	handle := inference.NewHandle(inference.ModelLoader(cfg.ModelArgs()), cfg.Version)
	handle.OnChange(recorder.SetModelLoaded)
	defer handle.Close()

	// A missing or broken model leaves the service up and reporting unhealthy.
	if err := handle.Load(context.Background()); err != nil {
		zlog.Error("model not loaded, serving health checks only", zap.Error(err))
	}

	sink, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	if sink != nil {
		defer func() {
			if err := sink.Close(); err != nil {
				zlog.Warn("closing audit sinks", zap.Error(err))
			}
		}()
	}

	router, err := api.NewRouter(api.Options{
		AppName:        cfg.AppName,
		Handle:         handle,
		Recorder:       recorder,
		MetricsEnabled: cfg.MetricsEnabled,
		Collector:      collector,
		Drift:          drift,
		Sink:           sink,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxBatchSize:   cfg.MaxBatchSize,
		Assets:         web.FS,
		Development:    cfg.GinMode == gin.DebugMode,
	})
	if err != nil {
		return errors.Wrap(err, "building router")
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("listening", zap.String("addr", srv.Addr), zap.Bool("model_loaded", handle.Ready()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.Wrap(err, "listening")
		}
		return nil
	case sig := <-quit:
		zlog.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// buildSinks opens every configured audit destination. Kafka and MySQL failures are
// logged and that destination is skipped, so an unreachable broker or database does not
// keep the classifier down.
func buildSinks(cfg *config.Config) (audit.Sink, error) {
	var sinks audit.Multi

	if cfg.PredictionLogConfig.Enabled {
		f, err := audit.NewFileSink(audit.FileOptions{
			Path:       cfg.PredictionLogConfig.Path,
			MaxSizeMB:  cfg.PredictionLogConfig.MaxSizeMB,
			MaxBackups: cfg.PredictionLogConfig.MaxBackups,
			MaxAgeDays: cfg.PredictionLogConfig.MaxAgeDays,
		})
		if err != nil {
			return nil, errors.Wrap(err, "prediction log")
		}
		sinks = append(sinks, f)
	}

	if len(cfg.Brokers) > 0 {
		k, err := audit.NewKafkaSink(audit.KafkaOptions{
			Brokers:  cfg.Brokers,
			ClientID: cfg.ClientID,
			Topic:    cfg.Topic,
		})
		if err != nil {
			zlog.Error("kafka audit disabled", zap.Strings("brokers", cfg.Brokers), zap.Error(err))
		} else {
			sinks = append(sinks, k)
		}
	}

	if cfg.DSN != "" {
		m, err := audit.NewMySQLSink(cfg.DSN)
		if err != nil {
			zlog.Error("mysql audit disabled", zap.Error(err))
		} else {
			sinks = append(sinks, m)
		}
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return audit.NewAsync(sinks, auditBuffer, auditTimeout), nil
}
