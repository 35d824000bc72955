package cliapp

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"batchfetch/internal/batch"
	"batchfetch/internal/config"
	"batchfetch/internal/dbexec"
	"batchfetch/internal/dialect"
	"batchfetch/internal/entitygraph"
	"batchfetch/internal/logging"
	"batchfetch/internal/observability"
	"batchfetch/internal/planner"
	"batchfetch/internal/session"
)

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider behind it.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observabilityConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func observabilityConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.BatchMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(observabilityConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return nil, nil, err
	}
	metrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return meterProvider, metrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return observability.InitTracerProvider(observabilityConfig(cfg, tracesConfig))
}

// startMetricsServer serves /metrics for the lifetime of the run.
func startMetricsServer(cfg *config.Config, logger *logging.Logger) *http.Server {
	if cfg.Observability.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.Observability.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", srv.Addr))
	return srv
}

func connectDB(cfg *config.Config, d dialect.Dialect, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dsn, err := cfg.Database.DataSourceName()
	if err != nil {
		return nil, nil, err
	}

	var db *sql.DB
	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		opts := []otelsql.Option{otelsql.WithAttributes(d.DBSystem)}
		if cfg.Observability.TracingEnabled {
			opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
				DisableErrSkip: true,
			}))
		}
		db, err = otelsql.Open(d.DriverName, dsn, opts...)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Observability.MetricsEnabled {
			dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(d.DBSystem))
			if err != nil {
				logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
			}
		}
		logger.Debug("database instrumentation enabled",
			slog.Bool("metrics", cfg.Observability.MetricsEnabled),
			slog.Bool("tracing", cfg.Observability.TracingEnabled),
		)
	} else {
		db, err = sql.Open(d.DriverName, dsn)
		if err != nil {
			return nil, nil, err
		}
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return db, dbStatsReg, nil
}

func buildSession(cfg *config.Config, d dialect.Dialect, graph *entitygraph.Graph, db *sql.DB, logger *logging.Logger, metrics *observability.BatchMetrics) (*session.Session, error) {
	mode, err := session.ParseFetchMode(cfg.Batch.FetchMode)
	if err != nil {
		return nil, err
	}
	return session.New(graph, dbexec.NewStandardExecutor(db),
		session.WithDialect(d),
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithFetchMode(mode),
		session.WithBatchOptions(batch.Options{
			MaxInClause: cfg.Batch.MaxInClause,
			Concurrency: cfg.Batch.Concurrency,
		}),
		session.WithPlanOptions(planner.PlanOptions{MaxDepth: cfg.Batch.MaxDepth}),
	), nil
}

// parseQueryArgs converts positional command line values into query
// parameters: integers, floats, booleans, NULL, or strings.
func parseQueryArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, s := range raw {
		switch {
		case strings.EqualFold(s, "null"):
			args[i] = nil
		case strings.EqualFold(s, "true"), strings.EqualFold(s, "false"):
			args[i] = strings.EqualFold(s, "true")
		default:
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				args[i] = n
			} else if f, err := strconv.ParseFloat(s, 64); err == nil {
				args[i] = f
			} else {
				args[i] = s
			}
		}
	}
	return args
}
