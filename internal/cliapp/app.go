// Package cliapp wires configuration, telemetry and the database into a query
// session for one batchfetch command run.
package cliapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"batchfetch/internal/config"
	"batchfetch/internal/dialect"
	"batchfetch/internal/entitygraph"
	"batchfetch/internal/logging"
	"batchfetch/internal/object"
	"batchfetch/internal/observability"
	"batchfetch/internal/session"
)

// App owns runtime resources for a command run.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	providers observability.Providers
	metrics   *observability.BatchMetrics

	dialect    dialect.Dialect
	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	graph   *entitygraph.Graph
	session *session.Session

	cleanup      cleanupStack
	initOnce     sync.Once
	initErr      error
	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	d, err := dialect.Lookup(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, logger: logger, dialect: d}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	if provider == nil {
		return
	}
	a.providers.Logger = provider
}

// Init starts telemetry, loads the metadata, and opens the database.
func (a *App) Init(ctx context.Context) error {
	a.initOnce.Do(func() {
		a.initErr = a.init(ctx)
	})
	return a.initErr
}

func (a *App) init(ctx context.Context) error {
	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if meterProvider != nil {
		a.providers.Meter = meterProvider
		a.metrics = metrics
		if srv := startMetricsServer(a.cfg, a.logger); srv != nil {
			a.cleanup.push("metrics server", srv.Shutdown)
		}
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tracerProvider != nil {
		a.providers.Tracer = tracerProvider
	}

	graph, err := entitygraph.LoadMetadataFile(a.cfg.Metadata.File)
	if err != nil {
		return err
	}
	a.graph = graph
	a.logger.Info("entity metadata loaded",
		slog.String("file", a.cfg.Metadata.File),
		slog.Int("entities", len(graph.Entities())),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.dialect, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.cleanup.push("database", func(context.Context) error {
		if a.dbStatsReg != nil {
			_ = a.dbStatsReg.Unregister()
		}
		return db.Close()
	})
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sess, err := buildSession(a.cfg, a.dialect, graph, db, a.logger, a.metrics)
	if err != nil {
		return err
	}
	a.session = sess
	return nil
}

// Session returns the query session; nil before Init.
func (a *App) Session() *session.Session {
	return a.session
}

// Output is the JSON document printed for a query.
type Output struct {
	QueryID      string           `json:"query_id"`
	Entity       string           `json:"entity"`
	Count        int              `json:"count"`
	Plan         []string         `json:"plan,omitempty"`
	Excluded     []string         `json:"excluded,omitempty"`
	BatchQueries int              `json:"batch_queries"`
	Results      []map[string]any `json:"results"`
}

// Run executes one JPQL-subset query and writes the result graph to w.
func (a *App) Run(ctx context.Context, text string, rawArgs []string, w io.Writer) error {
	if a.session == nil {
		return fmt.Errorf("app is not initialized")
	}
	res, err := a.session.QueryString(ctx, text, parseQueryArgs(rawArgs)...)
	if err != nil {
		return err
	}
	// Lazy and per-row results load on access; print the same graph as eager.
	if err := res.LoadPlanned(ctx); err != nil {
		return err
	}

	out := Output{
		QueryID:      res.QueryID,
		Entity:       res.Entity.Name,
		Count:        len(res.Objects),
		BatchQueries: res.Report().Queries,
		Results:      object.SnapshotAll(res.Objects),
	}
	if res.Plan != nil {
		for _, step := range res.Plan.Steps {
			out.Plan = append(out.Plan, step.String())
		}
		for _, excluded := range res.Plan.Excluded {
			out.Excluded = append(out.Excluded, excluded.Error())
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
