package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       "mysql",
			Host:         "localhost",
			Port:         4000,
			User:         "root",
			Database:     "test",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Batch:    BatchConfig{MaxInClause: 1000, Concurrency: 4, FetchMode: "eager"},
		Metadata: MetadataConfig{File: "entities.yaml"},
		Observability: ObservabilityConfig{
			TraceSampleRatio: 1,
			Logging:          LoggingConfig{Level: "info", Format: "text"},
			OTLP:             OTLPConfig{Protocol: "grpc", Compression: "gzip"},
		},
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 4000, cfg.Database.Port)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 1000, cfg.Batch.MaxInClause)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, "eager", cfg.Batch.FetchMode)
	assert.Equal(t, "batchfetch", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, 10*time.Second, cfg.Observability.OTLP.Timeout)
	assert.Empty(t, cfg.Args)
}

func TestLoad_Precedence(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batchfetch.yaml"), []byte(`
database:
  driver: sqlite
  database: file.db
batch:
  max_in_clause: 50
  concurrency: 2
metadata:
  file: entities.yaml
`), 0o600))
	t.Setenv("BATCHFETCH_BATCH_CONCURRENCY", "3")
	t.Setenv("BATCHFETCH_BATCH_FETCH_MODE", "lazy")

	cfg, err := Load([]string{"--batch.max_in_clause=7", "SELECT r FROM Record r", "42"})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file.db", cfg.Database.Database)
	assert.Equal(t, 7, cfg.Batch.MaxInClause, "flag beats file")
	assert.Equal(t, 3, cfg.Batch.Concurrency, "env beats file")
	assert.Equal(t, "lazy", cfg.Batch.FetchMode)
	assert.Equal(t, "entities.yaml", cfg.Metadata.File)
	assert.Equal(t, []string{"SELECT r FROM Record r", "42"}, cfg.Args)
}

func TestLoad_VersionFlag(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load([]string{"--version"})
	require.NoError(t, err)
	assert.True(t, cfg.ShowVersion)
	assert.Empty(t, cfg.Args)
}

func TestLoad_ExplicitConfigFileMissing(t *testing.T) {
	chdirTemp(t)
	_, err := Load([]string{"--config", "nope.yaml"})
	assert.ErrorContains(t, err, `failed to read config file "nope.yaml"`)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  chunk_size: 5\n"), 0o600))

	_, err := Load([]string{"-c", path})
	assert.ErrorContains(t, err, "failed to unmarshal config")
}

func TestLoad_SecretFiles(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("HOME", dir)
	pwFile := filepath.Join(dir, "pw")
	dsnFile := filepath.Join(dir, "dsn")
	require.NoError(t, os.WriteFile(pwFile, []byte("s3cret\n"), 0o600))
	require.NoError(t, os.WriteFile(dsnFile, []byte("  app:x@tcp(db:3306)/shop \n"), 0o600))

	cfg, err := Load([]string{"--database.password_file", pwFile, "--database.dsn_file", dsnFile})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "app:x@tcp(db:3306)/shop", cfg.Database.DSN)
}

func TestLoad_PasswordFromStdin(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("HOME", dir)
	stdin := filepath.Join(dir, "stdin")
	require.NoError(t, os.WriteFile(stdin, []byte("from-stdin\n"), 0o600))
	f, err := os.Open(stdin)
	require.NoError(t, err)
	defer f.Close()

	orig := os.Stdin
	os.Stdin = f
	t.Cleanup(func() { os.Stdin = orig })

	cfg, err := Load([]string{"--database.password_file", "@-"})
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", cfg.Database.Password)
}

func TestLoad_HeadersFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BATCHFETCH_OBSERVABILITY_OTLP_HEADERS", "api-key=abc, tenant=t1")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"api-key": "abc", "tenant": "t1"}, cfg.Observability.OTLP.Headers)
}

func TestValidate_Valid(t *testing.T) {
	result := validConfig().Validate()
	assert.False(t, result.HasErrors(), result.Error())
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "", result.Error())
}

func TestValidate_Errors(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Port = 0
	cfg.Batch.MaxInClause = 0
	cfg.Batch.Concurrency = 0
	cfg.Batch.FetchMode = "sometimes"
	cfg.Batch.MaxDepth = -1
	cfg.Metadata.File = ""
	cfg.Observability.Logging.Level = "verbose"
	cfg.Observability.TraceSampleRatio = 2
	cfg.Observability.OTLP.Protocol = "udp"

	result := cfg.Validate()
	fields := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"database.port",
		"batch.max_in_clause",
		"batch.concurrency",
		"batch.fetch_mode",
		"batch.max_depth",
		"metadata.file",
		"observability.logging.level",
		"observability.trace_sample_ratio",
		"observability.otlp.protocol",
	}, fields)
	assert.Contains(t, result.Error(), "batch.fetch_mode: invalid fetch mode \"sometimes\" (hint: valid values are: eager, lazy, per_row)")
}

func TestValidate_UnsupportedDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "oracle"
	result := cfg.Validate()
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "database.driver", result.Errors[0].Field)
}

func TestValidate_Warnings(t *testing.T) {
	cfg := validConfig()
	cfg.Database.MaxIdleConns = 20
	cfg.Batch.FetchMode = "per_row"
	cfg.Observability.MetricsAddr = ":9090"
	cfg.Batch.Concurrency = 16

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	fields := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.ElementsMatch(t, []string{"database.max_idle_conns", "batch.fetch_mode", "observability.metrics_addr", "batch.concurrency"}, fields)
}

func TestDataSourceName(t *testing.T) {
	mysqlCfg := validConfig().Database
	mysqlCfg.Password = "pw"
	dsn, err := mysqlCfg.DataSourceName()
	require.NoError(t, err)
	assert.Contains(t, dsn, "root:pw@tcp(localhost:4000)/test")

	mysqlCfg.DSN = "app:x@tcp(db:3306)/shop"
	mysqlCfg.TLSMode = "skip-verify"
	dsn, err = mysqlCfg.DataSourceName()
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:x@tcp(db:3306)/shop")
	assert.Contains(t, dsn, "tls=skip-verify")

	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "shop", TLSMode: "disable"}
	dsn, err = pg.DataSourceName()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/shop?sslmode=disable", dsn)

	pg.DSN = "host=db dbname=shop"
	dsn, err = pg.DataSourceName()
	require.NoError(t, err)
	assert.Equal(t, "host=db dbname=shop", dsn)

	lite := DatabaseConfig{Driver: "sqlite", Database: ":memory:"}
	dsn, err = lite.DataSourceName()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)

	_, err = (&DatabaseConfig{Driver: "sqlite"}).DataSourceName()
	assert.Error(t, err)
	_, err = (&DatabaseConfig{Driver: "mysql", DSN: "not a dsn"}).DataSourceName()
	assert.Error(t, err)
}

func TestGetTracesConfig_MergesOverride(t *testing.T) {
	obs := ObservabilityConfig{
		OTLP:   OTLPConfig{Endpoint: "collector:4317", Protocol: "grpc", Headers: map[string]string{"a": "1"}, Timeout: time.Second},
		Traces: &OTLPConfig{Protocol: "http/protobuf", Insecure: true, Headers: map[string]string{"b": "2"}},
	}
	traces := obs.GetTracesConfig()
	assert.Equal(t, "collector:4317", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.True(t, traces.Insecure)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, traces.Headers)
	assert.Equal(t, time.Second, traces.Timeout)

	assert.Equal(t, obs.OTLP, obs.GetLogsConfig())
}
