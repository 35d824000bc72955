package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Batch.validate(result)
	c.Metadata.validate(result)
	c.Observability.validate(result)

	if c.Database.MaxOpenConns > 0 && c.Batch.Concurrency > c.Database.MaxOpenConns {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "batch.concurrency",
			Message: fmt.Sprintf("concurrency %d exceeds max_open_conns %d", c.Batch.Concurrency, c.Database.MaxOpenConns),
			Hint:    "chunk queries beyond max_open_conns wait for a free connection",
		})
	}

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	validDrivers := map[string]bool{"mysql": true, "tidb": true, "postgres": true, "postgresql": true, "sqlite": true}
	if !validDrivers[d.Driver] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unsupported driver %q", d.Driver),
			Hint:    "valid values are: mysql, postgres, sqlite",
		})
		return
	}

	if d.Driver != "sqlite" && d.DSN == "" && (d.Port < 1 || d.Port > 65535) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
		})
	}

	if d.DSN != "" && d.Password != "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.password",
			Message: "password is ignored when database.dsn is set",
		})
	}

	if _, err := d.DataSourceName(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.dsn",
			Message: err.Error(),
		})
	}

	if d.MaxOpenConns < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.max_open_conns",
			Message: "max_open_conns cannot be negative",
		})
	}
	if d.MaxIdleConns < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.max_idle_conns",
			Message: "max_idle_conns cannot be negative",
		})
	}
	if d.MaxIdleConns > d.MaxOpenConns && d.MaxOpenConns > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.max_idle_conns",
			Message: "max_idle_conns is greater than max_open_conns",
			Hint:    "idle connections will be limited to max_open_conns",
		})
	}
}

func (b *BatchConfig) validate(result *ValidationResult) {
	if b.MaxInClause < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "batch.max_in_clause",
			Message: "max_in_clause must be at least 1",
		})
	}
	if b.Concurrency < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "batch.concurrency",
			Message: "concurrency must be at least 1",
			Hint:    "use 1 for sequential chunk execution",
		})
	}
	if b.MaxDepth < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "batch.max_depth",
			Message: "max_depth cannot be negative",
		})
	}
	validModes := map[string]bool{"eager": true, "lazy": true, "per_row": true}
	if !validModes[strings.ToLower(b.FetchMode)] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "batch.fetch_mode",
			Message: fmt.Sprintf("invalid fetch mode %q", b.FetchMode),
			Hint:    "valid values are: eager, lazy, per_row",
		})
	}
	if strings.EqualFold(b.FetchMode, "per_row") {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "batch.fetch_mode",
			Message: "per_row issues one query per association access",
			Hint:    "use eager or lazy outside of comparisons",
		})
	}
	if b.MaxInClause > 10000 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "batch.max_in_clause",
			Message: fmt.Sprintf("max_in_clause %d may exceed the database's bind parameter limit", b.MaxInClause),
		})
	}
}

func (m *MetadataConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(m.File) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "metadata.file",
			Message: "metadata file is required",
			Hint:    "set --metadata.file or BATCHFETCH_METADATA_FILE",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is outside [0, 1]", o.TraceSampleRatio),
		})
	}

	if o.MetricsAddr != "" && !o.MetricsEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.metrics_addr",
			Message: "metrics_addr is set but metrics are disabled",
			Hint:    "set observability.metrics_enabled=true",
		})
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
