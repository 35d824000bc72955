// Package dialect describes the small amount of SQL syntax that differs between
// the supported database engines: identifier quoting and bind placeholders.
// Everything else the engine emits is portable SQL built with squirrel.
package dialect

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"batchfetch/internal/sqlutil"
)

// Dialect holds the per-engine rendering rules.
type Dialect struct {
	// Name is the configuration name (mysql, postgres, sqlite).
	Name string
	// DriverName is the database/sql driver registered for this engine.
	DriverName string
	// Quote quotes a single identifier.
	Quote sqlutil.QuoteFunc
	// Placeholder is the squirrel placeholder format for bind parameters.
	Placeholder sq.PlaceholderFormat
	// DBSystem is the OpenTelemetry db.system attribute for this engine.
	DBSystem attribute.KeyValue
}

var (
	// MySQL covers MySQL and TiDB.
	MySQL = Dialect{
		Name:        "mysql",
		DriverName:  "mysql",
		Quote:       sqlutil.QuoteIdentifier,
		Placeholder: sq.Question,
		DBSystem:    semconv.DBSystemMySQL,
	}
	// Postgres uses ANSI quoting and $n placeholders.
	Postgres = Dialect{
		Name:        "postgres",
		DriverName:  "postgres",
		Quote:       sqlutil.QuoteIdentifierANSI,
		Placeholder: sq.Dollar,
		DBSystem:    semconv.DBSystemPostgreSQL,
	}
	// SQLite is registered by modernc.org/sqlite under the driver name "sqlite".
	SQLite = Dialect{
		Name:        "sqlite",
		DriverName:  "sqlite",
		Quote:       sqlutil.QuoteIdentifierANSI,
		Placeholder: sq.Question,
		DBSystem:    semconv.DBSystemSqlite,
	}
)

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}

// Names lists the canonical dialect names.
func Names() []string {
	return []string{MySQL.Name, Postgres.Name, SQLite.Name}
}
