package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// DataSourceName returns the data source name for the configured driver. An explicit
// database.dsn wins over the discrete fields.
func (d *DatabaseConfig) DataSourceName() (string, error) {
	switch d.Driver {
	case "mysql", "tidb":
		return d.mysqlDSN()
	case "postgres", "postgresql":
		return d.postgresDSN()
	case "sqlite":
		if d.DSN != "" {
			return d.DSN, nil
		}
		if d.Database == "" {
			return "", fmt.Errorf("sqlite requires database.dsn or database.database")
		}
		return d.Database, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", d.Driver)
	}
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if d.DSN != "" {
		parsed, err := mysql.ParseDSN(d.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
	}
	if d.TLSMode != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = d.TLSMode
	}
	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) postgresDSN() (string, error) {
	raw := d.DSN
	if raw == "" {
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:   "/" + d.Database,
		}
		if d.TLSMode != "" {
			u.RawQuery = url.Values{"sslmode": {d.TLSMode}}.Encode()
		}
		raw = u.String()
	}
	if !strings.HasPrefix(raw, "postgres://") && !strings.HasPrefix(raw, "postgresql://") {
		// key=value connection strings are passed through unchanged.
		return raw, nil
	}
	if _, err := pq.ParseURL(raw); err != nil {
		return "", fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return raw, nil
}
