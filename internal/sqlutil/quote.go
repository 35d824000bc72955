// Package sqlutil provides SQL identifier quoting helpers shared by the dialects.
package sqlutil

import "strings"

// QuoteFunc quotes a single SQL identifier.
type QuoteFunc func(name string) string

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
// MySQL, TiDB and SQLite accept this form.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteIdentifierANSI quotes a SQL identifier with double quotes as defined
// by the SQL standard (PostgreSQL, SQLite).
func QuoteIdentifierANSI(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// Qualify returns alias.column with both parts quoted by quote.
// An empty alias yields the bare quoted column.
func Qualify(quote QuoteFunc, alias, column string) string {
	if alias == "" {
		return quote(column)
	}
	return quote(alias) + "." + quote(column)
}

// QualifyAll applies Qualify to every column.
func QualifyAll(quote QuoteFunc, alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = Qualify(quote, alias, col)
	}
	return out
}
