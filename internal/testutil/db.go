package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite"
)

// RecordSchema creates the tables behind RecordSpecs. EMPLOYEE also carries a
// MANAGER_ID column for self-referencing fixtures and COMPANY a PARENT_ID.
var RecordSchema = []string{
	`CREATE TABLE COMPANY (ID INTEGER PRIMARY KEY, NAME TEXT, PARENT_ID INTEGER)`,
	`CREATE TABLE EMPLOYEE (ID INTEGER PRIMARY KEY, NAME TEXT, COMPANY_ID INTEGER, MANAGER_ID INTEGER)`,
	`CREATE TABLE RECORD (ID INTEGER PRIMARY KEY, EMPLOYEE_ID INTEGER)`,
}

// RecordRows seeds two companies, three employees (1 and 2 at company 1,
// 3 at company 2) and one record per employee.
var RecordRows = []string{
	`INSERT INTO COMPANY (ID, NAME) VALUES (1, 'Acme'), (2, 'Globex')`,
	`INSERT INTO EMPLOYEE (ID, NAME, COMPANY_ID) VALUES (1, 'Ann', 1), (2, 'Bob', 1), (3, 'Cid', 2)`,
	`INSERT INTO RECORD (ID, EMPLOYEE_ID) VALUES (1, 1), (2, 2), (3, 3)`,
}

var dbCounter atomic.Int64

// NewTestDB opens an isolated shared-cache in-memory SQLite database, runs
// statements, and closes it when the test ends.
func NewTestDB(t testing.TB, statements ...string) *sql.DB {
	t.Helper()

	name := fmt.Sprintf("%s_%d", sanitizeName(t.Name()), dbCounter.Add(1))
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(4)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("Warning: failed to close database connection: %v", closeErr)
		}
	})

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return db
}

// NewRecordDB is NewTestDB seeded with RecordSchema and RecordRows, followed by extra.
func NewRecordDB(t testing.TB, extra ...string) *sql.DB {
	t.Helper()
	stmts := append(append(append([]string{}, RecordSchema...), RecordRows...), extra...)
	return NewTestDB(t, stmts...)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
