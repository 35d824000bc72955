package dbexec

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardExecutor_NilDB(t *testing.T) {
	executor := NewStandardExecutor(nil)
	rows, err := executor.QueryContext(context.Background(), "SELECT 1")
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestStandardExecutor_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM company").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT id FROM company")
	require.NoError(t, err)
	defer rows.Close()

	var ids []any
	for rows.Next() {
		var id any
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []any{int64(1), int64(2)}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxExecutor_BuffersRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, company_id FROM employee").
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id"}).
			AddRow(int64(1), int64(10)).
			AddRow(int64(2), nil))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	executor := NewTxExecutor(tx)
	rows, err := executor.QueryContext(context.Background(), "SELECT id, company_id FROM employee")
	require.NoError(t, err)

	var got [][]any
	for rows.Next() {
		var id, companyID any
		require.NoError(t, rows.Scan(&id, &companyID))
		got = append(got, []any{id, companyID})
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, [][]any{{int64(1), int64(10)}, {int64(2), nil}}, got)

	var id any
	assert.Error(t, rows.Scan(&id), "scan after exhaustion")

	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxExecutor_NilTx(t *testing.T) {
	_, err := NewTxExecutor(nil).QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrTxDone)
}

func TestCountingExecutor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"2"}).AddRow(2))

	counter := NewCountingExecutor(NewStandardExecutor(db))
	for _, q := range []string{"SELECT 1", "SELECT 2"} {
		rows, err := counter.QueryContext(context.Background(), q)
		require.NoError(t, err)
		require.NoError(t, rows.Close())
	}
	assert.EqualValues(t, 2, counter.Queries())

	counter.Reset()
	assert.EqualValues(t, 0, counter.Queries())
}
