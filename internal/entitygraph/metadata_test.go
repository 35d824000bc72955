package entitygraph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordMetadata = `
entities:
  - name: Company
    table: COMPANY
    columns: [id]
    associations:
      - name: employees
        target: Employee
        cardinality: to_many
        join_columns: [COMPANY_ID]
        batch: true
        strategy: exists
  - name: Employee
    table: EMPLOYEE
    columns: [id]
    associations:
      - name: company
        target: Company
        join_columns: [COMPANY_ID]
        batch: true
        strategy: IN
  - name: Record
    table: RECORD
    columns: [id]
    associations:
      - name: employee
        target: Employee
        join_columns: [EMPLOYEE_ID]
        batch: true
`

func TestLoadMetadata(t *testing.T) {
	g, err := LoadMetadata(strings.NewReader(recordMetadata))
	require.NoError(t, err)

	record, ok := g.Entity("Record")
	require.True(t, ok)
	assert.Equal(t, "RECORD", record.Table)
	assert.Equal(t, []string{"id", "EMPLOYEE_ID"}, record.Columns)

	edges := g.EdgesOf("Company")
	require.Len(t, edges, 1)
	employees := edges[0]
	assert.Equal(t, ToMany, employees.Cardinality)
	assert.Equal(t, StrategyExists, employees.Strategy)
	assert.Equal(t, []string{"COMPANY_ID"}, employees.TargetKeyColumns())
}

func TestLoadMetadata_Errors(t *testing.T) {
	_, err := LoadMetadata(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty document")

	_, err = LoadMetadata(strings.NewReader("entities: []\n"))
	assert.ErrorContains(t, err, "no entities")

	_, err = LoadMetadata(strings.NewReader("entities:\n  - name: A\n    colour: red\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = LoadMetadata(strings.NewReader("entities:\n  - name: A\n    associations:\n      - name: b\n        target: A\n        cardinality: diagonal\n"))
	assert.ErrorContains(t, err, "unknown cardinality")
}

func TestLoadMetadataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(recordMetadata), 0o600))

	g, err := LoadMetadataFile(path)
	require.NoError(t, err)
	assert.Len(t, g.Entities(), 3)

	_, err = LoadMetadataFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
