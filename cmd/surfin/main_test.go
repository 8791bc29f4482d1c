package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/registry"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestJobsListsDemoJobs(t *testing.T) {
	out, err := execute(t, "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "helloJob")
	assert.NotContains(t, out, "forecastJob", "no warehouse datasource is configured")
}

func TestRunHelloJob(t *testing.T) {
	out, err := execute(t, "run", "helloJob", "name=surfin")
	require.NoError(t, err)
	assert.Contains(t, out, "helloJob\tCOMPLETED\tCOMPLETED")

	_, err = execute(t, "run", "missingJob")
	assert.ErrorIs(t, err, registry.ErrNoSuchJob)

	_, err = execute(t, "run", "helloJob", "colour=blue")
	assert.ErrorIs(t, err, port.ErrJobParametersInvalid)

	_, err = execute(t, "run", "helloJob", "broken(uuid)=1")
	assert.Error(t, err)
}

func TestNextHelloJob(t *testing.T) {
	out, err := execute(t, "next", "helloJob")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED")
}

func TestMigrateAndRunWithSQLRepository(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, fmt.Sprintf(`
surfin:
  infrastructure:
    job_repository:
      type: sql
      db_ref: metadata
  datasources:
    metadata:
      type: sqlite
      database: %s
`, filepath.Join(dir, "metadata.db")))

	out, err := execute(t, "--config", cfgPath, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "metadata\tup\tversion")

	out, err = execute(t, "--config", cfgPath, "run", "helloJob", "name=sql")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED")

	_, err = execute(t, "--config", cfgPath, "run", "helloJob", "name=sql")
	assert.Error(t, err, "the instance is already complete")

	out, err = execute(t, "--config", cfgPath, "executions", "helloJob")
	require.NoError(t, err)
	assert.Contains(t, out, "name(string)=sql")

	_, err = execute(t, "migrate", "sideways")
	assert.Error(t, err)
}
