package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/registry"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/job/runner"
	"github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/inmemory"
)

func TestMapJobRegistry(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	r := registry.NewMapJobRegistry()

	require.NoError(t, r.Register(runner.NewSimpleJob("load", repo, nil)))
	require.NoError(t, r.Register(runner.NewSimpleJob("export", repo, nil)))
	assert.ErrorIs(t, r.Register(runner.NewSimpleJob("load", repo, nil)), registry.ErrDuplicateJob)
	assert.Error(t, r.Register(runner.NewSimpleJob("", repo, nil)))

	job, err := r.GetJob("load")
	require.NoError(t, err)
	assert.Equal(t, "load", job.JobName())
	assert.Equal(t, []string{"export", "load"}, r.GetJobNames())

	_, err = r.GetJob("missing")
	assert.ErrorIs(t, err, registry.ErrNoSuchJob)

	r.Unregister("load")
	_, err = r.GetJob("load")
	assert.ErrorIs(t, err, registry.ErrNoSuchJob)
}

func TestModuleRegistersJobGroup(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	var locator registry.JobLocator
	app := fxtest.New(t,
		registry.Module,
		fx.Provide(
			fx.Annotate(
				func() port.Job { return runner.NewSimpleJob("nightly", repo, nil) },
				fx.ResultTags(`group:"jobs"`),
			),
		),
		fx.Populate(&locator),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, []string{"nightly"}, locator.GetJobNames())
	_, err := locator.GetJob("nightly")
	assert.NoError(t, err)
}
