package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository/repositorytest"
	"github.com/tigerroll/surfin-engine/pkg/batch/infrastructure/repository/inmemory"
)

func TestInMemoryJobRepositoryContract(t *testing.T) {
	repositorytest.Run(t, func(t *testing.T) repository.JobRepository {
		return inmemory.NewInMemoryJobRepository()
	})
}

func TestReturnedExecutionsDoNotAliasStoredState(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	ctx := context.Background()

	je, err := repo.CreateJobExecution(ctx, "load", repositorytest.Params("2024-01-01", 1), true)
	require.NoError(t, err)
	je.ExecutionContext.Put("leak", true)
	je.MarkAsStarted()

	stored, err := repo.GetJobExecution(ctx, je.ID)
	require.NoError(t, err)
	assert.False(t, stored.ExecutionContext.ContainsKey("leak"))
	assert.NotSame(t, je, stored)
	assert.Equal(t, "STARTING", stored.Status.String())
}
