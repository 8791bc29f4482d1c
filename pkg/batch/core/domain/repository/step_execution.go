package repository

import (
	"context"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

// StepExecution defines operations on step executions.
type StepExecution interface {
	// AddStepExecution assigns an ID to stepExecution and persists it.
	AddStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// AddStepExecutions is AddStepExecution for several executions.
	AddStepExecutions(ctx context.Context, stepExecutions []*model.StepExecution) error

	// UpdateStepExecution persists status, exit status, timestamps and counters. The
	// execution context is not written. Version is checked and incremented.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// UpdateStepExecutionContext persists only the step execution context.
	UpdateStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error

	// GetStepExecution returns a step execution of the given job execution, or ErrStepExecutionNotFound.
	GetStepExecution(ctx context.Context, jobExecutionID, stepExecutionID string) (*model.StepExecution, error)

	// GetLastStepExecution returns the latest execution of stepName across all executions of the instance, or nil.
	GetLastStepExecution(ctx context.Context, instance *model.JobInstance, stepName string) (*model.StepExecution, error)

	// GetStepExecutionCount returns how many times stepName ran for the instance.
	GetStepExecutionCount(ctx context.Context, instance *model.JobInstance, stepName string) (int, error)
}
