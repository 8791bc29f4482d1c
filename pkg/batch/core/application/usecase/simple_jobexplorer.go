package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// SimpleJobExplorer is a simple implementation of the JobExplorer interface.
// It queries batch metadata using a JobRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobRepository
}

// Verify that SimpleJobExplorer implements the JobExplorer interface.
var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: jobRepository}
}

func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	logger.Debugf("JobExplorer: GetJobExecution method called. Execution ID: %s", executionID)
	return e.jobRepository.GetJobExecution(ctx, executionID)
}

func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error) {
	logger.Debugf("JobExplorer: GetJobExecutions method called. Instance ID: %s", instanceID)
	instance, err := e.jobRepository.GetJobInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	executions, err := e.jobRepository.FindJobExecutions(ctx, instance)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecutions associated with JobInstance (ID: %s)", instanceID), err, false, false)
	}
	return executions, nil
}

func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, instanceID string) (*model.JobExecution, error) {
	executions, err := e.GetJobExecutions(ctx, instanceID)
	if err != nil || len(executions) == 0 {
		return nil, err
	}
	return executions[0], nil
}

func (e *SimpleJobExplorer) GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error) {
	return e.jobRepository.GetJobInstance(ctx, instanceID)
}

func (e *SimpleJobExplorer) GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	return e.jobRepository.FindJobInstancesByName(ctx, jobName, start, count)
}

func (e *SimpleJobExplorer) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	return e.jobRepository.GetJobInstanceCount(ctx, jobName)
}

func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	return e.jobRepository.GetJobNames(ctx)
}

func (e *SimpleJobExplorer) GetStepExecution(ctx context.Context, executionID, stepExecutionID string) (*model.StepExecution, error) {
	return e.jobRepository.GetStepExecution(ctx, executionID, stepExecutionID)
}

func (e *SimpleJobExplorer) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	return e.jobRepository.FindRunningJobExecutions(ctx, jobName)
}
