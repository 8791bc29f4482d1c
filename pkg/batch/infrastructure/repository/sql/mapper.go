package sql

import (
	"time"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

// optionalTime maps the zero time to NULL.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromOptionalTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func fromDomainJobInstance(ji *model.JobInstance) *JobInstanceEntity {
	return &JobInstanceEntity{
		ID:         ji.ID,
		JobName:    ji.JobName,
		JobKey:     ji.JobKey,
		Parameters: ji.Parameters,
		CreateTime: ji.CreateTime,
		Version:    ji.Version,
	}
}

func toDomainJobInstance(entity *JobInstanceEntity) *model.JobInstance {
	return &model.JobInstance{
		ID:         entity.ID,
		JobName:    entity.JobName,
		JobKey:     entity.JobKey,
		Parameters: entity.Parameters,
		CreateTime: entity.CreateTime,
		Version:    entity.Version,
	}
}

func fromDomainJobExecution(je *model.JobExecution, executionNumber int) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		ExecutionNumber:  executionNumber,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		Status:           string(je.Status),
		ExitCode:         je.ExitStatus.ExitCode,
		ExitDescription:  je.ExitStatus.ExitDescription,
		CreateTime:       je.CreateTime,
		StartTime:        optionalTime(je.StartTime),
		EndTime:          je.EndTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext,
		Failures:         je.Failures,
		Version:          je.Version,
	}
}

// toDomainJobExecution leaves StepExecutions empty; the repository attaches them.
func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	je := &model.JobExecution{
		ID:               entity.ID,
		JobInstanceID:    entity.JobInstanceID,
		JobName:          entity.JobName,
		Parameters:       entity.Parameters,
		Status:           model.BatchStatus(entity.Status),
		ExitStatus:       model.NewExitStatus(entity.ExitCode, entity.ExitDescription),
		CreateTime:       entity.CreateTime,
		StartTime:        fromOptionalTime(entity.StartTime),
		EndTime:          entity.EndTime,
		LastUpdated:      entity.LastUpdated,
		ExecutionContext: entity.ExecutionContext,
		StepExecutions:   make([]*model.StepExecution, 0),
		Failures:         entity.Failures,
		Version:          entity.Version,
	}
	if je.ExecutionContext == nil {
		je.ExecutionContext = model.NewExecutionContext()
	}
	if je.Failures == nil {
		je.Failures = make(model.FailureList, 0)
	}
	return je
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:               se.ID,
		JobExecutionID:   se.JobExecutionID,
		StepName:         se.StepName,
		Status:           string(se.Status),
		ExitCode:         se.ExitStatus.ExitCode,
		ExitDescription:  se.ExitStatus.ExitDescription,
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		FilterCount:      se.FilterCount,
		ReadSkipCount:    se.ReadSkipCount,
		ProcessSkipCount: se.ProcessSkipCount,
		WriteSkipCount:   se.WriteSkipCount,
		CreateTime:       se.CreateTime,
		StartTime:        optionalTime(se.StartTime),
		EndTime:          se.EndTime,
		LastUpdated:      se.LastUpdated,
		ExecutionContext: se.ExecutionContext,
		Failures:         se.Failures,
		Version:          se.Version,
	}
}

// toDomainStepExecution leaves the JobExecution back reference unset; callers attach it.
func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	se := &model.StepExecution{
		ID:               entity.ID,
		StepName:         entity.StepName,
		JobExecutionID:   entity.JobExecutionID,
		Status:           model.BatchStatus(entity.Status),
		ExitStatus:       model.NewExitStatus(entity.ExitCode, entity.ExitDescription),
		CreateTime:       entity.CreateTime,
		StartTime:        fromOptionalTime(entity.StartTime),
		EndTime:          entity.EndTime,
		LastUpdated:      entity.LastUpdated,
		ReadCount:        entity.ReadCount,
		WriteCount:       entity.WriteCount,
		CommitCount:      entity.CommitCount,
		RollbackCount:    entity.RollbackCount,
		FilterCount:      entity.FilterCount,
		ReadSkipCount:    entity.ReadSkipCount,
		ProcessSkipCount: entity.ProcessSkipCount,
		WriteSkipCount:   entity.WriteSkipCount,
		ExecutionContext: entity.ExecutionContext,
		Failures:         entity.Failures,
		Version:          entity.Version,
	}
	if se.ExecutionContext == nil {
		se.ExecutionContext = model.NewExecutionContext()
	}
	if se.Failures == nil {
		se.Failures = make(model.FailureList, 0)
	}
	return se
}
