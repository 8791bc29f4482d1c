package sql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// AddStepExecution assigns an ID and inserts stepExecution.
func (r *SQLJobRepository) AddStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	return r.AddStepExecutions(ctx, []*model.StepExecution{stepExecution})
}

// AddStepExecutions inserts several step executions in one transaction. IDs are assigned only
// when the insert commits.
func (r *SQLJobRepository) AddStepExecutions(ctx context.Context, stepExecutions []*model.StepExecution) error {
	for _, se := range stepExecutions {
		if err := repository.ValidateNewStepExecution(se); err != nil {
			return err
		}
	}
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	entities := make([]*StepExecutionEntity, 0, len(stepExecutions))
	for _, se := range stepExecutions {
		entity := fromDomainStepExecution(se)
		entity.ID = model.NewID()
		entity.Version = 0
		entity.LastUpdated = now
		entities = append(entities, entity)
	}

	err = db.Transaction(func(txDB *gorm.DB) error {
		for _, entity := range entities {
			exists, err := r.rowExists(txDB, &JobExecutionEntity{}, entity.JobExecutionID)
			if err != nil {
				return err
			}
			if !exists {
				return repository.NewError(repository.ErrJobExecutionNotFound, "parent job execution %s of step '%s' is not persisted", entity.JobExecutionID, entity.StepName)
			}
			if err := txDB.Create(entity).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrJobExecutionNotFound) {
			return err
		}
		return dbError(conn, "failed to add step executions", err)
	}

	for i, se := range stepExecutions {
		se.ID = entities[i].ID
		se.Version = 0
		se.LastUpdated = now
	}
	return nil
}

// UpdateStepExecution stores everything but the execution context, matching the row on its version.
func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	if stepExecution.ID == "" {
		return repository.NewError(repository.ErrUnassignedID, "step execution '%s' must be added before it is updated", stepExecution.StepName)
	}
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	result := db.Model(&StepExecutionEntity{}).
		Where("id = ? AND version = ?", stepExecution.ID, stepExecution.Version).
		Updates(map[string]interface{}{
			"status":             string(stepExecution.Status),
			"exit_code":          stepExecution.ExitStatus.ExitCode,
			"exit_description":   stepExecution.ExitStatus.ExitDescription,
			"read_count":         stepExecution.ReadCount,
			"write_count":        stepExecution.WriteCount,
			"commit_count":       stepExecution.CommitCount,
			"rollback_count":     stepExecution.RollbackCount,
			"filter_count":       stepExecution.FilterCount,
			"read_skip_count":    stepExecution.ReadSkipCount,
			"process_skip_count": stepExecution.ProcessSkipCount,
			"write_skip_count":   stepExecution.WriteSkipCount,
			"start_time":         optionalTime(stepExecution.StartTime),
			"end_time":           stepExecution.EndTime,
			"last_updated":       now,
			"failures":           stepExecution.Failures,
			"version":            stepExecution.Version + 1,
		})
	if result.Error != nil {
		return dbError(conn, "failed to update step execution", result.Error)
	}
	if result.RowsAffected == 0 {
		exists, err := r.rowExists(db, &StepExecutionEntity{}, stepExecution.ID)
		if err != nil {
			return dbError(conn, "failed to check step execution", err)
		}
		if !exists {
			return repository.NewError(repository.ErrStepExecutionNotFound, "step execution %s not found for update", stepExecution.ID)
		}
		return exception.NewOptimisticLockingFailureException(module, "step execution "+stepExecution.ID+" was updated by another writer", nil)
	}

	stepExecution.Version++
	stepExecution.LastUpdated = now
	return nil
}

// UpdateStepExecutionContext stores only the step execution context. The last write wins.
func (r *SQLJobRepository) UpdateStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error {
	if stepExecution.ID == "" {
		return repository.NewError(repository.ErrUnassignedID, "step execution '%s' must be added before its context is saved", stepExecution.StepName)
	}
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return err
	}
	result := db.Model(&StepExecutionEntity{}).Where("id = ?", stepExecution.ID).Update("execution_context", stepExecution.ExecutionContext)
	if result.Error != nil {
		return dbError(conn, "failed to save step execution context", result.Error)
	}
	if result.RowsAffected == 0 {
		exists, err := r.rowExists(db, &StepExecutionEntity{}, stepExecution.ID)
		if err != nil {
			return dbError(conn, "failed to check step execution", err)
		}
		if !exists {
			return repository.NewError(repository.ErrStepExecutionNotFound, "step execution %s not found", stepExecution.ID)
		}
	}
	return nil
}

// GetStepExecution returns a step execution linked to its job execution.
func (r *SQLJobRepository) GetStepExecution(ctx context.Context, jobExecutionID, stepExecutionID string) (*model.StepExecution, error) {
	je, err := r.GetJobExecution(ctx, jobExecutionID)
	if err != nil {
		if errors.Is(err, repository.ErrJobExecutionNotFound) {
			return nil, repository.NewError(repository.ErrStepExecutionNotFound, "step execution %s not found in job execution %s", stepExecutionID, jobExecutionID)
		}
		return nil, err
	}
	for _, se := range je.StepExecutions {
		if se.ID == stepExecutionID {
			return se, nil
		}
	}
	return nil, repository.NewError(repository.ErrStepExecutionNotFound, "step execution %s not found in job execution %s", stepExecutionID, jobExecutionID)
}

// GetLastStepExecution returns the newest execution of stepName for the instance, or nil.
// Executions are ordered by the execution number of their parent, then by creation time.
func (r *SQLJobRepository) GetLastStepExecution(ctx context.Context, instance *model.JobInstance, stepName string) (*model.StepExecution, error) {
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return nil, err
	}
	var entities []StepExecutionEntity
	err = db.Table(StepExecutionEntity{}.TableName()+" AS s").
		Select("s.*").
		Joins("JOIN "+JobExecutionEntity{}.TableName()+" AS e ON e.id = s.job_execution_id").
		Where("e.job_instance_id = ? AND s.step_name = ?", instance.ID, stepName).
		Order("e.execution_number DESC").
		Order("s.create_time DESC").
		Limit(1).
		Find(&entities).Error
	if err != nil {
		return nil, dbError(conn, "failed to load last step execution", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return r.GetStepExecution(ctx, entities[0].JobExecutionID, entities[0].ID)
}

// GetStepExecutionCount returns how many times stepName ran for the instance.
func (r *SQLJobRepository) GetStepExecutionCount(ctx context.Context, instance *model.JobInstance, stepName string) (int, error) {
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.Model(&StepExecutionEntity{}).
		Where("step_name = ? AND job_execution_id IN (?)", stepName,
			db.Model(&JobExecutionEntity{}).Select("id").Where("job_instance_id = ?", instance.ID)).
		Count(&n).Error
	if err != nil {
		return 0, dbError(conn, "failed to count step executions", err)
	}
	return int(n), nil
}

// attachStepExecutions loads the step executions of je in creation order.
func (r *SQLJobRepository) attachStepExecutions(ctx context.Context, conn database.DBConnection, je *model.JobExecution) error {
	var entities []StepExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_execution_id": je.ID}, "create_time ASC", 0); err != nil {
		return dbError(conn, "failed to load step executions", err)
	}
	for i := range entities {
		je.AddStepExecution(toDomainStepExecution(&entities[i]))
	}
	return nil
}
