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
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

var runningStatuses = []string{
	string(model.BatchStatusStarting),
	string(model.BatchStatusStarted),
	string(model.BatchStatusStopping),
}

// CreateJobExecution runs the launch check in one database transaction. Two launches racing on one
// identity collide on a unique index, either (job_name, job_key) or (job_instance_id, execution_number).
// The loser re-runs the check once, now seeing the winner's execution, and reports why it lost.
func (r *SQLJobRepository) CreateJobExecution(ctx context.Context, jobName string, params model.JobParameters, restartable bool) (*model.JobExecution, error) {
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return nil, err
	}

	var created *model.JobExecution
	attempt := func() error {
		return db.Transaction(func(txDB *gorm.DB) error {
			var txErr error
			created, txErr = createJobExecutionTx(txDB, jobName, params, restartable)
			return txErr
		})
	}

	err = attempt()
	if err != nil && !isLaunchRejection(err) && conn.IsDuplicateKeyError(err) {
		logger.Debugf("Concurrent launch detected for job '%s' (%s). Re-checking the instance.", jobName, params.Identifying())
		err = attempt()
	}
	if err != nil {
		if isLaunchRejection(err) {
			return nil, err
		}
		if conn.IsDuplicateKeyError(err) {
			return nil, repository.NewError(repository.ErrJobExecutionAlreadyRunning, "job '%s' with parameters %s was launched concurrently", jobName, params.Identifying())
		}
		return nil, dbError(conn, "failed to create job execution", err)
	}

	logger.Debugf("Created JobExecution (ID: %s) for JobInstance (ID: %s, job: %s).", created.ID, created.JobInstanceID, jobName)
	return created, nil
}

func isLaunchRejection(err error) bool {
	return errors.Is(err, repository.ErrJobExecutionAlreadyRunning) ||
		errors.Is(err, repository.ErrJobInstanceAlreadyComplete) ||
		errors.Is(err, repository.ErrJobRestart)
}

func createJobExecutionTx(db *gorm.DB, jobName string, params model.JobParameters, restartable bool) (*model.JobExecution, error) {
	var instances []JobInstanceEntity
	if err := db.Where("job_name = ? AND job_key = ?", jobName, params.InstanceKey()).Limit(1).Find(&instances).Error; err != nil {
		return nil, err
	}

	var instanceID string
	executionNumber := 1
	executionContext := model.NewExecutionContext()

	if len(instances) == 0 {
		entity := newJobInstanceEntity(jobName, params)
		if err := db.Create(entity).Error; err != nil {
			return nil, err
		}
		instanceID = entity.ID
	} else {
		instanceID = instances[0].ID
		var last []JobExecutionEntity
		if err := db.Where("job_instance_id = ?", instanceID).Order("execution_number DESC").Limit(1).Find(&last).Error; err != nil {
			return nil, err
		}
		if len(last) > 0 {
			lastExecution := toDomainJobExecution(&last[0])
			if err := repository.CheckRestartable(jobName, lastExecution, restartable); err != nil {
				return nil, err
			}
			executionNumber = last[0].ExecutionNumber + 1
			executionContext = lastExecution.ExecutionContext.Copy()
		}
	}

	je := model.NewJobExecution(instanceID, jobName, params)
	je.ID = model.NewID()
	je.ExecutionContext = executionContext
	if err := db.Create(fromDomainJobExecution(je, executionNumber)).Error; err != nil {
		return nil, err
	}
	return je, nil
}

// UpdateJobExecution stores everything but the execution context. The row is matched on its
// version, so a writer holding a stale copy gets an optimistic locking failure.
func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	if jobExecution.ID == "" {
		return repository.NewError(repository.ErrUnassignedID, "job execution of '%s' must be created before it is updated", jobExecution.JobName)
	}
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	result := db.Model(&JobExecutionEntity{}).
		Where("id = ? AND version = ?", jobExecution.ID, jobExecution.Version).
		Updates(map[string]interface{}{
			"status":           string(jobExecution.Status),
			"exit_code":        jobExecution.ExitStatus.ExitCode,
			"exit_description": jobExecution.ExitStatus.ExitDescription,
			"start_time":       optionalTime(jobExecution.StartTime),
			"end_time":         jobExecution.EndTime,
			"last_updated":     now,
			"failures":         jobExecution.Failures,
			"version":          jobExecution.Version + 1,
		})
	if result.Error != nil {
		return dbError(conn, "failed to update job execution", result.Error)
	}
	if result.RowsAffected == 0 {
		exists, err := r.rowExists(db, &JobExecutionEntity{}, jobExecution.ID)
		if err != nil {
			return dbError(conn, "failed to check job execution", err)
		}
		if !exists {
			return repository.NewError(repository.ErrJobExecutionNotFound, "job execution %s not found for update", jobExecution.ID)
		}
		return exception.NewOptimisticLockingFailureException(module, "job execution "+jobExecution.ID+" was updated by another writer", nil)
	}

	jobExecution.Version++
	jobExecution.LastUpdated = now
	return nil
}

// UpdateJobExecutionContext stores only the execution context. The last write wins.
func (r *SQLJobRepository) UpdateJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error {
	if jobExecution.ID == "" {
		return repository.NewError(repository.ErrUnassignedID, "job execution of '%s' must be created before its context is saved", jobExecution.JobName)
	}
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return err
	}
	result := db.Model(&JobExecutionEntity{}).Where("id = ?", jobExecution.ID).Update("execution_context", jobExecution.ExecutionContext)
	if result.Error != nil {
		return dbError(conn, "failed to save job execution context", result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL reports zero rows when the value did not change.
		exists, err := r.rowExists(db, &JobExecutionEntity{}, jobExecution.ID)
		if err != nil {
			return dbError(conn, "failed to check job execution", err)
		}
		if !exists {
			return repository.NewError(repository.ErrJobExecutionNotFound, "job execution %s not found", jobExecution.ID)
		}
	}
	return nil
}

// SynchronizeStatus upgrades jobExecution with a newer stored status, such as a STOPPING written by an operator.
func (r *SQLJobRepository) SynchronizeStatus(ctx context.Context, jobExecution *model.JobExecution) error {
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return err
	}
	var rows []JobExecutionEntity
	if err := db.Select("id", "status", "version").Where("id = ?", jobExecution.ID).Limit(1).Find(&rows).Error; err != nil {
		return dbError(conn, "failed to read job execution status", err)
	}
	if len(rows) == 0 {
		return repository.NewError(repository.ErrJobExecutionNotFound, "job execution %s not found", jobExecution.ID)
	}
	if rows[0].Version > jobExecution.Version {
		jobExecution.Status = jobExecution.Status.UpgradeTo(model.BatchStatus(rows[0].Status))
		jobExecution.Version = rows[0].Version
	}
	return nil
}

// GetJobExecution returns the execution with its step executions.
func (r *SQLJobRepository) GetJobExecution(ctx context.Context, id string) (*model.JobExecution, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		return nil, dbError(conn, "failed to load job execution", err)
	}
	if len(entities) == 0 {
		return nil, repository.NewError(repository.ErrJobExecutionNotFound, "job execution %s not found", id)
	}
	je := toDomainJobExecution(&entities[0])
	if err := r.attachStepExecutions(ctx, conn, je); err != nil {
		return nil, err
	}
	return je, nil
}

// GetLastJobExecution returns the newest execution of the job identity, or nil.
func (r *SQLJobRepository) GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	instance, err := r.FindJobInstance(ctx, jobName, params)
	if err != nil || instance == nil {
		return nil, err
	}
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_instance_id": instance.ID}, "execution_number DESC", 1); err != nil {
		return nil, dbError(conn, "failed to load last job execution", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	je := toDomainJobExecution(&entities[0])
	if err := r.attachStepExecutions(ctx, conn, je); err != nil {
		return nil, err
	}
	return je, nil
}

// FindJobExecutions returns the executions of an instance, newest first.
func (r *SQLJobRepository) FindJobExecutions(ctx context.Context, instance *model.JobInstance) ([]*model.JobExecution, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_instance_id": instance.ID}, "execution_number DESC", 0); err != nil {
		return nil, dbError(conn, "failed to list job executions", err)
	}
	return r.assemble(ctx, conn, entities)
}

// FindRunningJobExecutions returns the STARTING, STARTED and STOPPING executions of a job, oldest first.
func (r *SQLJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobExecutionEntity
	query := map[string]interface{}{"job_name": jobName, "status": runningStatuses}
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, query, "create_time ASC", 0); err != nil {
		return nil, dbError(conn, "failed to list running job executions", err)
	}
	return r.assemble(ctx, conn, entities)
}

func (r *SQLJobRepository) assemble(ctx context.Context, conn database.DBConnection, entities []JobExecutionEntity) ([]*model.JobExecution, error) {
	out := make([]*model.JobExecution, 0, len(entities))
	for i := range entities {
		je := toDomainJobExecution(&entities[i])
		if err := r.attachStepExecutions(ctx, conn, je); err != nil {
			return nil, err
		}
		out = append(out, je)
	}
	return out, nil
}

func (r *SQLJobRepository) rowExists(db *gorm.DB, entity interface{}, id string) (bool, error) {
	var n int64
	if err := db.Model(entity).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
