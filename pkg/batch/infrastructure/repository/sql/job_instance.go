package sql

import (
	"context"
	"sort"

	"github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
)

// JobInstanceExists reports whether the job identity has an instance.
func (r *SQLJobRepository) JobInstanceExists(ctx context.Context, jobName string, params model.JobParameters) (bool, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return false, err
	}
	n, err := conn.Count(ctx, &JobInstanceEntity{}, map[string]interface{}{"job_name": jobName, "job_key": params.InstanceKey()})
	if err != nil {
		return false, dbError(conn, "failed to count job instances", err)
	}
	return n > 0, nil
}

// CreateJobInstance inserts a new instance. The unique index on (job_name, job_key) rejects duplicates.
func (r *SQLJobRepository) CreateJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	entity := newJobInstanceEntity(jobName, params)
	if _, err := conn.ExecuteUpdate(ctx, entity, tx.OperationCreate, entity.TableName(), nil); err != nil {
		if conn.IsDuplicateKeyError(err) {
			return nil, repository.NewError(repository.ErrJobInstanceAlreadyExists, "a job instance already exists for job '%s' and parameters %s", jobName, params.Identifying())
		}
		return nil, dbError(conn, "failed to create job instance", err)
	}
	return toDomainJobInstance(entity), nil
}

// GetJobInstance returns the instance with the given ID.
func (r *SQLJobRepository) GetJobInstance(ctx context.Context, id string) (*model.JobInstance, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobInstanceEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		return nil, dbError(conn, "failed to load job instance", err)
	}
	if len(entities) == 0 {
		return nil, repository.NewError(repository.ErrJobInstanceNotFound, "job instance %s not found", id)
	}
	return toDomainJobInstance(&entities[0]), nil
}

// FindJobInstance returns the instance for the job identity, or nil.
func (r *SQLJobRepository) FindJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobInstanceEntity
	query := map[string]interface{}{"job_name": jobName, "job_key": params.InstanceKey()}
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, query, "", 1); err != nil {
		return nil, dbError(conn, "failed to find job instance", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return toDomainJobInstance(&entities[0]), nil
}

// FindJobInstancesByName pages through the instances of a job, newest first.
func (r *SQLJobRepository) FindJobInstancesByName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	db, conn, err := r.gormDB(ctx)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		start = 0
	}
	q := db.Where("job_name = ?", jobName).Order("create_time DESC").Offset(start)
	if count > 0 {
		q = q.Limit(count)
	}
	var entities []JobInstanceEntity
	if err := q.Find(&entities).Error; err != nil {
		return nil, dbError(conn, "failed to list job instances", err)
	}
	out := make([]*model.JobInstance, 0, len(entities))
	for i := range entities {
		out = append(out, toDomainJobInstance(&entities[i]))
	}
	return out, nil
}

// GetJobInstanceCount returns how many instances the job has.
func (r *SQLJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.Count(ctx, &JobInstanceEntity{}, map[string]interface{}{"job_name": jobName})
	if err != nil {
		return 0, dbError(conn, "failed to count job instances", err)
	}
	return int(n), nil
}

// GetJobNames returns the sorted distinct job names.
func (r *SQLJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0)
	if err := conn.Pluck(ctx, &JobInstanceEntity{}, "job_name", &names, nil); err != nil {
		return nil, dbError(conn, "failed to list job names", err)
	}
	sort.Strings(names)
	return names, nil
}

func newJobInstanceEntity(jobName string, params model.JobParameters) *JobInstanceEntity {
	instance := model.NewJobInstance(jobName, params)
	instance.ID = model.NewID()
	return fromDomainJobInstance(instance)
}
