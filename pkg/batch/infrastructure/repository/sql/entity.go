package sql

import (
	"time"

	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
)

// JobInstanceEntity is the persisted form of model.JobInstance.
type JobInstanceEntity struct {
	ID         string              `gorm:"column:id;primaryKey;size:36"`
	JobName    string              `gorm:"column:job_name;size:100;not null;uniqueIndex:ux_batch_job_instance_key,priority:1"`
	JobKey     string              `gorm:"column:job_key;size:64;not null;uniqueIndex:ux_batch_job_instance_key,priority:2"`
	Parameters model.JobParameters `gorm:"column:parameters;type:text"`
	CreateTime time.Time           `gorm:"column:create_time;not null"`
	Version    int                 `gorm:"column:version;not null;default:0"`
}

func (JobInstanceEntity) TableName() string {
	return "batch_job_instance"
}

// JobExecutionEntity is the persisted form of model.JobExecution. ExecutionNumber counts the
// executions of one instance; its unique index rejects a second concurrent launch.
type JobExecutionEntity struct {
	ID               string                 `gorm:"column:id;primaryKey;size:36"`
	JobInstanceID    string                 `gorm:"column:job_instance_id;size:36;not null;uniqueIndex:ux_batch_job_execution_number,priority:1"`
	ExecutionNumber  int                    `gorm:"column:execution_number;not null;uniqueIndex:ux_batch_job_execution_number,priority:2"`
	JobName          string                 `gorm:"column:job_name;size:100;not null;index:ix_batch_job_execution_status,priority:1"`
	Parameters       model.JobParameters    `gorm:"column:parameters;type:text"`
	Status           string                 `gorm:"column:status;size:20;not null;index:ix_batch_job_execution_status,priority:2"`
	ExitCode         string                 `gorm:"column:exit_code;size:100;not null"`
	ExitDescription  string                 `gorm:"column:exit_description;type:text"`
	CreateTime       time.Time              `gorm:"column:create_time;not null"`
	StartTime        *time.Time             `gorm:"column:start_time"`
	EndTime          *time.Time             `gorm:"column:end_time"`
	LastUpdated      time.Time              `gorm:"column:last_updated;not null"`
	ExecutionContext model.ExecutionContext `gorm:"column:execution_context;type:text"`
	Failures         model.FailureList      `gorm:"column:failures;type:text"`
	Version          int                    `gorm:"column:version;not null;default:0"`
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is the persisted form of model.StepExecution.
type StepExecutionEntity struct {
	ID               string                 `gorm:"column:id;primaryKey;size:36"`
	JobExecutionID   string                 `gorm:"column:job_execution_id;size:36;not null;index:ix_batch_step_execution_parent,priority:1"`
	StepName         string                 `gorm:"column:step_name;size:100;not null;index:ix_batch_step_execution_parent,priority:2"`
	Status           string                 `gorm:"column:status;size:20;not null"`
	ExitCode         string                 `gorm:"column:exit_code;size:100;not null"`
	ExitDescription  string                 `gorm:"column:exit_description;type:text"`
	ReadCount        int                    `gorm:"column:read_count;not null;default:0"`
	WriteCount       int                    `gorm:"column:write_count;not null;default:0"`
	CommitCount      int                    `gorm:"column:commit_count;not null;default:0"`
	RollbackCount    int                    `gorm:"column:rollback_count;not null;default:0"`
	FilterCount      int                    `gorm:"column:filter_count;not null;default:0"`
	ReadSkipCount    int                    `gorm:"column:read_skip_count;not null;default:0"`
	ProcessSkipCount int                    `gorm:"column:process_skip_count;not null;default:0"`
	WriteSkipCount   int                    `gorm:"column:write_skip_count;not null;default:0"`
	CreateTime       time.Time              `gorm:"column:create_time;not null"`
	StartTime        *time.Time             `gorm:"column:start_time"`
	EndTime          *time.Time             `gorm:"column:end_time"`
	LastUpdated      time.Time              `gorm:"column:last_updated;not null"`
	ExecutionContext model.ExecutionContext `gorm:"column:execution_context;type:text"`
	Failures         model.FailureList      `gorm:"column:failures;type:text"`
	Version          int                    `gorm:"column:version;not null;default:0"`
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
