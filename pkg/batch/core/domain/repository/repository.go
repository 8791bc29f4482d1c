// Package repository defines the persistence contract for batch execution metadata.
package repository

// JobRepository stores job instances, job executions and step executions.
// Implementations must make CreateJobExecution atomic per job identity.
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution

	// Close releases resources held by the repository.
	Close() error
}
