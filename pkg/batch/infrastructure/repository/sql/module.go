package sql

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-engine/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
)

// NewJobRepositoryProvider creates the repository on the datasource named by
// surfin.infrastructure.job_repository.db_ref.
func NewJobRepositoryProvider(cfg *config.Config, resolver database.DBConnectionResolver) repository.JobRepository {
	return NewSQLJobRepository(resolver, cfg.Surfin.Infrastructure.JobRepository.DBRef)
}

// NewTransactionManagerProvider binds chunk transactions to the same datasource.
func NewTransactionManagerProvider(cfg *config.Config, factory *gormadapter.TransactionManagerFactory) tx.TransactionManager {
	return factory.NewTransactionManager(cfg.Surfin.Infrastructure.JobRepository.DBRef)
}

// Module provides the SQL JobRepository and a gorm TransactionManager.
// It expects gormadapter.Module and at least one dialect module.
var Module = fx.Options(
	fx.Provide(
		NewJobRepositoryProvider,
		NewTransactionManagerProvider,
	),
)
