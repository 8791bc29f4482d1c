package mysql

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-engine/pkg/batch/adapter/database"
)

// Module provides the MySQL DBProvider into the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
