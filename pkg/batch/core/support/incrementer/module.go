package incrementer

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
)

// Module provides the default incrementers under the names "runIdIncrementer" and "timestampIncrementer".
var Module = fx.Provide(
	fx.Annotate(
		func() port.JobParametersIncrementer { return NewRunIDIncrementer(DefaultRunIDKey) },
		fx.ResultTags(`name:"runIdIncrementer"`),
	),
	fx.Annotate(
		func() port.JobParametersIncrementer { return NewTimestampIncrementer("timestamp") },
		fx.ResultTags(`name:"timestampIncrementer"`),
	),
)
