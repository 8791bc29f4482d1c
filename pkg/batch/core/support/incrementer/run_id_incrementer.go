// Package incrementer provides port.JobParametersIncrementer implementations used to
// start a new job instance from the parameters of the last one.
package incrementer

import (
	"fmt"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// DefaultRunIDKey is the parameter RunIDIncrementer maintains unless told otherwise.
const DefaultRunIDKey = "run.id"

// RunIDIncrementer adds or increments an identifying LONG parameter, "run.id" by default.
// It sets the parameter to 1 if it does not exist.
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer creates a new instance of RunIDIncrementer. An empty name uses DefaultRunIDKey.
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{name: name}
}

// GetNext returns params with the run id incremented. Other parameters are kept.
func (i *RunIDIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	next := int64(1)
	if current, ok := params.GetLong(i.name); ok {
		next = current + 1
	}
	logger.Debugf("JobParametersIncrementer '%s': setting '%s' to %d.", i, i.name, next)
	return model.NewJobParametersBuilderFrom(params).AddLong(i.name, next).ToJobParameters()
}

// String returns the string representation of RunIDIncrementer.
func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*RunIDIncrementer)(nil)
