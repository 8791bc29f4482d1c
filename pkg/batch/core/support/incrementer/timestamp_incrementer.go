package incrementer

import (
	"fmt"
	"time"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// TimestampIncrementer sets an identifying LONG parameter to the current Unix milliseconds.
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer creates a new instance of TimestampIncrementer. An empty name uses "timestamp".
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	if name == "" {
		name = "timestamp"
	}
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext returns params with the timestamp replaced.
func (i *TimestampIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	timestamp := i.now().UnixMilli()
	logger.Debugf("JobParametersIncrementer '%s': setting '%s' to %d.", i, i.name, timestamp)
	return model.NewJobParametersBuilderFrom(params).AddLong(i.name, timestamp).ToJobParameters()
}

// String returns the string representation of TimestampIncrementer.
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*TimestampIncrementer)(nil)
