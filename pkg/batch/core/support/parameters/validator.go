package parameters

import (
	"fmt"
	"sort"
	"strings"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// DefaultJobParametersValidator checks that required keys are present. When optional keys
// are declared, any key that is neither required nor optional is rejected.
type DefaultJobParametersValidator struct {
	RequiredKeys []string
	OptionalKeys []string
}

// NewDefaultJobParametersValidator creates a validator for the given keys.
func NewDefaultJobParametersValidator(requiredKeys, optionalKeys []string) *DefaultJobParametersValidator {
	return &DefaultJobParametersValidator{RequiredKeys: requiredKeys, OptionalKeys: optionalKeys}
}

// Validate returns an error wrapping port.ErrJobParametersInvalid that lists every problem found.
func (v *DefaultJobParametersValidator) Validate(params model.JobParameters) error {
	var missing, unexpected []string
	for _, key := range v.RequiredKeys {
		if _, ok := params.Get(key); !ok {
			missing = append(missing, key)
		}
	}
	if len(v.OptionalKeys) > 0 {
		allowed := make(map[string]bool, len(v.RequiredKeys)+len(v.OptionalKeys))
		for _, key := range append(append([]string(nil), v.RequiredKeys...), v.OptionalKeys...) {
			allowed[key] = true
		}
		for _, key := range params.Keys() {
			if !allowed[key] {
				unexpected = append(unexpected, key)
			}
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("missing required keys [%s]", strings.Join(missing, ", ")))
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		problems = append(problems, fmt.Sprintf("unexpected keys [%s]", strings.Join(unexpected, ", ")))
	}
	return exception.NewBatchError("JobParametersValidator", strings.Join(problems, "; "), port.ErrJobParametersInvalid, false, false)
}

// CompositeJobParametersValidator runs validators in order and returns the first error.
type CompositeJobParametersValidator struct {
	validators []port.JobParametersValidator
}

// NewCompositeJobParametersValidator combines validators. nil entries are ignored.
func NewCompositeJobParametersValidator(validators ...port.JobParametersValidator) *CompositeJobParametersValidator {
	c := &CompositeJobParametersValidator{}
	for _, v := range validators {
		if v != nil {
			c.validators = append(c.validators, v)
		}
	}
	return c
}

func (c *CompositeJobParametersValidator) Validate(params model.JobParameters) error {
	for _, v := range c.validators {
		if err := v.Validate(params); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ port.JobParametersValidator = (*DefaultJobParametersValidator)(nil)
	_ port.JobParametersValidator = (*CompositeJobParametersValidator)(nil)
)
