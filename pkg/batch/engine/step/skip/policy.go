// Package skip decides which item faults a chunk step may tolerate.
package skip

import (
	"github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// SkipPolicy classifies item faults and holds the skip budget of a step.
type SkipPolicy interface {
	// Category returns the budget key of err, the registered name of its fault category.
	Category(err error) string
	// IsSkippable reports whether err is of a kind that may be skipped at all.
	IsSkippable(err error) bool
	// ShouldSkip reports whether err may be skipped when skipped items of the same
	// category have already been skipped in the current step execution.
	ShouldSkip(err error, skipped int) bool
	// Limit returns the budget of a category.
	Limit(category string) int
}

// DefaultSkipPolicyFactory creates SkipPolicy instances from configuration.
type DefaultSkipPolicyFactory struct{}

// NewDefaultSkipPolicyFactory creates a new DefaultSkipPolicyFactory.
func NewDefaultSkipPolicyFactory() *DefaultSkipPolicyFactory {
	return &DefaultSkipPolicyFactory{}
}

// Create returns a policy for cfg. SkipLimit is the budget of every category that has
// no entry in CategoryLimits. A limit of 0 disables skipping.
func (f *DefaultSkipPolicyFactory) Create(cfg config.ItemSkipConfig) SkipPolicy {
	limits := make(map[string]int, len(cfg.CategoryLimits))
	for name, limit := range cfg.CategoryLimits {
		limits[name] = limit
	}
	return &defaultSkipPolicy{
		skipLimit:           cfg.SkipLimit,
		categoryLimits:      limits,
		skippableExceptions: append([]string(nil), cfg.SkippableExceptions...),
	}
}

// NeverSkipPolicy returns a policy that skips nothing.
func NeverSkipPolicy() SkipPolicy {
	return &defaultSkipPolicy{}
}

type defaultSkipPolicy struct {
	skipLimit           int
	categoryLimits      map[string]int
	skippableExceptions []string
}

func (p *defaultSkipPolicy) Category(err error) string {
	return exception.CategoryName(err)
}

// IsSkippable holds for errors flagged skippable, errors matching a configured
// exception name and errors of a category with its own limit. Fatal errors never are.
func (p *defaultSkipPolicy) IsSkippable(err error) bool {
	if err == nil || exception.IsFatal(err) {
		return false
	}
	if be, ok := err.(*exception.BatchError); ok && be.IsSkippable() {
		return true
	}
	category := p.Category(err)
	if _, ok := p.categoryLimits[category]; ok {
		return true
	}
	for _, typeName := range p.skippableExceptions {
		if typeName == category || exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultSkipPolicy) ShouldSkip(err error, skipped int) bool {
	if !p.IsSkippable(err) {
		return false
	}
	return skipped < p.Limit(p.Category(err))
}

func (p *defaultSkipPolicy) Limit(category string) int {
	if limit, ok := p.categoryLimits[category]; ok {
		return limit
	}
	return p.skipLimit
}

var _ SkipPolicy = (*defaultSkipPolicy)(nil)
