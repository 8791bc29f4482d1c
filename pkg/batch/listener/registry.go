// Package listener dispatches job, step, chunk and item events to registered listeners.
package listener

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// Registry sorts listeners by the interfaces they implement and invokes them in
// registration order. A nil *Registry has no listeners.
type Registry struct {
	job     []port.JobExecutionListener
	step    []port.StepExecutionListener
	chunk   []port.ChunkListener
	read    []port.ItemReadListener
	process []port.ItemProcessListener
	write   []port.ItemWriteListener
	skip    []port.SkipListener
	retry   []port.RetryListener
}

// NewRegistry creates a registry holding listeners.
func NewRegistry(listeners ...port.StepListener) *Registry {
	r := &Registry{}
	for _, l := range listeners {
		r.Register(l)
	}
	return r
}

// Register adds l under every listener interface it implements. It reports whether l
// implemented at least one of them.
func (r *Registry) Register(l port.StepListener) bool {
	matched := false
	if v, ok := l.(port.JobExecutionListener); ok {
		r.job = append(r.job, v)
		matched = true
	}
	if v, ok := l.(port.StepExecutionListener); ok {
		r.step = append(r.step, v)
		matched = true
	}
	if v, ok := l.(port.ChunkListener); ok {
		r.chunk = append(r.chunk, v)
		matched = true
	}
	if v, ok := l.(port.ItemReadListener); ok {
		r.read = append(r.read, v)
		matched = true
	}
	if v, ok := l.(port.ItemProcessListener); ok {
		r.process = append(r.process, v)
		matched = true
	}
	if v, ok := l.(port.ItemWriteListener); ok {
		r.write = append(r.write, v)
		matched = true
	}
	if v, ok := l.(port.SkipListener); ok {
		r.skip = append(r.skip, v)
		matched = true
	}
	if v, ok := l.(port.RetryListener); ok {
		r.retry = append(r.retry, v)
		matched = true
	}
	if !matched {
		logger.Warnf("Listener %T implements no listener interface and is ignored.", l)
	}
	return matched
}

// With returns a new registry holding the listeners of r followed by those of other.
func (r *Registry) With(other *Registry) *Registry {
	out := &Registry{}
	for _, src := range []*Registry{r, other} {
		if src == nil {
			continue
		}
		out.job = append(out.job, src.job...)
		out.step = append(out.step, src.step...)
		out.chunk = append(out.chunk, src.chunk...)
		out.read = append(out.read, src.read...)
		out.process = append(out.process, src.process...)
		out.write = append(out.write, src.write...)
		out.skip = append(out.skip, src.skip...)
		out.retry = append(out.retry, src.retry...)
	}
	return out
}

// HasItemListeners reports whether any read, process or write listener is registered.
func (r *Registry) HasItemListeners() bool {
	return r != nil && (len(r.read) > 0 || len(r.process) > 0 || len(r.write) > 0)
}

func logErrors(event string, result *multierror.Error) {
	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Listener errors in %s: %v", event, err)
	}
}

// BeforeJob calls every job listener and returns their combined errors.
func (r *Registry) BeforeJob(ctx context.Context, je *model.JobExecution) error {
	if r == nil {
		return nil
	}
	var result *multierror.Error
	for _, l := range r.job {
		if err := l.BeforeJob(ctx, je); err != nil {
			result = multierror.Append(result, fmt.Errorf("%T: %w", l, err))
		}
	}
	return result.ErrorOrNil()
}

// AfterJob calls every job listener. Errors are logged.
func (r *Registry) AfterJob(ctx context.Context, je *model.JobExecution) {
	if r == nil {
		return
	}
	var result *multierror.Error
	for _, l := range r.job {
		if err := l.AfterJob(ctx, je); err != nil {
			result = multierror.Append(result, fmt.Errorf("%T: %w", l, err))
		}
	}
	logErrors("AfterJob", result)
}

// BeforeStep calls every step listener and returns their combined errors.
func (r *Registry) BeforeStep(ctx context.Context, se *model.StepExecution) error {
	if r == nil {
		return nil
	}
	var result *multierror.Error
	for _, l := range r.step {
		if err := l.BeforeStep(ctx, se); err != nil {
			result = multierror.Append(result, fmt.Errorf("%T: %w", l, err))
		}
	}
	return result.ErrorOrNil()
}

// AfterStep calls every step listener and merges the exit statuses they return.
// It returns nil when no listener returned one. Errors are logged.
func (r *Registry) AfterStep(ctx context.Context, se *model.StepExecution) *model.ExitStatus {
	if r == nil {
		return nil
	}
	var merged *model.ExitStatus
	var result *multierror.Error
	for _, l := range r.step {
		exitStatus, err := l.AfterStep(ctx, se)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%T: %w", l, err))
			continue
		}
		if exitStatus == nil {
			continue
		}
		if merged == nil {
			es := *exitStatus
			merged = &es
		} else {
			es := merged.And(*exitStatus)
			merged = &es
		}
	}
	logErrors("AfterStep", result)
	return merged
}

// BeforeChunk calls every chunk listener. Errors are logged.
func (r *Registry) BeforeChunk(ctx context.Context, se *model.StepExecution) {
	if r == nil {
		return
	}
	var result *multierror.Error
	for _, l := range r.chunk {
		if err := l.BeforeChunk(ctx, se); err != nil {
			result = multierror.Append(result, err)
		}
	}
	logErrors("BeforeChunk", result)
}

// AfterChunk calls every chunk listener. Errors are logged.
func (r *Registry) AfterChunk(ctx context.Context, se *model.StepExecution) {
	if r == nil {
		return
	}
	var result *multierror.Error
	for _, l := range r.chunk {
		if err := l.AfterChunk(ctx, se); err != nil {
			result = multierror.Append(result, err)
		}
	}
	logErrors("AfterChunk", result)
}

// AfterChunkError calls every chunk listener after a rollback. Errors are logged.
func (r *Registry) AfterChunkError(ctx context.Context, se *model.StepExecution, cause error) {
	if r == nil {
		return
	}
	var result *multierror.Error
	for _, l := range r.chunk {
		if err := l.AfterChunkError(ctx, se, cause); err != nil {
			result = multierror.Append(result, err)
		}
	}
	logErrors("AfterChunkError", result)
}

func (r *Registry) BeforeRead(ctx context.Context) {
	if r == nil {
		return
	}
	for _, l := range r.read {
		l.BeforeRead(ctx)
	}
}

func (r *Registry) AfterRead(ctx context.Context, item interface{}) {
	if r == nil {
		return
	}
	for _, l := range r.read {
		l.AfterRead(ctx, item)
	}
}

func (r *Registry) OnReadError(ctx context.Context, err error) {
	if r == nil {
		return
	}
	for _, l := range r.read {
		l.OnReadError(ctx, err)
	}
}

func (r *Registry) BeforeProcess(ctx context.Context, item interface{}) {
	if r == nil {
		return
	}
	for _, l := range r.process {
		l.BeforeProcess(ctx, item)
	}
}

func (r *Registry) AfterProcess(ctx context.Context, item, result interface{}) {
	if r == nil {
		return
	}
	for _, l := range r.process {
		l.AfterProcess(ctx, item, result)
	}
}

func (r *Registry) OnProcessError(ctx context.Context, item interface{}, err error) {
	if r == nil {
		return
	}
	for _, l := range r.process {
		l.OnProcessError(ctx, item, err)
	}
}

func (r *Registry) BeforeWrite(ctx context.Context, items []interface{}) {
	if r == nil {
		return
	}
	for _, l := range r.write {
		l.BeforeWrite(ctx, items)
	}
}

func (r *Registry) AfterWrite(ctx context.Context, items []interface{}) {
	if r == nil {
		return
	}
	for _, l := range r.write {
		l.AfterWrite(ctx, items)
	}
}

func (r *Registry) OnWriteError(ctx context.Context, items []interface{}, err error) {
	if r == nil {
		return
	}
	for _, l := range r.write {
		l.OnWriteError(ctx, items, err)
	}
}

// OnSkipInRead notifies skip listeners of a skipped read failure.
func (r *Registry) OnSkipInRead(ctx context.Context, err error) {
	if r == nil {
		return
	}
	for _, l := range r.skip {
		l.OnSkipInRead(ctx, err)
	}
}

// OnSkipInProcess notifies skip listeners of an item skipped during processing.
func (r *Registry) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	if r == nil {
		return
	}
	for _, l := range r.skip {
		l.OnSkipInProcess(ctx, item, err)
	}
}

// OnSkipInWrite notifies skip listeners of an item skipped during writing.
func (r *Registry) OnSkipInWrite(ctx context.Context, item interface{}, err error) {
	if r == nil {
		return
	}
	for _, l := range r.skip {
		l.OnSkipInWrite(ctx, item, err)
	}
}

// OnRetry notifies retry listeners before a retry.
func (r *Registry) OnRetry(ctx context.Context, attempt int, item interface{}, err error) {
	if r == nil {
		return
	}
	for _, l := range r.retry {
		l.OnRetry(ctx, attempt, item, err)
	}
}
