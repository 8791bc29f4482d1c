// Package item implements the chunk-oriented step: items are read, processed and
// written in transactions of a fixed size, with per-item skip and retry.
package item

import (
	"context"
	"errors"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step/retry"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step/skip"
	"github.com/tigerroll/surfin-engine/pkg/batch/listener"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// DefaultChunkSize is used when a step is built with a non-positive chunk size.
const DefaultChunkSize = 10

// ChunkStep is a port.Step that moves items from reader to writer in chunk transactions.
// I is the type read, O the type written.
type ChunkStep[I, O any] struct {
	name        string
	reader      port.ItemReader[I]
	processor   port.ItemProcessor[I, O]
	writer      port.ItemWriter[O]
	chunkSize   int
	repository  repository.JobRepository
	txManager   tx.TransactionManager
	listeners   *listener.Registry
	skipPolicy  skip.SkipPolicy
	retryPolicy retry.RetryPolicy
	options     step.Options
}

type settings struct {
	skipPolicy  skip.SkipPolicy
	retryPolicy retry.RetryPolicy
	listeners   *listener.Registry
	options     step.Options
}

// Option configures a ChunkStep.
type Option func(*settings)

// WithSkipPolicy sets the skip policy. The default skips nothing.
func WithSkipPolicy(p skip.SkipPolicy) Option {
	return func(s *settings) { s.skipPolicy = p }
}

// WithRetryPolicy sets the retry policy. The default retries nothing.
func WithRetryPolicy(p retry.RetryPolicy) Option {
	return func(s *settings) { s.retryPolicy = p }
}

// WithListeners registers listeners on the step.
func WithListeners(listeners ...port.StepListener) Option {
	return func(s *settings) { s.listeners = s.listeners.With(listener.NewRegistry(listeners...)) }
}

// WithRegistry adds the listeners of r, typically the application-wide logging and metrics listeners.
func WithRegistry(r *listener.Registry) Option {
	return func(s *settings) { s.listeners = s.listeners.With(r) }
}

// WithStepOptions sets the start limit, restart and isolation settings.
func WithStepOptions(o step.Options) Option {
	return func(s *settings) { s.options = o }
}

// FromConfig applies the batch defaults: the start limit and the skip and retry policies.
func FromConfig(cfg config.BatchConfig) Option {
	return func(s *settings) {
		s.options.StartLimit = cfg.StartLimit
		s.skipPolicy = skip.NewDefaultSkipPolicyFactory().Create(cfg.ItemSkip)
		s.retryPolicy = retry.NewDefaultRetryPolicyFactory().Create(cfg.ItemRetry)
	}
}

// NewChunkStep creates a chunk step. processor may be nil when I and O are the same type.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	chunkSize int,
	repo repository.JobRepository,
	txManager tx.TransactionManager,
	opts ...Option,
) *ChunkStep[I, O] {
	st := &settings{}
	for _, opt := range opts {
		opt(st)
	}
	if st.skipPolicy == nil {
		st.skipPolicy = skip.NeverSkipPolicy()
	}
	if st.retryPolicy == nil {
		st.retryPolicy = retry.NoRetryPolicy()
	}
	if chunkSize <= 0 {
		logger.Warnf("Step '%s': chunk size %d is not positive, using %d.", name, chunkSize, DefaultChunkSize)
		chunkSize = DefaultChunkSize
	}
	return &ChunkStep[I, O]{
		name:        name,
		reader:      reader,
		processor:   processor,
		writer:      writer,
		chunkSize:   chunkSize,
		repository:  repo,
		txManager:   txManager,
		listeners:   st.listeners,
		skipPolicy:  st.skipPolicy,
		retryPolicy: st.retryPolicy,
		options:     st.options,
	}
}

func (s *ChunkStep[I, O]) StepName() string { return s.name }

func (s *ChunkStep[I, O]) StartLimit() int { return s.options.StartLimit }

func (s *ChunkStep[I, O]) AllowStartIfComplete() bool { return s.options.AllowStartIfComplete }

// ChunkSize returns the number of items per transaction.
func (s *ChunkStep[I, O]) ChunkSize() int { return s.chunkSize }

func (s *ChunkStep[I, O]) lifecycle() *step.Lifecycle {
	return &step.Lifecycle{Name: s.name, Repository: s.repository, Listeners: s.listeners, Options: s.options}
}

// Execute implements port.Step.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, se *model.StepExecution) error {
	lc := s.lifecycle()
	return lc.Run(ctx, se, func(ctx context.Context, se *model.StepExecution) (err error) {
		if err := s.openStreams(ctx, se.ExecutionContext); err != nil {
			return exception.NewBatchError(s.name, "failed to open item streams", err, false, false)
		}
		defer func() {
			if closeErr := s.closeStreams(context.WithoutCancel(ctx)); closeErr != nil {
				logger.Errorf("Step '%s': failed to close item streams: %v", s.name, closeErr)
				if err == nil {
					err = exception.NewBatchError(s.name, "failed to close item streams", closeErr, false, false)
				}
			}
		}()

		p := newChunkProcessor(s, se)
		if err := p.resume(ctx); err != nil {
			return err
		}
		for {
			if lc.StopRequested(ctx, se) {
				return step.ErrStopped
			}
			end, err := p.run(ctx)
			if err != nil {
				return err
			}
			if end {
				return nil
			}
		}
	})
}

func (s *ChunkStep[I, O]) streams() []port.ItemStream {
	var out []port.ItemStream
	for _, c := range []interface{}{s.reader, s.processor, s.writer} {
		if st, ok := c.(port.ItemStream); ok {
			out = append(out, st)
		}
	}
	return out
}

func (s *ChunkStep[I, O]) openStreams(ctx context.Context, ec model.ExecutionContext) error {
	for _, st := range s.streams() {
		if err := st.Open(ctx, ec); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChunkStep[I, O]) updateStreams(ctx context.Context, ec model.ExecutionContext) error {
	for _, st := range s.streams() {
		if err := st.Update(ctx, ec); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChunkStep[I, O]) closeStreams(ctx context.Context) error {
	var errs []error
	for _, st := range s.streams() {
		if err := st.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.Step = (*ChunkStep[any, any])(nil)
