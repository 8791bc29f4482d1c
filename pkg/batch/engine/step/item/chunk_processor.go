package item

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/cenkalti/backoff/v5"

	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-engine/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-engine/pkg/batch/engine/step/retry"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

const writeSavepoint = "chunk_write"

var (
	// errEmptyChunk ends the transaction of a chunk that found no input.
	errEmptyChunk = errors.New("empty chunk")
	// errScanSkip rolls back a scanned item whose write failure was skipped.
	errScanSkip = errors.New("item skipped in scan")
)

// scanRequired aborts a chunk whose failure must be attributed to a single item.
type scanRequired struct {
	phase string
	err   error
}

func (e *scanRequired) Error() string {
	return fmt.Sprintf("%s failed, chunk will be scanned: %v", e.phase, e.err)
}

func (e *scanRequired) Unwrap() error { return e.err }

// scanIndexKey names the step context entry holding how many items past the saved
// reader position an interrupted scan already committed.
func scanIndexKey(stepName string) string {
	return stepName + ".scan.index"
}

// chunkProcessor runs the chunks of one step execution.
type chunkProcessor[I, O any] struct {
	step *ChunkStep[I, O]
	se   *model.StepExecution
	// skipped counts committed skips per fault category.
	skipped map[string]int
	// scanBase counts the items discarded by resume that the saved reader position
	// does not cover yet.
	scanBase int64
}

func newChunkProcessor[I, O any](s *ChunkStep[I, O], se *model.StepExecution) *chunkProcessor[I, O] {
	return &chunkProcessor[I, O]{step: s, se: se, skipped: map[string]int{}}
}

func (p *chunkProcessor[I, O]) skipCount(category string, c *chunk[I, O]) int {
	return p.skipped[category] + c.skipped[category]
}

// resume discards the items that an interrupted scan committed after the saved reader
// position. Only successful reads are counted, as the scan only saw those.
func (p *chunkProcessor[I, O]) resume(ctx context.Context) error {
	s := p.step
	n, ok := p.se.ExecutionContext.GetInt64(scanIndexKey(s.name))
	if !ok || n <= 0 {
		return nil
	}
	for p.scanBase < n {
		_, err := s.reader.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			break
		}
		if err != nil {
			if exception.IsFatal(err) {
				return exception.NewFatalError(s.name, "item read failed while resuming a scan", err)
			}
			continue
		}
		p.scanBase++
	}
	logger.Infof("Step '%s': resuming after %d items already committed by an interrupted scan.", s.name, p.scanBase)
	return nil
}

// run processes one chunk. It reports whether the input is exhausted.
func (p *chunkProcessor[I, O]) run(ctx context.Context) (bool, error) {
	s := p.step
	c := newChunk[I, O]()
	ec := p.se.ExecutionContext.Copy()
	ec.Remove(scanIndexKey(s.name))

	err := tx.Execute(ctx, s.txManager, func(txCtx context.Context) error {
		s.listeners.BeforeChunk(txCtx, p.se)
		if err := p.read(txCtx, c); err != nil {
			return err
		}
		if c.isEmpty() {
			return errEmptyChunk
		}
		if err := p.process(txCtx, c); err != nil {
			return err
		}
		if err := p.write(txCtx, c); err != nil {
			return err
		}
		if err := s.updateStreams(txCtx, ec); err != nil {
			return exception.NewFatalError(s.name, "failed to save item stream state", err)
		}
		p.notifySkips(txCtx, c.skips)
		return nil
	}, s.options.TxOptions()...)

	switch {
	case err == nil:
		c.moveTo(ChunkCommitted)
		p.se.ExecutionContext = ec
		p.scanBase = 0
		return c.end, p.commit(ctx, c.contribution, c.skipped)
	case errors.Is(err, errEmptyChunk):
		c.moveTo(ChunkRolledBack)
		return true, nil
	}

	c.moveTo(ChunkRolledBack)
	p.se.RollbackCount++
	s.listeners.AfterChunkError(ctx, p.se, err)

	var scan *scanRequired
	if errors.As(err, &scan) {
		logger.Warnf("Step '%s': chunk rolled back after %s failure, scanning %d items one at a time: %v", s.name, scan.phase, len(c.inputs), scan.err)
		return c.end, p.scan(ctx, c)
	}
	return c.end, err
}

// commit applies a committed contribution and persists the step execution.
func (p *chunkProcessor[I, O]) commit(ctx context.Context, contribution model.StepContribution, skipped map[string]int) error {
	p.se.ApplyContribution(contribution)
	p.se.CommitCount++
	for category, n := range skipped {
		p.skipped[category] += n
	}
	if err := p.step.lifecycle().Persist(ctx, p.se); err != nil {
		return exception.NewBatchError(p.step.name, "failed to persist step execution after commit", err, false, false)
	}
	p.step.listeners.AfterChunk(ctx, p.se)
	return nil
}

func (p *chunkProcessor[I, O]) read(ctx context.Context, c *chunk[I, O]) error {
	s := p.step
	c.moveTo(ChunkReading)
	for len(c.inputs) < s.chunkSize {
		s.listeners.BeforeRead(ctx)
		item, err := s.reader.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			c.end = true
			return nil
		}
		if err != nil {
			s.listeners.OnReadError(ctx, err)
			if exception.IsFatal(err) {
				return exception.NewFatalError(s.name, "item read failed", err)
			}
			category := s.skipPolicy.Category(err)
			if s.skipPolicy.ShouldSkip(err, p.skipCount(category, c)) {
				logger.Warnf("Step '%s': skipping read failure (%s): %v", s.name, category, err)
				c.contribution.ReadSkipCount++
				c.addSkip(metrics.PhaseRead, nil, err, category)
				continue
			}
			// A failed read cannot be replayed, so there is nothing to scan.
			return exception.NewBatchError(s.name, "item read failed", err, false, false)
		}
		s.listeners.AfterRead(ctx, item)
		c.contribution.ReadCount++
		c.inputs = append(c.inputs, item)
	}
	return nil
}

func (p *chunkProcessor[I, O]) process(ctx context.Context, c *chunk[I, O]) error {
	s := p.step
	c.moveTo(ChunkProcessing)
	for _, item := range c.inputs {
		out, filtered, err := p.processItem(ctx, item)
		if err != nil {
			if exception.IsFatal(err) {
				return exception.NewFatalError(s.name, "item processing failed", err)
			}
			category := s.skipPolicy.Category(err)
			if s.skipPolicy.ShouldSkip(err, p.skipCount(category, c)) {
				logger.Warnf("Step '%s': skipping item in process (%s): %v", s.name, category, err)
				c.contribution.ProcessSkipCount++
				c.addSkip(metrics.PhaseProcess, item, err, category)
				continue
			}
			return &scanRequired{phase: metrics.PhaseProcess, err: err}
		}
		if filtered {
			c.contribution.FilterCount++
			continue
		}
		c.outputs = append(c.outputs, out)
	}
	return nil
}

func (p *chunkProcessor[I, O]) write(ctx context.Context, c *chunk[I, O]) error {
	c.moveTo(ChunkWriting)
	if len(c.outputs) == 0 {
		return nil
	}
	if err := p.writeItems(ctx, c.outputs); err != nil {
		if exception.IsFatal(err) {
			return exception.NewFatalError(p.step.name, "item write failed", err)
		}
		return &scanRequired{phase: metrics.PhaseWrite, err: err}
	}
	c.contribution.WriteCount += len(c.outputs)
	return nil
}

// processItem runs the processor with retries. filtered is true when the processor returned nil.
func (p *chunkProcessor[I, O]) processItem(ctx context.Context, item I) (out O, filtered bool, err error) {
	s := p.step
	if s.processor == nil {
		converted, ok := any(item).(O)
		if !ok {
			return out, false, exception.NewFatalError(s.name, fmt.Sprintf("item of type %T cannot be written without a processor", item), nil)
		}
		return converted, false, nil
	}

	var bo backoff.BackOff
	for attempt := 1; ; attempt++ {
		s.listeners.BeforeProcess(ctx, item)
		out, err = s.processor.Process(ctx, item)
		if err == nil {
			if isNil(out) {
				s.listeners.AfterProcess(ctx, item, nil)
				return out, true, nil
			}
			s.listeners.AfterProcess(ctx, item, out)
			return out, false, nil
		}
		s.listeners.OnProcessError(ctx, item, err)
		if attempt >= s.retryPolicy.MaxAttempts() || !s.retryPolicy.ShouldRetry(err) {
			return out, false, err
		}
		if bo == nil {
			bo = s.retryPolicy.NewBackOff()
		}
		s.listeners.OnRetry(metrics.WithPhase(ctx, metrics.PhaseProcess), attempt+1, item, err)
		if waitErr := retry.Wait(ctx, bo); waitErr != nil {
			return out, false, err
		}
	}
}

// writeItems calls the writer with retries. Each retry first rolls the transaction back
// to a savepoint taken before the failed attempt.
func (p *chunkProcessor[I, O]) writeItems(ctx context.Context, items []O) error {
	s := p.step
	values := make([]interface{}, len(items))
	for i := range items {
		values[i] = items[i]
	}
	t, hasTx := tx.FromContext(ctx)
	useSavepoint := hasTx && s.retryPolicy.MaxAttempts() > 1

	var bo backoff.BackOff
	for attempt := 1; ; attempt++ {
		if useSavepoint {
			if err := t.Savepoint(writeSavepoint); err != nil {
				return err
			}
		}
		s.listeners.BeforeWrite(ctx, values)
		err := s.writer.Write(ctx, items)
		if err == nil {
			s.listeners.AfterWrite(ctx, values)
			return nil
		}
		s.listeners.OnWriteError(ctx, values, err)
		if attempt >= s.retryPolicy.MaxAttempts() || !s.retryPolicy.ShouldRetry(err) {
			return err
		}
		if useSavepoint {
			if rbErr := t.RollbackToSavepoint(writeSavepoint); rbErr != nil {
				return errors.Join(err, rbErr)
			}
		}
		if bo == nil {
			bo = s.retryPolicy.NewBackOff()
		}
		s.listeners.OnRetry(metrics.WithPhase(ctx, metrics.PhaseWrite), attempt+1, values, err)
		if waitErr := retry.Wait(ctx, bo); waitErr != nil {
			return err
		}
	}
}

// scan re-runs the items of a rolled back chunk one per transaction, so that only the
// failing item is subject to the skip decision. The reader position stays at the start
// of the chunk until the scan ends; every scanned item saves how far the scan got, so
// that a restart does not repeat committed items.
func (p *chunkProcessor[I, O]) scan(ctx context.Context, c *chunk[I, O]) error {
	s := p.step
	readSkips := c.readSkips()
	for _, event := range readSkips {
		p.skipped[event.category]++
	}
	p.se.ApplyContribution(model.StepContribution{ReadCount: c.contribution.ReadCount, ReadSkipCount: c.contribution.ReadSkipCount})

	for i, item := range c.inputs {
		if err := p.scanItem(ctx, item, p.scanBase+int64(i)+1); err != nil {
			return err
		}
	}

	ec := p.se.ExecutionContext.Copy()
	if err := s.updateStreams(ctx, ec); err != nil {
		return exception.NewFatalError(s.name, "failed to save item stream state", err)
	}
	ec.Remove(scanIndexKey(s.name))
	p.se.ExecutionContext = ec
	p.scanBase = 0
	p.notifySkips(ctx, readSkips)
	if err := s.lifecycle().Persist(ctx, p.se); err != nil {
		return exception.NewBatchError(s.name, "failed to persist step execution after scan", err, false, false)
	}
	return nil
}

// scanItem runs one item in its own transaction. position is the number of items past
// the saved reader position that are handled once this item is.
func (p *chunkProcessor[I, O]) scanItem(ctx context.Context, item I, position int64) error {
	s := p.step
	single := newChunk[I, O]()
	var writeSkip *skipEvent

	err := tx.Execute(ctx, s.txManager, func(txCtx context.Context) error {
		s.listeners.BeforeChunk(txCtx, p.se)
		out, filtered, err := p.processItem(txCtx, item)
		if err != nil {
			if exception.IsFatal(err) {
				return exception.NewFatalError(s.name, "item processing failed", err)
			}
			category := s.skipPolicy.Category(err)
			if !s.skipPolicy.ShouldSkip(err, p.skipCount(category, single)) {
				return exception.NewBatchError(s.name, "item processing failed and cannot be skipped", err, false, false)
			}
			single.contribution.ProcessSkipCount++
			single.addSkip(metrics.PhaseProcess, item, err, category)
			p.notifySkips(txCtx, single.skips)
			return nil
		}
		if filtered {
			single.contribution.FilterCount++
			return nil
		}
		if err := p.writeItems(txCtx, []O{out}); err != nil {
			if exception.IsFatal(err) {
				return exception.NewFatalError(s.name, "item write failed", err)
			}
			category := s.skipPolicy.Category(err)
			if !s.skipPolicy.ShouldSkip(err, p.skipCount(category, single)) {
				return exception.NewBatchError(s.name, "item write failed and cannot be skipped", err, false, false)
			}
			writeSkip = &skipEvent{phase: metrics.PhaseWrite, item: out, err: err, category: category}
			return errScanSkip
		}
		single.contribution.WriteCount++
		return nil
	}, s.options.TxOptions()...)

	switch {
	case err == nil:
		p.se.ExecutionContext.Put(scanIndexKey(s.name), position)
		return p.commit(ctx, single.contribution, single.skipped)
	case errors.Is(err, errScanSkip):
		logger.Warnf("Step '%s': skipping item in write (%s): %v", s.name, writeSkip.category, writeSkip.err)
		p.se.RollbackCount++
		s.listeners.AfterChunkError(ctx, p.se, writeSkip.err)
		p.notifySkips(ctx, []skipEvent{*writeSkip})
		p.se.ApplyContribution(model.StepContribution{WriteSkipCount: 1})
		p.skipped[writeSkip.category]++
		p.se.ExecutionContext.Put(scanIndexKey(s.name), position)
		if err := s.lifecycle().Persist(ctx, p.se); err != nil {
			return exception.NewBatchError(s.name, "failed to persist step execution after a skipped item", err, false, false)
		}
		return nil
	default:
		p.se.RollbackCount++
		s.listeners.AfterChunkError(ctx, p.se, err)
		return err
	}
}

func (p *chunkProcessor[I, O]) notifySkips(ctx context.Context, events []skipEvent) {
	for _, e := range events {
		phaseCtx := metrics.WithPhase(ctx, e.phase)
		switch e.phase {
		case metrics.PhaseRead:
			p.step.listeners.OnSkipInRead(phaseCtx, e.err)
		case metrics.PhaseProcess:
			p.step.listeners.OnSkipInProcess(phaseCtx, e.item, e.err)
		case metrics.PhaseWrite:
			p.step.listeners.OnSkipInWrite(phaseCtx, e.item, e.err)
		}
	}
}

// isNil reports whether v is nil or a nil pointer, interface, map, slice, channel or func.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
