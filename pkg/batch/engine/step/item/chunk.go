package item

import (
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-engine/pkg/batch/core/metrics"
)

// ChunkState is the position of a chunk in its transaction.
type ChunkState int

const (
	ChunkOpen ChunkState = iota
	ChunkReading
	ChunkProcessing
	ChunkWriting
	ChunkCommitted
	ChunkRolledBack
)

func (s ChunkState) String() string {
	switch s {
	case ChunkOpen:
		return "OPEN"
	case ChunkReading:
		return "READING"
	case ChunkProcessing:
		return "PROCESSING"
	case ChunkWriting:
		return "WRITING"
	case ChunkCommitted:
		return "COMMITTED"
	case ChunkRolledBack:
		return "ROLLED_BACK"
	default:
		return "UNKNOWN"
	}
}

// skipEvent is a skip decided inside a chunk whose listeners have not been told yet.
type skipEvent struct {
	phase    string
	item     interface{}
	err      error
	category string
}

// chunk holds the items and counters of one transaction. Nothing in it reaches the
// step execution unless the transaction commits.
type chunk[I, O any] struct {
	state        ChunkState
	inputs       []I
	outputs      []O
	end          bool
	skips        []skipEvent
	skipped      map[string]int
	contribution model.StepContribution
}

func newChunk[I, O any]() *chunk[I, O] {
	return &chunk[I, O]{state: ChunkOpen, skipped: map[string]int{}}
}

func (c *chunk[I, O]) moveTo(state ChunkState) {
	c.state = state
}

// isEmpty reports whether there is nothing to commit.
func (c *chunk[I, O]) isEmpty() bool {
	return len(c.inputs) == 0 && len(c.skips) == 0
}

func (c *chunk[I, O]) addSkip(phase string, item interface{}, err error, category string) {
	c.skips = append(c.skips, skipEvent{phase: phase, item: item, err: err, category: category})
	c.skipped[category]++
}

// readSkips returns the pending read skips. Items read by a rolled back chunk are not
// read again, so these survive the rollback.
func (c *chunk[I, O]) readSkips() []skipEvent {
	var out []skipEvent
	for _, s := range c.skips {
		if s.phase == metrics.PhaseRead {
			out = append(out, s)
		}
	}
	return out
}
