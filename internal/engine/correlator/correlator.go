package correlator

import (
	"Go2FlowEval/internal/engine/clock"
	"Go2FlowEval/internal/engine/flowindex"
	"Go2FlowEval/internal/engine/flowkey"
	"Go2FlowEval/internal/model"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrEmptyPredictionStream is returned when the row source yields no usable
// row, so the clock offset cannot be derived.
var ErrEmptyPredictionStream = errors.New("prediction stream is empty: cannot align clocks")

// State is the correlator's position in a run.
type State int

const (
	AwaitingFirstRow State = iota
	Streaming
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingFirstRow:
		return "awaiting-first-row"
	case Streaming:
		return "streaming"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OverlapPolicy decides which flows receive a row's label when several
// flows under the same key contain the row's timestamp.
type OverlapPolicy string

const (
	// OverlapAll labels every containing flow.
	OverlapAll OverlapPolicy = "all"
	// OverlapNarrowest labels only the containing flow with the narrowest
	// window, then the earliest start, then the earliest insertion.
	OverlapNarrowest OverlapPolicy = "narrowest"
)

// ParseOverlapPolicy validates a policy name. Empty means OverlapAll.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(s) {
	case "", OverlapAll:
		return OverlapAll, nil
	case OverlapNarrowest:
		return OverlapNarrowest, nil
	default:
		return "", fmt.Errorf("unknown overlap policy %q", s)
	}
}

// Correlator matches prediction rows to the flows of an index and rolls the
// per-packet labels up into one late prediction per flow: every row whose
// aligned timestamp falls inside a flow's window overwrites that flow's
// predicted label, so the last such row in input order wins.
//
// Rows must be fed in input order, one at a time. A Correlator is not safe
// for concurrent use.
type Correlator struct {
	index  *flowindex.Index
	clock  *clock.Alignment
	policy OverlapPolicy
	logger *slog.Logger

	state State
	stats model.CorrelationStats

	matched []flowindex.FlowID // reused per row
}

// New creates a correlator over a fully built index.
func New(index *flowindex.Index, alignment *clock.Alignment, policy OverlapPolicy, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = OverlapAll
	}
	return &Correlator{
		index:  index,
		clock:  alignment,
		policy: policy,
		logger: logger,
		state:  AwaitingFirstRow,
	}
}

// Run consumes src until io.EOF. Malformed rows are counted and skipped;
// any other source error aborts the run. If no usable row was seen,
// ErrEmptyPredictionStream is returned.
func (c *Correlator) Run(src model.RowSource) (model.CorrelationStats, error) {
	if c.state == Done {
		return c.stats, errors.New("correlator has already completed a run")
	}

	for {
		row, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, model.ErrMalformedRow) {
				c.stats.RowsMalformed++
				c.logger.Debug("skipping malformed prediction row", slog.Any("error", err))
				continue
			}
			return c.stats, fmt.Errorf("read prediction row: %w", err)
		}
		if err := c.Process(row); err != nil {
			return c.stats, err
		}
	}

	if c.state == AwaitingFirstRow {
		return c.stats, ErrEmptyPredictionStream
	}
	c.state = Done
	c.stats.ClockOffset = c.clock.Offset()
	return c.stats, nil
}

// Process applies a single row. The first row calibrates the clock before
// it is matched like every other row. A row whose timestamp is NaN or
// infinite is counted as malformed and never calibrates.
func (c *Correlator) Process(row model.PredictionRow) error {
	if c.state != Done && !clock.Finite(row.Timestamp) {
		c.stats.RowsMalformed++
		c.logger.Debug("skipping prediction row with a non-finite timestamp",
			slog.Int("line", row.Line), slog.Float64("timestamp", row.Timestamp))
		return nil
	}

	switch c.state {
	case AwaitingFirstRow:
		if err := c.clock.Calibrate(row.Timestamp); err != nil {
			return fmt.Errorf("align clocks on line %d: %w", row.Line, err)
		}
		c.logger.Info("clock offset derived from first prediction row",
			slog.Int("line", row.Line),
			slog.Float64("raw_timestamp", row.Timestamp),
			slog.Float64("reference", c.clock.Reference()),
			slog.Float64("offset", c.clock.Offset()))
		c.state = Streaming
	case Done:
		return errors.New("correlator is done: no more rows accepted")
	}

	c.stats.RowsRead++

	adjusted, err := c.clock.Adjust(row.Timestamp)
	if err != nil {
		return err
	}

	key := flowkey.Of(row.FiveTuple)
	candidates := c.index.Lookup(key)
	if len(candidates) == 0 {
		c.stats.RowsUnmatched++
		return nil
	}

	c.matched = c.matched[:0]
	for _, id := range candidates {
		if c.index.Flow(id).Contains(adjusted) {
			c.matched = append(c.matched, id)
		}
	}
	if len(c.matched) == 0 {
		c.stats.RowsOutOfWindow++
		return nil
	}

	if c.policy == OverlapNarrowest && len(c.matched) > 1 {
		c.matched[0] = c.narrowest(c.matched)
		c.matched = c.matched[:1]
	}

	for _, id := range c.matched {
		c.index.Flow(id).PredictedLabel = row.Label
	}
	c.stats.RowsMatched++
	c.stats.LabelWrites += uint64(len(c.matched))
	return nil
}

// narrowest picks the best single match among ids (insertion-ordered).
func (c *Correlator) narrowest(ids []flowindex.FlowID) flowindex.FlowID {
	best := ids[0]
	bestFlow := c.index.Flow(best)
	for _, id := range ids[1:] {
		f := c.index.Flow(id)
		if f.Width() < bestFlow.Width() || (f.Width() == bestFlow.Width() && f.Start < bestFlow.Start) {
			best, bestFlow = id, f
		}
	}
	return best
}

// State returns the current state.
func (c *Correlator) State() State { return c.state }

// Stats returns the counters accumulated so far.
func (c *Correlator) Stats() model.CorrelationStats {
	s := c.stats
	s.ClockOffset = c.clock.Offset()
	return s
}
