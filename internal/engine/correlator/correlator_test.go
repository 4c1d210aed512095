package correlator

import (
	"Go2FlowEval/internal/engine/clock"
	"Go2FlowEval/internal/engine/flowindex"
	"Go2FlowEval/internal/model"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
)

// reference is chosen so that a first row with raw timestamp
// reference+150 aligns to 150.
const reference = 150.0

// sliceSource replays rows and errors in order, then io.EOF.
type sliceSource struct {
	items []interface{} // model.PredictionRow or error
	pos   int
}

func (s *sliceSource) Next() (model.PredictionRow, error) {
	if s.pos >= len(s.items) {
		return model.PredictionRow{}, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	if err, ok := item.(error); ok {
		return model.PredictionRow{}, err
	}
	return item.(model.PredictionRow), nil
}

func row(src, dst string, sport, dport int, ts float64, label model.Label) model.PredictionRow {
	return model.PredictionRow{
		FiveTuple: model.FiveTuple{SrcAddr: src, DstAddr: dst, Protocol: "tcp", SrcPort: sport, DstPort: dport},
		Timestamp: ts,
		Label:     label,
	}
}

func attackFlow() model.Flow {
	return model.Flow{
		FiveTuple:      model.FiveTuple{SrcAddr: "10.0.0.1", DstAddr: "10.0.0.2", Protocol: "tcp", SrcPort: 80, DstPort: 4000},
		Start:          100,
		Stop:           200,
		TrueLabel:      model.LabelAttack,
		PredictedLabel: model.LabelUnset,
	}
}

func run(t *testing.T, ix *flowindex.Index, policy OverlapPolicy, items ...interface{}) (model.CorrelationStats, error) {
	t.Helper()
	c := New(ix, clock.New(reference), policy, nil)
	return c.Run(&sliceSource{items: items})
}

func TestCorrelator_FirstRowMatchesReversedTuple(t *testing.T) {
	ix := flowindex.New(1)
	id := ix.Insert(attackFlow())

	// raw reference+150 -> offset 150 -> adjusted 150, inside [100,200].
	stats, err := run(t, ix, OverlapAll, row("10.0.0.2", "10.0.0.1", 4000, 80, reference+150, model.LabelAttack))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := ix.Flow(id).PredictedLabel; got != model.LabelAttack {
		t.Fatalf("expected predicted label Attack, got %v", got)
	}
	if stats.RowsRead != 1 || stats.RowsMatched != 1 || stats.LabelWrites != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.ClockOffset != 150 {
		t.Errorf("expected clock offset 150, got %f", stats.ClockOffset)
	}
}

func TestCorrelator_LastWriterWins(t *testing.T) {
	ix := flowindex.New(1)
	id := ix.Insert(attackFlow())

	// Offset is 150, so raw 340 aligns to 190.
	_, err := run(t, ix, OverlapAll,
		row("10.0.0.2", "10.0.0.1", 4000, 80, 300, model.LabelAttack),
		row("10.0.0.1", "10.0.0.2", 80, 4000, 340, model.LabelNormal),
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := ix.Flow(id).PredictedLabel; got != model.LabelNormal {
		t.Fatalf("expected the later row to win with Normal, got %v", got)
	}
}

func TestCorrelator_WindowBoundsInclusive(t *testing.T) {
	ix := flowindex.New(1)
	id := ix.Insert(attackFlow())

	// First row aligns to 150 but carries Normal; the boundary rows then
	// hit 200 (inside) and 200.5 (outside).
	stats, err := run(t, ix, OverlapAll,
		row("10.0.0.1", "10.0.0.2", 80, 4000, 300, model.LabelNormal),
		row("10.0.0.1", "10.0.0.2", 80, 4000, 350, model.LabelAttack),
		row("10.0.0.1", "10.0.0.2", 80, 4000, 350.5, model.LabelNormal),
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := ix.Flow(id).PredictedLabel; got != model.LabelAttack {
		t.Fatalf("expected Attack from the row on the closing boundary, got %v", got)
	}
	if stats.RowsOutOfWindow != 1 {
		t.Errorf("expected 1 out-of-window row, got %d", stats.RowsOutOfWindow)
	}
}

func TestCorrelator_UnmatchedRowIsSkipped(t *testing.T) {
	ix := flowindex.New(1)
	id := ix.Insert(attackFlow())

	stats, err := run(t, ix, OverlapAll,
		row("192.168.1.1", "192.168.1.2", 1234, 53, 300, model.LabelAttack),
	)
	if err != nil {
		t.Fatalf("unmatched row should not fail the run: %v", err)
	}
	if got := ix.Flow(id).PredictedLabel; got != model.LabelUnset {
		t.Fatalf("unmatched row changed a flow: %v", got)
	}
	if stats.RowsUnmatched != 1 || stats.RowsMatched != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCorrelator_EmptyStream(t *testing.T) {
	ix := flowindex.New(1)
	ix.Insert(attackFlow())

	if _, err := run(t, ix, OverlapAll); !errors.Is(err, ErrEmptyPredictionStream) {
		t.Fatalf("expected ErrEmptyPredictionStream, got %v", err)
	}

	malformedOnly := fmt.Errorf("line 1: %w", model.ErrMalformedRow)
	if _, err := run(t, ix, OverlapAll, malformedOnly); !errors.Is(err, ErrEmptyPredictionStream) {
		t.Fatalf("a stream of only malformed rows should be empty, got %v", err)
	}
}

func TestCorrelator_MalformedRowsAreSkipped(t *testing.T) {
	ix := flowindex.New(1)
	id := ix.Insert(attackFlow())

	stats, err := run(t, ix, OverlapAll,
		fmt.Errorf("line 1: %w", model.ErrMalformedRow),
		row("10.0.0.1", "10.0.0.2", 80, 4000, 300, model.LabelNormal),
		fmt.Errorf("line 3: %w", model.ErrMalformedRow),
		row("10.0.0.1", "10.0.0.2", 80, 4000, 310, model.LabelAttack),
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.RowsMalformed != 2 || stats.RowsRead != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	// The first well-formed row calibrates: raw 300 aligns to 150.
	if stats.ClockOffset != 150 {
		t.Errorf("expected offset from the first well-formed row, got %f", stats.ClockOffset)
	}
	if got := ix.Flow(id).PredictedLabel; got != model.LabelAttack {
		t.Errorf("expected Attack, got %v", got)
	}
}

func TestCorrelator_NonFiniteFirstRowDoesNotCalibrate(t *testing.T) {
	ix := flowindex.New(1)
	id := ix.Insert(attackFlow())

	stats, err := run(t, ix, OverlapAll,
		row("10.0.0.2", "10.0.0.1", 4000, 80, math.NaN(), model.LabelNormal),
		row("10.0.0.2", "10.0.0.1", 4000, 80, math.Inf(1), model.LabelNormal),
		row("10.0.0.2", "10.0.0.1", 4000, 80, 300, model.LabelAttack),
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// raw 300 is the first usable row, so it aligns to 150.
	if stats.ClockOffset != 150 {
		t.Errorf("expected offset 150 from the first finite row, got %f", stats.ClockOffset)
	}
	if stats.RowsMalformed != 2 || stats.RowsRead != 1 || stats.RowsMatched != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if got := ix.Flow(id).PredictedLabel; got != model.LabelAttack {
		t.Errorf("expected Attack, got %v", got)
	}
}

func TestCorrelator_OnlyNonFiniteRowsIsEmpty(t *testing.T) {
	ix := flowindex.New(1)
	ix.Insert(attackFlow())

	_, err := run(t, ix, OverlapAll, row("10.0.0.2", "10.0.0.1", 4000, 80, math.NaN(), model.LabelAttack))
	if !errors.Is(err, ErrEmptyPredictionStream) {
		t.Fatalf("expected ErrEmptyPredictionStream, got %v", err)
	}
}

func TestCorrelator_SourceErrorIsFatal(t *testing.T) {
	ix := flowindex.New(1)
	ix.Insert(attackFlow())

	ioErr := errors.New("disk on fire")
	_, err := run(t, ix, OverlapAll,
		row("10.0.0.1", "10.0.0.2", 80, 4000, 300, model.LabelNormal),
		ioErr,
	)
	if !errors.Is(err, ioErr) {
		t.Fatalf("expected the source error to abort the run, got %v", err)
	}
}

func TestCorrelator_OverlapPolicies(t *testing.T) {
	build := func() (*flowindex.Index, flowindex.FlowID, flowindex.FlowID, flowindex.FlowID) {
		ix := flowindex.New(3)
		wide := attackFlow()
		wide.Start, wide.Stop = 100, 300
		narrow := attackFlow()
		narrow.Start, narrow.Stop = 140, 160
		later := attackFlow()
		later.Start, later.Stop = 400, 500
		return ix, ix.Insert(wide), ix.Insert(narrow), ix.Insert(later)
	}

	t.Run("all", func(t *testing.T) {
		ix, wide, narrow, later := build()
		stats, err := run(t, ix, OverlapAll, row("10.0.0.1", "10.0.0.2", 80, 4000, 300, model.LabelAttack))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if ix.Flow(wide).PredictedLabel != model.LabelAttack || ix.Flow(narrow).PredictedLabel != model.LabelAttack {
			t.Errorf("expected both overlapping flows to be labelled")
		}
		if ix.Flow(later).PredictedLabel != model.LabelUnset {
			t.Errorf("flow outside the window was labelled")
		}
		if stats.LabelWrites != 2 {
			t.Errorf("expected 2 label writes, got %d", stats.LabelWrites)
		}
	})

	t.Run("narrowest", func(t *testing.T) {
		ix, wide, narrow, _ := build()
		if _, err := run(t, ix, OverlapNarrowest, row("10.0.0.1", "10.0.0.2", 80, 4000, 300, model.LabelAttack)); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if ix.Flow(narrow).PredictedLabel != model.LabelAttack {
			t.Errorf("expected the narrow flow to be labelled")
		}
		if ix.Flow(wide).PredictedLabel != model.LabelUnset {
			t.Errorf("wide flow should not be labelled under the narrowest policy")
		}
	})
}

func TestCorrelator_StateMachine(t *testing.T) {
	ix := flowindex.New(1)
	ix.Insert(attackFlow())
	c := New(ix, clock.New(reference), OverlapAll, nil)

	if c.State() != AwaitingFirstRow {
		t.Fatalf("expected initial state %v, got %v", AwaitingFirstRow, c.State())
	}
	if err := c.Process(row("10.0.0.1", "10.0.0.2", 80, 4000, 300, model.LabelNormal)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if c.State() != Streaming {
		t.Fatalf("expected %v after the first row, got %v", Streaming, c.State())
	}
	if _, err := c.Run(&sliceSource{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if c.State() != Done {
		t.Fatalf("expected %v after the stream ends, got %v", Done, c.State())
	}
	if err := c.Process(row("10.0.0.1", "10.0.0.2", 80, 4000, 300, model.LabelNormal)); err == nil {
		t.Errorf("expected rows after Done to be rejected")
	}
}

func TestParseOverlapPolicy(t *testing.T) {
	for in, want := range map[string]OverlapPolicy{"": OverlapAll, "all": OverlapAll, "narrowest": OverlapNarrowest} {
		got, err := ParseOverlapPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseOverlapPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOverlapPolicy("first"); err == nil {
		t.Errorf("expected an error for an unknown policy")
	}
}
