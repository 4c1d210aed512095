package query

import (
	"Go2FlowEval/internal/model"
	"Go2FlowEval/internal/writer/gobsnap"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func intp(n int) *int { return &n }

func labelp(l model.Label) *model.Label { return &l }

func flows() []model.Flow {
	return []model.Flow{
		{
			FiveTuple:      model.FiveTuple{SrcAddr: "10.0.0.1", DstAddr: "10.0.0.2", Protocol: "tcp", SrcPort: 80, DstPort: 4000},
			TrueLabel:      model.LabelAttack,
			PredictedLabel: model.LabelAttack,
		},
		{
			FiveTuple:      model.FiveTuple{SrcAddr: "10.0.0.2", DstAddr: "10.0.0.3", Protocol: "udp", SrcPort: 53, DstPort: 5353},
			TrueLabel:      model.LabelNormal,
			PredictedLabel: model.LabelUnset,
		},
		{
			FiveTuple:      model.FiveTuple{SrcAddr: "10.0.0.4", DstAddr: "10.0.0.1", Protocol: "tcp", SrcPort: 22, DstPort: 4001},
			TrueLabel:      model.LabelNormal,
			PredictedLabel: model.LabelAttack,
		},
	}
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"empty filter", Filter{}, []int{0, 1, 2}},
		{"address in either direction", Filter{Src: "10.0.0.2"}, []int{0, 1}},
		{"address pair reversed", Filter{Src: "10.0.0.2", Dst: "10.0.0.1"}, []int{0}},
		{"port reversed", Filter{SrcPort: intp(4000)}, []int{0}},
		{"protocol any case", Filter{Proto: "TCP"}, []int{0, 2}},
		{"full tuple reversed", Filter{Src: "10.0.0.2", Dst: "10.0.0.1", Proto: "tcp", SrcPort: intp(4000), DstPort: intp(80)}, []int{0}},
		{"full tuple protocol any case", Filter{Src: "10.0.0.2", Dst: "10.0.0.1", Proto: "TCP", SrcPort: intp(4000), DstPort: intp(80)}, []int{0}},
		{"full tuple wrong port", Filter{Src: "10.0.0.2", Dst: "10.0.0.1", Proto: "tcp", SrcPort: intp(4000), DstPort: intp(81)}, nil},
		{"true label", Filter{TrueLabel: labelp(model.LabelNormal)}, []int{1, 2}},
		{"unset prediction", Filter{PredictedLabel: labelp(model.LabelUnset)}, []int{1}},
		{"limit", Filter{Limit: 2}, []int{0, 1}},
	}

	all := flows()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(all)
			var want []model.Flow
			for _, i := range tt.want {
				want = append(want, all[i])
			}
			if len(got) != len(want) {
				t.Fatalf("got %d flows, want %d: %+v", len(got), len(want), got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("flow %d: got %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestGobQuerier(t *testing.T) {
	root := t.TempDir()
	q := NewGobQuerier(root)
	ctx := context.Background()

	if _, err := q.Summary(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot before any run, got %v", err)
	}

	w := gobsnap.NewWriter(root)
	older := &model.Snapshot{RunID: "2024-03-01_12-00-00", CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), Flows: flows()[:1]}
	if err := w.Write(ctx, older); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := q.Flows(ctx, Filter{})
	if err != nil || len(got) != 1 {
		t.Fatalf("expected the single flow of the first run, got %v %v", got, err)
	}

	newer := &model.Snapshot{
		RunID:     "2024-03-02_12-00-00",
		CreatedAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
		Flows:     flows(),
		Stats:     model.CorrelationStats{RowsRead: 9},
		Summary:   model.Summary{Flows: 3, TruePositive: 1, FalsePositive: 1, UnsetNormal: 1},
	}
	if err := w.Write(ctx, newer); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	summary, err := q.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.RunID != newer.RunID || summary.Stats.RowsRead != 9 || summary.Summary != newer.Summary {
		t.Errorf("expected the newest run, got %+v", summary)
	}

	got, err = q.Flows(ctx, Filter{Proto: "udp"})
	if err != nil {
		t.Fatalf("Flows failed: %v", err)
	}
	if len(got) != 1 || got[0].SrcPort != 53 {
		t.Errorf("unexpected flows: %+v", got)
	}
}

func TestFlowsQuery(t *testing.T) {
	query, args := flowsQuery("flow_predictions", Filter{
		Src:            "10.0.0.1",
		DstPort:        intp(80),
		Proto:          "tcp",
		PredictedLabel: labelp(model.LabelUnset),
		Limit:          10,
	})

	for _, part := range []string{
		"FROM flow_predictions",
		"RunID = (SELECT RunID FROM flow_predictions ORDER BY Timestamp DESC LIMIT 1)",
		"lower(Protocol) = lower(?)",
		"PredictedLabel NOT IN ('Attack', 'Normal')",
		"((SrcIP = ? AND DstPort = ?) OR (DstIP = ? AND SrcPort = ?))",
		"LIMIT 10",
	} {
		if !strings.Contains(query, part) {
			t.Errorf("query is missing %q:\n%s", part, query)
		}
	}

	want := []interface{}{"tcp", "10.0.0.1", uint16(80), "10.0.0.1", uint16(80)}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args = %#v, want %#v", args, want)
	}
}

func TestSummaryQuery(t *testing.T) {
	q := summaryQuery("results")
	if !strings.Contains(q, "FROM results") || !strings.Contains(q, "GROUP BY RunID") {
		t.Errorf("unexpected summary query:\n%s", q)
	}
}
