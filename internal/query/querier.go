package query

import (
	"Go2FlowEval/internal/engine/flowkey"
	"Go2FlowEval/internal/model"
	"Go2FlowEval/internal/writer/gobsnap"
	"context"
	"strings"
	"time"
)

// ErrNoSnapshot is returned when there is no stored run to answer from.
var ErrNoSnapshot = gobsnap.ErrNoSnapshot

// RunSummary describes the latest stored run.
type RunSummary struct {
	RunID     string                 `json:"run_id"`
	CreatedAt time.Time              `json:"created_at"`
	Stats     model.CorrelationStats `json:"stats"`
	Summary   model.Summary          `json:"summary"`
}

// Filter selects flows. Endpoint constraints match in either direction;
// zero values match anything.
type Filter struct {
	Src     string
	Dst     string
	Proto   string
	SrcPort *int
	DstPort *int

	TrueLabel      *model.Label
	PredictedLabel *model.Label

	// Limit caps the number of flows returned; 0 means no cap.
	Limit int
}

// Querier defines the interface for querying stored run results.
type Querier interface {
	Summary(ctx context.Context) (*RunSummary, error)
	Flows(ctx context.Context, f Filter) ([]model.Flow, error)
	Close() error
}

// complete reports whether the filter names one conversation exactly.
func (f *Filter) complete() bool {
	return f.Src != "" && f.Dst != "" && f.Proto != "" && f.SrcPort != nil && f.DstPort != nil
}

// Match reports whether flow passes the filter.
func (f *Filter) Match(flow *model.Flow) bool {
	if f.TrueLabel != nil && flow.TrueLabel != *f.TrueLabel {
		return false
	}
	if f.PredictedLabel != nil && flow.PredictedLabel != *f.PredictedLabel {
		return false
	}
	if f.complete() {
		// Protocols compare case-insensitively, as on a partial filter.
		got := flowkey.Canonical(flow.SrcAddr, flow.DstAddr, strings.ToLower(flow.Protocol), flow.SrcPort, flow.DstPort)
		return got == flowkey.Canonical(f.Src, f.Dst, strings.ToLower(f.Proto), *f.SrcPort, *f.DstPort)
	}
	if f.Proto != "" && !strings.EqualFold(flow.Protocol, f.Proto) {
		return false
	}
	return f.matchDirection(flow.SrcAddr, flow.DstAddr, flow.SrcPort, flow.DstPort) ||
		f.matchDirection(flow.DstAddr, flow.SrcAddr, flow.DstPort, flow.SrcPort)
}

func (f *Filter) matchDirection(src, dst string, sport, dport int) bool {
	return (f.Src == "" || f.Src == src) &&
		(f.Dst == "" || f.Dst == dst) &&
		(f.SrcPort == nil || *f.SrcPort == sport) &&
		(f.DstPort == nil || *f.DstPort == dport)
}

// Apply returns the flows passing the filter, in order, up to the limit.
func (f *Filter) Apply(flows []model.Flow) []model.Flow {
	out := make([]model.Flow, 0)
	for i := range flows {
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		if f.Match(&flows[i]) {
			out = append(out, flows[i])
		}
	}
	return out
}
