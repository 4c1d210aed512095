package flowindex

import (
	"Go2FlowEval/internal/engine/flowkey"
	"Go2FlowEval/internal/model"
)

// FlowID is a stable handle to a flow held by an Index.
type FlowID int

// Index owns every ground-truth flow of a run. Flows live in an arena in
// insertion order; a multimap from canonical key to flow ids groups the
// flows that share a 5-tuple (the same conversation at different times).
//
// Entries are never removed or replaced. Apart from insertion, the only
// mutation is through the *model.Flow handles returned by Flow.
type Index struct {
	flows   []model.Flow
	buckets map[string][]FlowID
	keys    []string // keys in first-insertion order
}

// New creates an empty index with room for sizeHint flows.
func New(sizeHint int) *Index {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Index{
		flows:   make([]model.Flow, 0, sizeHint),
		buckets: make(map[string][]FlowID, sizeHint),
	}
}

// Insert adds a flow under its canonical key. Flows with identical tuples
// are all retained.
func (ix *Index) Insert(flow model.Flow) FlowID {
	id := FlowID(len(ix.flows))
	ix.flows = append(ix.flows, flow)

	key := flowkey.Of(flow.FiveTuple)
	bucket, ok := ix.buckets[key]
	if !ok {
		ix.keys = append(ix.keys, key)
	}
	ix.buckets[key] = append(bucket, id)
	return id
}

// Lookup returns the ids of every flow stored under key, in insertion
// order. A miss returns nil. The returned slice must not be modified.
func (ix *Index) Lookup(key string) []FlowID {
	return ix.buckets[key]
}

// Flow returns the flow behind id. The pointer stays valid until the next
// Insert.
func (ix *Index) Flow(id FlowID) *model.Flow {
	return &ix.flows[id]
}

// Len returns the number of flows in the index.
func (ix *Index) Len() int {
	return len(ix.flows)
}

// Keys returns the number of distinct canonical keys.
func (ix *Index) Keys() int {
	return len(ix.keys)
}

// Each visits every flow: keys in first-insertion order, then the flows of
// each key in insertion order. The order is stable for a given sequence of
// inserts.
func (ix *Index) Each(fn func(key string, id FlowID, flow *model.Flow)) {
	for _, key := range ix.keys {
		for _, id := range ix.buckets[key] {
			fn(key, id, &ix.flows[id])
		}
	}
}

// Flows copies every flow out in Each order.
func (ix *Index) Flows() []model.Flow {
	out := make([]model.Flow, 0, len(ix.flows))
	ix.Each(func(_ string, _ FlowID, flow *model.Flow) {
		out = append(out, *flow)
	})
	return out
}
