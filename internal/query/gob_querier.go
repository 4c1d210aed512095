package query

import (
	"Go2FlowEval/internal/model"
	"Go2FlowEval/internal/writer/gobsnap"
	"context"
	"sync"
)

// gobQuerier answers from the newest snapshot under a root directory. The
// decoded snapshot is kept until a newer one appears.
type gobQuerier struct {
	root string

	mu     sync.Mutex
	dir    string
	cached *model.Snapshot
}

// NewGobQuerier creates a querier over the snapshots written by the gob
// writer.
func NewGobQuerier(root string) Querier {
	return &gobQuerier{root: root}
}

func (q *gobQuerier) latest() (*model.Snapshot, error) {
	dir, err := gobsnap.Latest(q.root)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if dir == q.dir && q.cached != nil {
		return q.cached, nil
	}
	snap, err := gobsnap.Load(dir)
	if err != nil {
		return nil, err
	}
	q.dir, q.cached = dir, snap
	return snap, nil
}

func (q *gobQuerier) Summary(ctx context.Context) (*RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := q.latest()
	if err != nil {
		return nil, err
	}
	return &RunSummary{
		RunID:     snap.RunID,
		CreatedAt: snap.CreatedAt,
		Stats:     snap.Stats,
		Summary:   snap.Summary,
	}, nil
}

func (q *gobQuerier) Flows(ctx context.Context, f Filter) ([]model.Flow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := q.latest()
	if err != nil {
		return nil, err
	}
	return f.Apply(snap.Flows), nil
}

func (q *gobQuerier) Close() error { return nil }
