package manager

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/engine/clock"
	"Go2FlowEval/internal/engine/correlator"
	"Go2FlowEval/internal/engine/evaluation"
	"Go2FlowEval/internal/engine/flowindex"
	"Go2FlowEval/internal/metrics"
	"Go2FlowEval/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// RunIDLayout formats the creation time of a run into its id.
const RunIDLayout = "2006-01-02_15-04-05.000000"

// Manager orchestrates one evaluation run and hands the result to its
// writers.
type Manager struct {
	cfg     *config.Config
	policy  correlator.OverlapPolicy
	primary model.Writer
	writers []model.Writer
	metrics *metrics.Collectors
	logger  *slog.Logger

	now func() time.Time
}

// NewManager creates a Manager. primary receives the snapshot first and
// must succeed; writers are then written concurrently. collectors may be
// nil.
func NewManager(cfg *config.Config, primary model.Writer, writers []model.Writer, collectors *metrics.Collectors, logger *slog.Logger) (*Manager, error) {
	policy, err := correlator.ParseOverlapPolicy(cfg.Correlator.OverlapPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid correlator config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		policy:  policy,
		primary: primary,
		writers: writers,
		metrics: collectors,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// BuildIndex drains src into a new index. Records the source reports as
// malformed are skipped and counted; any other error aborts.
func (m *Manager) BuildIndex(src model.FlowSource) (*flowindex.Index, uint64, error) {
	ix := flowindex.New(1024)
	var rejected uint64
	for {
		flow, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, model.ErrMalformedRow) {
				rejected++
				m.logger.Debug("skipping flow record", slog.Any("error", err))
				continue
			}
			return nil, rejected, fmt.Errorf("failed to read flow records: %w", err)
		}
		ix.Insert(flow)
	}

	m.logger.Info("flow index built",
		slog.Int("flows", ix.Len()),
		slog.Int("keys", ix.Keys()),
		slog.Uint64("rejected", rejected))
	if rejected > 0 {
		m.logger.Warn("some flow records were rejected", slog.Uint64("count", rejected))
	}
	if m.metrics != nil {
		m.metrics.ObserveRejectedFlows(int(rejected))
	}
	return ix, rejected, nil
}

// Run builds the index from flows, correlates rows against it and writes
// the resulting snapshot. Nothing is written unless correlation succeeds.
// A failure of an extra writer is reported after the others have finished;
// the primary output is kept.
func (m *Manager) Run(ctx context.Context, flows model.FlowSource, rows model.RowSource) (*model.Snapshot, error) {
	ix, rejected, err := m.BuildIndex(flows)
	if err != nil {
		return nil, err
	}

	c := correlator.New(ix, clock.New(m.cfg.Correlator.ReferenceStart), m.policy, m.logger)
	started := m.now()
	stats, err := c.Run(rows)
	elapsed := m.now().Sub(started)
	if err != nil {
		return nil, err
	}
	stats.FlowsRejected = rejected

	if m.metrics != nil {
		m.metrics.ObserveCorrelation(stats, elapsed)
	}
	if stats.RowsMalformed > 0 {
		m.logger.Warn("malformed prediction rows were skipped", slog.Uint64("count", stats.RowsMalformed))
	}
	m.logger.Info("correlation finished",
		slog.Uint64("rows", stats.RowsRead),
		slog.Uint64("matched", stats.RowsMatched),
		slog.Uint64("unmatched", stats.RowsUnmatched),
		slog.Uint64("out_of_window", stats.RowsOutOfWindow),
		slog.Uint64("label_writes", stats.LabelWrites),
		slog.Duration("elapsed", elapsed))

	created := m.now().UTC()
	snap := &model.Snapshot{
		RunID:     created.Format(RunIDLayout),
		CreatedAt: created,
		Flows:     ix.Flows(),
		Stats:     stats,
	}
	snap.Summary = evaluation.Summarize(snap.Flows)

	if m.metrics != nil {
		m.metrics.ObserveSnapshot(snap, m.cfg.Output.UnsetLabel)
	}

	if m.primary != nil {
		if err := m.primary.Write(ctx, snap); err != nil {
			return snap, fmt.Errorf("failed to write %s: %w", m.primary.Name(), err)
		}
		m.logger.Info("results written", slog.String("writer", m.primary.Name()), slog.Int("flows", len(snap.Flows)))
	}

	return snap, m.fanOut(ctx, snap)
}

// fanOut writes snap to every extra writer concurrently.
func (m *Manager) fanOut(ctx context.Context, snap *model.Snapshot) error {
	if len(m.writers) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	wg.Add(len(m.writers))
	for _, writer := range m.writers {
		go func(w model.Writer) {
			defer wg.Done()
			if err := w.Write(ctx, snap); err != nil {
				m.logger.Error("writer failed", slog.String("writer", w.Name()), slog.Any("error", err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("writer %s: %w", w.Name(), err))
				mu.Unlock()
			}
		}(writer)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Close closes every writer.
func (m *Manager) Close() error {
	var errs []error
	all := m.writers
	if m.primary != nil {
		all = append([]model.Writer{m.primary}, all...)
	}
	for _, w := range all {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}
