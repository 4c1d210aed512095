// Package gobsnap persists run snapshots on disk: one timestamped
// directory per run holding the flows in gob format and a JSON summary.
package gobsnap

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/factory"
	"Go2FlowEval/internal/model"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// TimestampLayout names snapshot directories; it sorts chronologically.
	TimestampLayout = "2006-01-02_15-04-05.000000"

	flowsFile   = "flows.gob"
	summaryFile = "summary.json"
)

// ErrNoSnapshot is returned when a root directory holds no snapshot.
var ErrNoSnapshot = errors.New("no snapshot found")

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef, _ *config.Config) (model.Writer, error) {
		if def.Gob.RootPath == "" {
			return nil, fmt.Errorf("gob writer needs gob.root_path")
		}
		return NewWriter(def.Gob.RootPath), nil
	})
}

// SummaryData holds the metadata for a snapshot.
type SummaryData struct {
	RunID      string                 `json:"run_id"`
	CreatedAt  time.Time              `json:"created_at"`
	TotalFlows int                    `json:"total_flows"`
	Stats      model.CorrelationStats `json:"stats"`
	Summary    model.Summary          `json:"summary"`
	Timestamp  string                 `json:"timestamp"`
}

// Writer handles writing snapshots to disk.
type Writer struct {
	rootPath string
}

// NewWriter creates a new snapshot writer under rootPath.
func NewWriter(rootPath string) *Writer {
	return &Writer{rootPath: rootPath}
}

// Name identifies the writer in logs.
func (w *Writer) Name() string {
	return "gob:" + w.rootPath
}

// Write stores the snapshot in a new directory <root>/<run id>/. The run id
// falls back to the creation time when empty. An existing directory is
// never reused: a numeric suffix is added instead.
func (w *Writer) Write(ctx context.Context, snap *model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dirName := snap.RunID
	if dirName == "" {
		dirName = snap.CreatedAt.UTC().Format(TimestampLayout)
	}
	snapshotDir, err := w.createDir(dirName)
	if err != nil {
		return err
	}

	// 1. Flows
	filePath := filepath.Join(snapshotDir, flowsFile)
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", filePath, err)
	}
	defer file.Close()

	flows := snap.Flows
	if flows == nil {
		flows = []model.Flow{}
	}
	if err := gob.NewEncoder(file).Encode(flows); err != nil {
		return fmt.Errorf("failed to encode flows to gob for file '%s': %w", filePath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file '%s': %w", filePath, err)
	}

	// 2. Summary
	summary := SummaryData{
		RunID:      snap.RunID,
		CreatedAt:  snap.CreatedAt,
		TotalFlows: len(snap.Flows),
		Stats:      snap.Stats,
		Summary:    snap.Summary,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	summaryFilePath := filepath.Join(snapshotDir, summaryFile)
	sf, err := os.Create(summaryFilePath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer sf.Close()

	jsonEncoder := json.NewEncoder(sf)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return sf.Close()
}

// createDir makes a fresh snapshot directory named name, or name_N when
// that is taken.
func (w *Writer) createDir(name string) (string, error) {
	if err := os.MkdirAll(w.rootPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot root: %w", err)
	}
	dir := filepath.Join(w.rootPath, name)
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		dir = filepath.Join(w.rootPath, fmt.Sprintf("%s_%d", name, i))
	}
}

// Close is a no-op.
func (w *Writer) Close() error { return nil }

// Load reads the snapshot stored in dir.
func Load(dir string) (*model.Snapshot, error) {
	file, err := os.Open(filepath.Join(dir, flowsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot flows: %w", err)
	}
	defer file.Close()

	var flows []model.Flow
	if err := gob.NewDecoder(file).Decode(&flows); err != nil {
		return nil, fmt.Errorf("failed to decode gob file '%s': %w", file.Name(), err)
	}

	summary, err := LoadSummary(dir)
	if err != nil {
		return nil, err
	}

	return &model.Snapshot{
		RunID:     summary.RunID,
		CreatedAt: summary.CreatedAt,
		Flows:     flows,
		Stats:     summary.Stats,
		Summary:   summary.Summary,
	}, nil
}

// LoadSummary reads only the summary.json of the snapshot in dir.
func LoadSummary(dir string) (*SummaryData, error) {
	data, err := os.ReadFile(filepath.Join(dir, summaryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read summary.json: %w", err)
	}
	var summary SummaryData
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary.json: %w", err)
	}
	return &summary, nil
}

// Latest returns the newest complete snapshot directory under root.
func Latest(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w under %s", ErrNoSnapshot, root)
		}
		return "", fmt.Errorf("failed to list snapshots: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, summaryFile)); err == nil {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w under %s", ErrNoSnapshot, root)
}
