// Package csvout is the result emitter: one comma-separated line per flow,
// matched or not, with no header.
package csvout

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/factory"
	"Go2FlowEval/internal/model"
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultUnsetLabel is written for flows no prediction reached.
const DefaultUnsetLabel = "Nothing"

func init() {
	factory.RegisterWriter("csv", func(def config.WriterDef, cfg *config.Config) (model.Writer, error) {
		if def.CSV.Path == "" {
			return nil, fmt.Errorf("csv writer needs csv.path")
		}
		return New(def.CSV.Path, cfg.Output.UnsetLabel), nil
	})
}

// Writer emits a snapshot to a file, replacing any previous content.
type Writer struct {
	path       string
	unsetLabel string
}

// New creates a writer for path. An empty unsetLabel means
// DefaultUnsetLabel.
func New(path, unsetLabel string) *Writer {
	if unsetLabel == "" {
		unsetLabel = DefaultUnsetLabel
	}
	return &Writer{path: path, unsetLabel: unsetLabel}
}

// Name identifies the writer in logs.
func (w *Writer) Name() string {
	return "csv:" + w.path
}

// Write renders the snapshot into a temporary file next to the target and
// renames it into place. The target is untouched if anything fails.
func (w *Writer) Write(ctx context.Context, snap *model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, snap.Flows, w.unsetLabel); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set output file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("failed to move output file into place: %w", err)
	}
	return nil
}

// Close is a no-op; every Write is self-contained.
func (w *Writer) Close() error { return nil }

// Encode writes one record per flow, in slice order:
// source,destination,protocol,sourcePort,destinationPort,start,stop,trueLabel,predictedLabel
func Encode(out io.Writer, flows []model.Flow, unsetLabel string) error {
	cw := csv.NewWriter(out)
	record := make([]string, 9)
	for i := range flows {
		f := &flows[i]
		record[0] = f.SrcAddr
		record[1] = f.DstAddr
		record[2] = f.Protocol
		record[3] = strconv.Itoa(f.SrcPort)
		record[4] = strconv.Itoa(f.DstPort)
		record[5] = strconv.FormatInt(f.Start, 10)
		record[6] = strconv.FormatInt(f.Stop, 10)
		record[7] = f.TrueLabel.String()
		record[8] = labelString(f.PredictedLabel, unsetLabel)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to encode flow %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to encode flows: %w", err)
	}
	return nil
}

func labelString(l model.Label, unset string) string {
	if !l.IsSet() {
		return unset
	}
	return l.String()
}
