package factory

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/model"
	"context"
	"errors"
	"strings"
	"testing"
)

type stubWriter struct {
	name   string
	closed bool
}

func (w *stubWriter) Name() string                                 { return w.name }
func (w *stubWriter) Write(context.Context, *model.Snapshot) error { return nil }
func (w *stubWriter) Close() error                                 { w.closed = true; return nil }

var built []*stubWriter

func init() {
	RegisterWriter("stub", func(def config.WriterDef, _ *config.Config) (model.Writer, error) {
		w := &stubWriter{name: "stub:" + def.CSV.Path}
		built = append(built, w)
		return w, nil
	})
	RegisterWriter("broken", func(config.WriterDef, *config.Config) (model.Writer, error) {
		return nil, errors.New("connection refused")
	})
}

func TestCreate_EnabledWritersInOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Writers = []config.WriterDef{
		{Type: "stub", Enabled: true, CSV: config.CSVConfig{Path: "a"}},
		{Type: "stub", Enabled: false, CSV: config.CSVConfig{Path: "skipped"}},
		{Type: "stub", Enabled: true, CSV: config.CSVConfig{Path: "b"}},
	}

	writers, err := Create(&cfg, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(writers) != 2 || writers[0].Name() != "stub:a" || writers[1].Name() != "stub:b" {
		t.Fatalf("unexpected writers: %v", writers)
	}
}

func TestCreate_UnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Writers = []config.WriterDef{{Type: "kafka", Enabled: true}}

	_, err := Create(&cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown writer type: 'kafka'") {
		t.Fatalf("expected an unknown type error, got %v", err)
	}
}

func TestCreate_FailureClosesBuiltWriters(t *testing.T) {
	built = nil
	cfg := config.Default()
	cfg.Output.Writers = []config.WriterDef{
		{Type: "stub", Enabled: true},
		{Type: "broken", Enabled: true},
	}

	if _, err := Create(&cfg, nil); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected the constructor error, got %v", err)
	}
	if len(built) != 1 || !built[0].closed {
		t.Errorf("expected the writer built before the failure to be closed")
	}
}

func TestRegisterWriter_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected a panic on duplicate registration")
		}
	}()
	RegisterWriter("stub", nil)
}

func TestTypes(t *testing.T) {
	types := Types()
	if len(types) < 2 || types[0] != "broken" || types[1] != "stub" {
		t.Errorf("unexpected types: %v", types)
	}
}
