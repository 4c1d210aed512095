// Package natspub publishes run results to NATS as protobuf Struct
// messages: one per flow, then one run summary.
package natspub

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/factory"
	"Go2FlowEval/internal/model"
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultSubject is used when the config leaves the subject empty.
const DefaultSubject = "go2floweval.flows"

func init() {
	factory.RegisterWriter("nats", func(def config.WriterDef, cfg *config.Config) (model.Writer, error) {
		return NewPublisher(def.NATS, cfg.Output.UnsetLabel, nil)
	})
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	Flush() error
	Drain() error
}

// Publisher is responsible for publishing flow results to a NATS subject.
type Publisher struct {
	nc         conn
	subject    string
	unsetLabel string
	logger     *slog.Logger
}

// NewPublisher connects to the NATS server of cfg.
func NewPublisher(cfg config.NATSConfig, unsetLabel string, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("go2floweval"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	p := newPublisher(nc, cfg.Subject, unsetLabel, logger)
	p.logger.Info("connected to NATS server", slog.String("url", cfg.URL), slog.String("subject", p.subject))
	return p, nil
}

func newPublisher(nc conn, subject, unsetLabel string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, subject: subject, unsetLabel: unsetLabel, logger: logger}
}

// Name identifies the writer in logs.
func (p *Publisher) Name() string {
	return "nats:" + p.subject
}

// Write publishes every flow on the subject and the run summary on
// <subject>.summary, then flushes.
func (p *Publisher) Write(ctx context.Context, snap *model.Snapshot) error {
	for i := range snap.Flows {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := FlowMessage(snap.RunID, &snap.Flows[i], p.unsetLabel)
		if err != nil {
			return err
		}
		if err := p.publish(p.subject, msg); err != nil {
			return fmt.Errorf("failed to publish flow %d: %w", i, err)
		}
	}

	msg, err := SummaryMessage(snap)
	if err != nil {
		return err
	}
	if err := p.publish(p.subject+".summary", msg); err != nil {
		return fmt.Errorf("failed to publish summary: %w", err)
	}

	if err := p.nc.Flush(); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	p.logger.Info("published flows to NATS", slog.Int("flows", len(snap.Flows)), slog.String("subject", p.subject))
	return nil
}

func (p *Publisher) publish(subject string, msg *structpb.Struct) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	return p.nc.Publish(subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	p.logger.Debug("NATS connection drained and closed")
	return nil
}

// FlowMessage converts a flow into its wire form.
func FlowMessage(runID string, f *model.Flow, unsetLabel string) (*structpb.Struct, error) {
	predicted := f.PredictedLabel.String()
	if !f.PredictedLabel.IsSet() && unsetLabel != "" {
		predicted = unsetLabel
	}
	msg, err := structpb.NewStruct(map[string]interface{}{
		"run_id":           runID,
		"source":           f.SrcAddr,
		"destination":      f.DstAddr,
		"protocol":         f.Protocol,
		"source_port":      f.SrcPort,
		"destination_port": f.DstPort,
		"start":            f.Start,
		"stop":             f.Stop,
		"true_label":       f.TrueLabel.String(),
		"predicted_label":  predicted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build flow message: %w", err)
	}
	return msg, nil
}

// SummaryMessage converts the run's statistics and evaluation.
func SummaryMessage(snap *model.Snapshot) (*structpb.Struct, error) {
	s, st := snap.Summary, snap.Stats
	msg, err := structpb.NewStruct(map[string]interface{}{
		"run_id":         snap.RunID,
		"flows":          s.Flows,
		"true_positive":  s.TruePositive,
		"false_positive": s.FalsePositive,
		"true_negative":  s.TrueNegative,
		"false_negative": s.FalseNegative,
		"unset_attack":   s.UnsetAttack,
		"unset_normal":   s.UnsetNormal,
		"accuracy":       s.Accuracy,
		"precision":      s.Precision,
		"recall":         s.Recall,
		"f1":             s.F1,
		"rows_read":      st.RowsRead,
		"rows_malformed": st.RowsMalformed,
		"rows_unmatched": st.RowsUnmatched,
		"rows_matched":   st.RowsMatched,
		"clock_offset":   st.ClockOffset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build summary message: %w", err)
	}
	return msg, nil
}
