// Package amqppub publishes run results to an AMQP exchange as JSON.
package amqppub

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/factory"
	"Go2FlowEval/internal/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
)

const contentType = "application/json"

func init() {
	factory.RegisterWriter("amqp", func(def config.WriterDef, cfg *config.Config) (model.Writer, error) {
		return NewPublisher(def.AMQP, cfg.Output.UnsetLabel, nil)
	})
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// FlowMessage is the JSON body of a per-flow message.
type FlowMessage struct {
	RunID           string `json:"run_id"`
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	Protocol        string `json:"protocol"`
	SourcePort      int    `json:"source_port"`
	DestinationPort int    `json:"destination_port"`
	Start           int64  `json:"start"`
	Stop            int64  `json:"stop"`
	TrueLabel       string `json:"true_label"`
	PredictedLabel  string `json:"predicted_label"`
}

// Publisher sends one message per flow to an exchange.
type Publisher struct {
	conn       *amqp.Connection
	ch         channel
	exchange   string
	routingKey string
	unsetLabel string
	logger     *slog.Logger
}

// NewPublisher dials the broker and opens a channel.
func NewPublisher(cfg config.AMQPConfig, unsetLabel string, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp writer needs amqp.url")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	p := newPublisher(ch, cfg.Exchange, cfg.RoutingKey, unsetLabel, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange, routingKey, unsetLabel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		unsetLabel: unsetLabel,
		logger:     logger,
	}
}

// Name identifies the writer in logs.
func (p *Publisher) Name() string {
	return fmt.Sprintf("amqp:%s/%s", p.exchange, p.routingKey)
}

// Write publishes every flow of the snapshot.
func (p *Publisher) Write(ctx context.Context, snap *model.Snapshot) error {
	for i := range snap.Flows {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := json.Marshal(NewFlowMessage(snap.RunID, &snap.Flows[i], p.unsetLabel))
		if err != nil {
			return fmt.Errorf("failed to encode flow %d: %w", i, err)
		}
		err = p.ch.Publish(
			p.exchange,   // exchange
			p.routingKey, // routing key
			false,        // mandatory
			false,        // immediate
			amqp.Publishing{
				ContentType: contentType,
				Body:        body,
			})
		if err != nil {
			return fmt.Errorf("failed to publish flow %d: %w", i, err)
		}
	}
	p.logger.Info("published flows to AMQP",
		slog.Int("flows", len(snap.Flows)),
		slog.String("exchange", p.exchange),
		slog.String("routing_key", p.routingKey))
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}

// NewFlowMessage converts a flow into its message body.
func NewFlowMessage(runID string, f *model.Flow, unsetLabel string) FlowMessage {
	predicted := f.PredictedLabel.String()
	if !f.PredictedLabel.IsSet() && unsetLabel != "" {
		predicted = unsetLabel
	}
	return FlowMessage{
		RunID:           runID,
		Source:          f.SrcAddr,
		Destination:     f.DstAddr,
		Protocol:        f.Protocol,
		SourcePort:      f.SrcPort,
		DestinationPort: f.DstPort,
		Start:           f.Start,
		Stop:            f.Stop,
		TrueLabel:       f.TrueLabel.String(),
		PredictedLabel:  predicted,
	}
}
