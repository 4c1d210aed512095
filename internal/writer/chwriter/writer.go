// Package chwriter stores run results in ClickHouse, one row per flow.
package chwriter

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/factory"
	"Go2FlowEval/internal/model"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DefaultTable is used when the config leaves the table name empty.
const DefaultTable = "flow_predictions"

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    RunID          String,
    Timestamp      DateTime,
    SrcIP          String,
    DstIP          String,
    Protocol       LowCardinality(String),
    SrcPort        UInt16,
    DstPort        UInt16,
    StartTime      DateTime,
    EndTime        DateTime,
    TrueLabel      LowCardinality(String),
    PredictedLabel LowCardinality(String)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RunID, SrcIP, DstIP, StartTime);
`

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, cfg *config.Config) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, cfg.Output.UnsetLabel, nil)
	})
}

// ClickHouseWriter implements model.Writer for ClickHouse.
type ClickHouseWriter struct {
	conn       driver.Conn
	table      string
	unsetLabel string
	logger     *slog.Logger
}

// NewClickHouseWriter connects and makes sure the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, unsetLabel string, logger *slog.Logger) (*ClickHouseWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table, err := Table(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), fmt.Sprintf(createTableStatement, table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logger.Info("connected to ClickHouse and ensured table exists", slog.String("table", table))

	return &ClickHouseWriter{conn: conn, table: table, unsetLabel: unsetLabel, logger: logger}, nil
}

// Table returns the validated table name of cfg.
func Table(cfg config.ClickHouseConfig) (string, error) {
	if cfg.Table == "" {
		return DefaultTable, nil
	}
	if !tableName.MatchString(cfg.Table) {
		return "", fmt.Errorf("invalid clickhouse table name %q", cfg.Table)
	}
	return cfg.Table, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug:       false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Name identifies the writer in logs.
func (w *ClickHouseWriter) Name() string {
	return "clickhouse:" + w.table
}

// Write inserts every flow of the snapshot in a single batch.
func (w *ClickHouseWriter) Write(ctx context.Context, snap *model.Snapshot) error {
	if len(snap.Flows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for i := range snap.Flows {
		if err := batch.Append(Row(snap, &snap.Flows[i], w.unsetLabel)...); err != nil {
			return fmt.Errorf("failed to append flow to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	w.logger.Info("wrote flows to ClickHouse",
		slog.Int("flows", len(snap.Flows)),
		slog.String("run_id", snap.RunID))
	return nil
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

// Row renders a flow in table column order.
func Row(snap *model.Snapshot, f *model.Flow, unsetLabel string) []interface{} {
	predicted := f.PredictedLabel.String()
	if !f.PredictedLabel.IsSet() && unsetLabel != "" {
		predicted = unsetLabel
	}
	return []interface{}{
		snap.RunID,
		snap.CreatedAt.UTC().Truncate(time.Second),
		f.SrcAddr,
		f.DstAddr,
		f.Protocol,
		uint16(f.SrcPort),
		uint16(f.DstPort),
		time.Unix(f.Start, 0).UTC(),
		time.Unix(f.Stop, 0).UTC(),
		f.TrueLabel.String(),
		predicted,
	}
}
