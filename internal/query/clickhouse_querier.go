package query

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/engine/evaluation"
	"Go2FlowEval/internal/model"
	"Go2FlowEval/internal/writer/chwriter"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn  driver.Conn
	table string
}

// NewClickHouseQuerier creates a new querier over the table the ClickHouse
// writer fills.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	table, err := chwriter.Table(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := chwriter.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn, table: table}, nil
}

func latestRun(table string) string {
	return fmt.Sprintf("(SELECT RunID FROM %s ORDER BY Timestamp DESC LIMIT 1)", table)
}

// summaryQuery counts the confusion matrix of the latest run.
func summaryQuery(table string) string {
	return fmt.Sprintf(`
		SELECT
			RunID,
			max(Timestamp) AS CreatedAt,
			count() AS Flows,
			countIf(TrueLabel = 'Attack' AND PredictedLabel = 'Attack') AS TP,
			countIf(TrueLabel = 'Normal' AND PredictedLabel = 'Attack') AS FP,
			countIf(TrueLabel = 'Normal' AND PredictedLabel = 'Normal') AS TN,
			countIf(TrueLabel = 'Attack' AND PredictedLabel = 'Normal') AS FN,
			countIf(TrueLabel = 'Attack' AND PredictedLabel NOT IN ('Attack', 'Normal')) AS UnsetAttack,
			countIf(TrueLabel != 'Attack' AND PredictedLabel NOT IN ('Attack', 'Normal')) AS UnsetNormal
		FROM %s
		WHERE RunID = %s
		GROUP BY RunID
	`, table, latestRun(table))
}

// Summary reports the latest run. Row statistics are not stored in
// ClickHouse and come back as zero.
func (q *clickhouseQuerier) Summary(ctx context.Context) (*RunSummary, error) {
	var (
		runID                  string
		created                time.Time
		flows, tp, fp, tn, fn  uint64
		unsetAttack, unsetNorm uint64
	)
	row := q.conn.QueryRow(ctx, summaryQuery(q.table))
	if err := row.Scan(&runID, &created, &flows, &tp, &fp, &tn, &fn, &unsetAttack, &unsetNorm); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w in table %s", ErrNoSnapshot, q.table)
		}
		return nil, fmt.Errorf("failed to scan summary result: %w", err)
	}

	s := model.Summary{
		Flows:         int(flows),
		TruePositive:  int(tp),
		FalsePositive: int(fp),
		TrueNegative:  int(tn),
		FalseNegative: int(fn),
		UnsetAttack:   int(unsetAttack),
		UnsetNormal:   int(unsetNorm),
	}
	evaluation.Finalize(&s)

	return &RunSummary{RunID: runID, CreatedAt: created, Summary: s}, nil
}

// flowsQuery builds the SELECT for f over the latest run.
func flowsQuery(table string, f Filter) (string, []interface{}) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT SrcIP, DstIP, Protocol, SrcPort, DstPort, StartTime, EndTime, TrueLabel, PredictedLabel
		FROM ` + table)

	whereClauses := []string{"RunID = " + latestRun(table)}
	args := []interface{}{}

	if f.Proto != "" {
		whereClauses = append(whereClauses, "lower(Protocol) = lower(?)")
		args = append(args, f.Proto)
	}
	if f.TrueLabel != nil {
		whereClauses = append(whereClauses, "TrueLabel = ?")
		args = append(args, f.TrueLabel.String())
	}
	if f.PredictedLabel != nil {
		if f.PredictedLabel.IsSet() {
			whereClauses = append(whereClauses, "PredictedLabel = ?")
			args = append(args, f.PredictedLabel.String())
		} else {
			whereClauses = append(whereClauses, "PredictedLabel NOT IN ('Attack', 'Normal')")
		}
	}

	forward, fargs := directionClause(f.Src, f.Dst, f.SrcPort, f.DstPort)
	if forward != "" {
		reverse, rargs := directionClause(f.Dst, f.Src, f.DstPort, f.SrcPort)
		whereClauses = append(whereClauses, "(("+forward+") OR ("+reverse+"))")
		args = append(args, fargs...)
		args = append(args, rargs...)
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	queryBuilder.WriteString(" ORDER BY StartTime, SrcIP, DstIP")
	if f.Limit > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", f.Limit))
	}
	return queryBuilder.String(), args
}

func directionClause(src, dst string, sport, dport *int) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if src != "" {
		clauses = append(clauses, "SrcIP = ?")
		args = append(args, src)
	}
	if dst != "" {
		clauses = append(clauses, "DstIP = ?")
		args = append(args, dst)
	}
	if sport != nil {
		clauses = append(clauses, "SrcPort = ?")
		args = append(args, uint16(*sport))
	}
	if dport != nil {
		clauses = append(clauses, "DstPort = ?")
		args = append(args, uint16(*dport))
	}
	return strings.Join(clauses, " AND "), args
}

// Flows returns the flows of the latest run passing f.
func (q *clickhouseQuerier) Flows(ctx context.Context, f Filter) ([]model.Flow, error) {
	query, args := flowsQuery(q.table, f)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	flows := make([]model.Flow, 0)
	for rows.Next() {
		var (
			flow             model.Flow
			sport, dport     uint16
			start, stop      time.Time
			truth, predicted string
		)
		if err := rows.Scan(&flow.SrcAddr, &flow.DstAddr, &flow.Protocol, &sport, &dport, &start, &stop, &truth, &predicted); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		flow.SrcPort, flow.DstPort = int(sport), int(dport)
		flow.Start, flow.Stop = start.Unix(), stop.Unix()
		flow.TrueLabel = parseStoredLabel(truth)
		flow.PredictedLabel = parseStoredLabel(predicted)
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read flows: %w", err)
	}
	return flows, nil
}

// parseStoredLabel reads a label column; anything that is not a class is
// the unset label.
func parseStoredLabel(s string) model.Label {
	l, err := model.ParseLabel(s)
	if err != nil {
		return model.LabelUnset
	}
	return l
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}
