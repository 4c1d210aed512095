// Package predcsv streams packet-level classifier verdicts from a
// comma-separated table.
package predcsv

import (
	"Go2FlowEval/internal/engine/protocol"
	"Go2FlowEval/internal/ingest"
	"Go2FlowEval/internal/model"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Columns gives the zero-based position of each field a row provides.
type Columns struct {
	AddressA  int
	AddressB  int
	Protocol  int
	PortA     int
	PortB     int
	Timestamp int
	Label     int
}

// DefaultColumns is the classifier's 12-column layout.
var DefaultColumns = Columns{
	AddressA:  0,
	AddressB:  1,
	Protocol:  2,
	PortA:     3,
	PortB:     4,
	Timestamp: 5,
	Label:     11,
}

// Options controls the table layout.
type Options struct {
	// ExpectedColumns is the minimum number of fields of a usable row.
	ExpectedColumns int
	Columns         Columns
	Comma           rune
	SkipHeader      bool
}

// DefaultOptions returns the classifier's table layout.
func DefaultOptions() Options {
	return Options{
		ExpectedColumns: 12,
		Columns:         DefaultColumns,
		Comma:           ',',
	}
}

// Reader yields one model.PredictionRow per table row, in file order.
type Reader struct {
	csv  *csv.Reader
	opts Options

	skipHeader bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, opts Options) *Reader {
	if opts.ExpectedColumns <= 0 {
		opts.ExpectedColumns = DefaultOptions().ExpectedColumns
	}
	if opts.Comma == 0 {
		opts.Comma = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	return &Reader{csv: cr, opts: opts, skipHeader: opts.SkipHeader}
}

// Next returns the next row. Rows that cannot be used come back as a
// *ingest.RowError and the reader stays usable; any other error, io.EOF
// aside, means the input cannot be read further.
func (r *Reader) Next() (model.PredictionRow, error) {
	for {
		record, err := r.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return model.PredictionRow{}, io.EOF
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return model.PredictionRow{}, ingest.NewRowError(parseErr.StartLine, parseErr.Err)
			}
			return model.PredictionRow{}, fmt.Errorf("failed to read prediction table: %w", err)
		}

		line, _ := r.csv.FieldPos(0)
		if r.skipHeader {
			r.skipHeader = false
			continue
		}

		row, err := r.parse(record)
		if err != nil {
			return model.PredictionRow{}, ingest.NewRowError(line, err)
		}
		row.Line = line
		return row, nil
	}
}

func (r *Reader) parse(record []string) (model.PredictionRow, error) {
	if len(record) < r.opts.ExpectedColumns {
		return model.PredictionRow{}, fmt.Errorf("row has %d fields, want %d", len(record), r.opts.ExpectedColumns)
	}
	c := r.opts.Columns

	row := model.PredictionRow{
		FiveTuple: model.FiveTuple{
			SrcAddr:  strings.TrimSpace(record[c.AddressA]),
			DstAddr:  strings.TrimSpace(record[c.AddressB]),
			Protocol: protocol.Parse(record[c.Protocol]),
		},
	}
	if row.SrcAddr == "" || row.DstAddr == "" {
		return model.PredictionRow{}, errors.New("row has an empty address")
	}

	var err error
	if row.SrcPort, err = parsePort(record[c.PortA]); err != nil {
		return model.PredictionRow{}, fmt.Errorf("source port: %w", err)
	}
	if row.DstPort, err = parsePort(record[c.PortB]); err != nil {
		return model.PredictionRow{}, fmt.Errorf("destination port: %w", err)
	}
	if row.Timestamp, err = strconv.ParseFloat(strings.TrimSpace(record[c.Timestamp]), 64); err != nil {
		return model.PredictionRow{}, fmt.Errorf("timestamp: %w", err)
	}
	if math.IsNaN(row.Timestamp) || math.IsInf(row.Timestamp, 0) {
		return model.PredictionRow{}, fmt.Errorf("timestamp %q is not finite", record[c.Timestamp])
	}
	if row.Label, err = model.ParseLabel(record[c.Label]); err != nil {
		return model.PredictionRow{}, err
	}
	return row, nil
}

// parsePort reads a decimal port; ICMP rows leave the port fields empty,
// which reads as 0.
func parsePort(field string) (int, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(field)
	if err != nil {
		return 0, err
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
