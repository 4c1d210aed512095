// Package xmlflows streams ground-truth flows out of an ISCX-style record
// file: a root element whose children are flow records, each carrying its
// fields as child elements.
package xmlflows

import (
	"Go2FlowEval/internal/engine/protocol"
	"Go2FlowEval/internal/ingest"
	"Go2FlowEval/internal/model"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Element names of the record fields that are read. Anything else inside a
// record is ignored.
const (
	elemSource      = "source"
	elemDestination = "destination"
	elemProtocol    = "protocolName"
	elemSourcePort  = "sourcePort"
	elemDestPort    = "destinationPort"
	elemStart       = "startDateTime"
	elemStop        = "stopDateTime"
	elemTag         = "Tag"

	tagNormal = "Normal"
)

// DefaultTimeLayout is the layout of startDateTime and stopDateTime.
const DefaultTimeLayout = "2006-01-02T15:04:05"

// Options controls how record fields are interpreted.
type Options struct {
	TimeLayout string
	// Location is the zone timestamps without an offset are read in.
	// Nil means UTC.
	Location *time.Location
}

// Field is one child element of a record.
type Field struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// Record is a flow record as it appears in the file, every child element
// kept in order. It marshals back to the same shape.
type Record struct {
	XMLName xml.Name
	Fields  []Field `xml:",any"`
}

// Value returns the trimmed text of the first child named name.
func (rec *Record) Value(name string) (string, bool) {
	for _, f := range rec.Fields {
		if f.XMLName.Local == name {
			return strings.TrimSpace(f.Value), true
		}
	}
	return "", false
}

// Label is the record's true label: Normal when Tag is exactly "Normal",
// Attack otherwise. ok is false when the record has no Tag.
func (rec *Record) Label() (label model.Label, ok bool) {
	tag, ok := rec.Value(elemTag)
	if !ok {
		return model.LabelUnset, false
	}
	if tag == tagNormal {
		return model.LabelNormal, true
	}
	return model.LabelAttack, true
}

// Reader yields one model.Flow per record. It holds a single record in
// memory at a time.
type Reader struct {
	dec    *xml.Decoder
	layout string
	loc    *time.Location

	inRoot bool
	done   bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, opts Options) *Reader {
	if opts.TimeLayout == "" {
		opts.TimeLayout = DefaultTimeLayout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Reader{
		dec:    xml.NewDecoder(r),
		layout: opts.TimeLayout,
		loc:    opts.Location,
	}
}

// Next returns the next flow. It returns io.EOF after the root element
// closes, a *ingest.RowError for a record whose fields cannot be used (the
// reader stays usable), and any other error for a broken document.
func (r *Reader) Next() (model.Flow, error) {
	rec, line, err := r.next()
	if err != nil {
		return model.Flow{}, err
	}
	flow, err := r.toFlow(&rec)
	if err != nil {
		return model.Flow{}, ingest.NewRowError(line, err)
	}
	return flow, nil
}

// NextRecord returns the next record without interpreting its fields.
// End of input and broken documents are reported as by Next.
func (r *Reader) NextRecord() (Record, error) {
	rec, _, err := r.next()
	return rec, err
}

func (r *Reader) next() (Record, int, error) {
	if r.done {
		return Record{}, 0, io.EOF
	}

	for {
		tok, err := r.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done = true
				if r.inRoot {
					return Record{}, 0, fmt.Errorf("record file ends inside the root element: %w", io.ErrUnexpectedEOF)
				}
				return Record{}, 0, io.EOF
			}
			return Record{}, 0, fmt.Errorf("failed to read record file: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !r.inRoot {
				r.inRoot = true
				continue
			}
			line, _ := r.dec.InputPos()
			var rec Record
			if err := r.dec.DecodeElement(&rec, &t); err != nil {
				return Record{}, 0, fmt.Errorf("failed to decode record at line %d: %w", line, err)
			}
			return rec, line, nil
		case xml.EndElement:
			// Only the root can close here; records are consumed whole.
			r.done = true
			return Record{}, 0, io.EOF
		}
	}
}

func (r *Reader) toFlow(rec *Record) (model.Flow, error) {
	flow := model.Flow{
		TrueLabel:      model.LabelAttack,
		PredictedLabel: model.LabelUnset,
	}
	var hasStart, hasStop, hasTag bool

	for _, f := range rec.Fields {
		value := strings.TrimSpace(f.Value)
		var err error
		switch f.XMLName.Local {
		case elemSource:
			flow.SrcAddr = value
		case elemDestination:
			flow.DstAddr = value
		case elemProtocol:
			flow.Protocol = protocol.Normalize(value)
		case elemSourcePort:
			flow.SrcPort, err = parsePort(value)
		case elemDestPort:
			flow.DstPort, err = parsePort(value)
		case elemStart:
			flow.Start, err = r.parseTime(value)
			hasStart = true
		case elemStop:
			flow.Stop, err = r.parseTime(value)
			hasStop = true
		case elemTag:
			if value == tagNormal {
				flow.TrueLabel = model.LabelNormal
			}
			hasTag = true
		}
		if err != nil {
			return model.Flow{}, fmt.Errorf("%s: %w", f.XMLName.Local, err)
		}
	}

	switch {
	case !hasStart:
		return model.Flow{}, fmt.Errorf("record has no %s", elemStart)
	case !hasStop:
		return model.Flow{}, fmt.Errorf("record has no %s", elemStop)
	case !hasTag:
		return model.Flow{}, fmt.Errorf("record has no %s", elemTag)
	}
	if err := flow.Validate(); err != nil {
		return model.Flow{}, err
	}
	return flow, nil
}

func (r *Reader) parseTime(value string) (int64, error) {
	t, err := time.ParseInLocation(r.layout, value, r.loc)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// parsePort reads a decimal port. An empty field means port 0, as for
// port-less protocols.
func parsePort(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
