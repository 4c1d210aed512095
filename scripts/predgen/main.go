package main

import (
	"Go2FlowEval/internal/ingest/xmlflows"
	"Go2FlowEval/internal/model"
	"bufio"
	"encoding/csv"
	"errors"
	"flag"
	"io"
	"log"
	"math/rand"
	"os"
	"strconv"
)

// predgen writes a synthetic classifier table for a flow file: a few rows
// per flow at times inside the flow, labelled with the true label except
// for a fraction of deliberate mistakes. Useful for exercising flow-eval.
func main() {
	inputFile := flag.String("i", "", "Input flow XML file")
	outputFile := flag.String("o", "predictions.csv", "Output prediction CSV path")
	rowsPerFlow := flag.Int("c", 3, "Rows to generate per flow")
	errorRate := flag.Float64("e", 0.1, "Fraction of rows with a wrong label")
	rawStart := flag.Float64("raw-start", 0, "Raw timestamp of the earliest flow start")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	if *inputFile == "" {
		log.Fatalf("Usage: go run ./scripts/predgen -i <flows.xml> [-o predictions.csv]")
	}

	in, err := os.Open(*inputFile)
	if err != nil {
		log.Fatalf("Failed to open flow file: %v", err)
	}
	defer in.Close()

	var flows []model.Flow
	reader := xmlflows.NewReader(bufio.NewReader(in), xmlflows.Options{})
	for {
		f, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, model.ErrMalformedRow) {
			log.Printf("Skipping record: %v", err)
			continue
		}
		if err != nil {
			log.Fatalf("Failed to read flows: %v", err)
		}
		flows = append(flows, f)
	}
	if len(flows) == 0 {
		log.Fatalf("No usable flows in %s", *inputFile)
	}

	earliest := 0
	for i := range flows {
		if flows[i].Start < flows[earliest].Start {
			earliest = i
		}
	}
	first := flows[earliest].Start

	out, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer out.Close()

	rng := rand.New(rand.NewSource(*seed))
	w := csv.NewWriter(out)
	log.Printf("Generating %d rows per flow for %d flows into %s...", *rowsPerFlow, len(flows), *outputFile)

	// The first row carries the earliest start so the evaluator's clock
	// lines up with the flow file.
	if err := w.Write(row(&flows[earliest], *rawStart, flows[earliest].TrueLabel, false)); err != nil {
		log.Fatalf("Failed to write row: %v", err)
	}
	written := 1
	for i := range flows {
		f := &flows[i]
		for j := 0; j < *rowsPerFlow; j++ {
			at := float64(f.Start) + rng.Float64()*float64(f.Width())
			label := f.TrueLabel
			if rng.Float64() < *errorRate {
				label = flip(label)
			}
			if err := w.Write(row(f, *rawStart+at-float64(first), label, rng.Intn(2) == 1)); err != nil {
				log.Fatalf("Failed to write row: %v", err)
			}
			written++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("Failed to flush output: %v", err)
	}
	log.Printf("Successfully generated %d rows.", written)
}

func flip(l model.Label) model.Label {
	if l == model.LabelAttack {
		return model.LabelNormal
	}
	return model.LabelAttack
}

// row lays out the twelve-column table the evaluator reads by default,
// optionally with the endpoints reversed.
func row(f *model.Flow, ts float64, label model.Label, reverse bool) []string {
	a, b := f.SrcAddr, f.DstAddr
	pa, pb := f.SrcPort, f.DstPort
	if reverse {
		a, b, pa, pb = b, a, pb, pa
	}
	return []string{
		a, b, f.Protocol,
		strconv.Itoa(pa), strconv.Itoa(pb),
		strconv.FormatFloat(ts, 'f', 3, 64),
		"0", "0", "0", "0", "0",
		label.String(),
	}
}
