package main

import (
	"Go2FlowEval/internal/ingest/xmlflows"
	"Go2FlowEval/internal/model"
	"bufio"
	"encoding/xml"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
)

// defaultSeed keeps the folds reproducible between runs.
const defaultSeed = 99999999

// split builds stratified k-fold sets from ISCX flow files. Fold N's
// training file holds fold N only and its testing file the remaining
// folds, so the training set stays small.
func main() {
	folds := flag.Int("k", 5, "Number of folds")
	outputDir := flag.String("o", "", "Output directory (default <k>-fold_sets)")
	prefix := flag.String("prefix", "iscx2012ddos", "File name prefix of the written sets")
	seed := flag.Int64("seed", defaultSeed, "Random seed")
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatalf("Usage: go run ./scripts/split [-k folds] [-o dir] <flows.xml>...")
	}
	if *outputDir == "" {
		*outputDir = fmt.Sprintf("%d-fold_sets", *folds)
	}

	var records []xmlflows.Record
	var labels []model.Label
	for _, path := range flag.Args() {
		log.Printf("Reading data from: %s", path)
		recs, ls, err := readRecords(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}
		records = append(records, recs...)
		labels = append(labels, ls...)
	}
	log.Printf("Loaded %d records.", len(records))

	if err := writeSets(*outputDir, *prefix, records, labels, *folds, *seed); err != nil {
		log.Fatalf("Failed to write sets: %v", err)
	}
	log.Printf("Wrote %d training and %d testing sets under %s.", *folds, *folds, *outputDir)
}

// readRecords loads every labelled record of one file. Records without a
// Tag cannot be stratified and are skipped.
func readRecords(path string) ([]xmlflows.Record, []model.Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var records []xmlflows.Record
	var labels []model.Label
	r := xmlflows.NewReader(bufio.NewReader(f), xmlflows.Options{})
	for {
		rec, err := r.NextRecord()
		if errors.Is(err, io.EOF) {
			return records, labels, nil
		}
		if err != nil {
			return nil, nil, err
		}
		label, ok := rec.Label()
		if !ok {
			log.Printf("Skipping record without Tag in %s", path)
			continue
		}
		records = append(records, rec)
		labels = append(labels, label)
	}
}

// stratifiedFolds assigns every index to one of k folds. Each class is
// shuffled with seed and dealt round-robin, so every fold holds the same
// share of each class, give or take one record.
func stratifiedFolds(labels []model.Label, k int, seed int64) [][]int {
	byClass := make(map[model.Label][]int)
	var classes []model.Label
	for i, l := range labels {
		if _, seen := byClass[l]; !seen {
			classes = append(classes, l)
		}
		byClass[l] = append(byClass[l], i)
	}

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, class := range classes {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx {
			folds[next] = append(folds[next], i)
			next = (next + 1) % k
		}
	}
	return folds
}

func writeSets(outputDir, prefix string, records []xmlflows.Record, labels []model.Label, k int, seed int64) error {
	if k < 2 {
		return fmt.Errorf("need at least 2 folds, got %d", k)
	}
	if len(records) < k {
		return fmt.Errorf("%d records cannot fill %d folds", len(records), k)
	}

	trainDir := filepath.Join(outputDir, "train")
	testDir := filepath.Join(outputDir, "test")
	for _, dir := range []string{trainDir, testDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	folds := stratifiedFolds(labels, k, seed)
	for n := range folds {
		var rest []int
		for m, fold := range folds {
			if m != n {
				rest = append(rest, fold...)
			}
		}

		train := filepath.Join(trainDir, fmt.Sprintf("%s_training_set_fold_%d.xml", prefix, n+1))
		if err := writeSet(train, fmt.Sprintf("training_set_%d", n+1), records, folds[n]); err != nil {
			return err
		}
		test := filepath.Join(testDir, fmt.Sprintf("%s_testing_set_fold_%d.xml", prefix, n+1))
		if err := writeSet(test, fmt.Sprintf("testing_set_%d", n+1), records, rest); err != nil {
			return err
		}
		log.Printf("Fold %d: %d training and %d testing records.", n+1, len(folds[n]), len(rest))
	}
	return nil
}

// writeSet writes records[idx] under a dataroot element, each renamed to
// setName.
func writeSet(path, setName string, records []xmlflows.Record, idx []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "dataroot"}}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for _, i := range idx {
		rec := records[i]
		rec.XMLName = xml.Name{Local: setName}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
