package main

import (
	"Go2FlowEval/internal/model"
	"Go2FlowEval/internal/writer/gobsnap"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	root := flag.String("root", "", "snapshot root; the newest run under it is shown")
	limit := flag.Int("n", 20, "number of flows to print (0 for all)")
	flag.Parse()

	dir := flag.Arg(0)
	if dir == "" && *root == "" {
		fmt.Println("Usage: go run ./scripts/gobana [-n count] <snapshot_dir> | -root <snapshot_root>")
		os.Exit(1)
	}
	if dir == "" {
		latest, err := gobsnap.Latest(*root)
		if err != nil {
			log.Fatalf("Unable to find a snapshot: %v", err)
		}
		dir = latest
	}

	snap, err := gobsnap.Load(dir)
	if err != nil {
		log.Fatalf("Failed to decode gob data: %v", err)
	}

	s := snap.Summary
	fmt.Printf("Run %s (%s)\n", snap.RunID, snap.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Stats: %+v\n", snap.Stats)
	fmt.Printf("Flows: %d  TP=%d FP=%d TN=%d FN=%d unset=%d/%d\n",
		s.Flows, s.TruePositive, s.FalsePositive, s.TrueNegative, s.FalseNegative, s.UnsetAttack, s.UnsetNormal)
	fmt.Printf("Accuracy=%.4f Precision=%.4f Recall=%.4f F1=%.4f\n", s.Accuracy, s.Precision, s.Recall, s.F1)

	fmt.Println("Decoded Flows:")
	for i := range snap.Flows {
		if *limit > 0 && i >= *limit {
			fmt.Printf("... %d more\n", len(snap.Flows)-i)
			break
		}
		printFlow(&snap.Flows[i])
	}
}

func printFlow(f *model.Flow) {
	fmt.Printf("%s:%d -> %s:%d %s [%d, %d] true=%s predicted=%s\n",
		f.SrcAddr, f.SrcPort, f.DstAddr, f.DstPort, f.Protocol, f.Start, f.Stop, f.TrueLabel, f.PredictedLabel)
}
