package main

// Example command that loads a consolidated dataset directory, builds a
// shuffled sampler over every Global Sample ID and converts the first batches
// into gomlx tensors.
//
// Usage:
//   go run ./datasets/example -data path/to/tables
//
// The directory must hold feature_data.csv, target_data.csv,
// ID_reference_table.csv, condition_table.csv and feature_par.csv.

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"

	"github.com/Noofbiz/locaz/datasets"
)

func main() {
	dir := flag.String("data", "data", "directory with the consolidated CSV tables")
	batchSize := flag.Int("batch", 8, "batch size")
	seed := flag.Int64("seed", 1, "shuffle seed")
	flag.Parse()

	store, err := datasets.LoadRaw(*dir)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	fmt.Printf("Loaded %d ids: %d feature rows x %d, %d target rows x %d subjects\n",
		store.Reference.Len(), store.Features.Rows(), store.Features.Cols(),
		store.Targets.Rows(), store.Targets.Cols())

	s, err := store.Sampler(store.Reference.IDs(), datasets.SamplerConfig{
		Name:      "all",
		BatchSize: *batchSize,
		Shuffle:   true,
		Rand:      rand.New(rand.NewSource(*seed)),
	})
	if err != nil {
		log.Fatalf("failed to build sampler: %v", err)
	}
	fmt.Printf("Sampler %q: %d batches of %d\n", s.Name(), s.Len(), *batchSize)

	// Show the first batch in flat form
	if s.Len() > 0 {
		b, err := s.Batch(0)
		if err != nil {
			log.Fatalf("failed to build batch: %v", err)
		}
		fmt.Printf("  First ids: %v\n", b.IDs)
		fmt.Printf("  First example input: %v\n", b.Row(0))
		fmt.Printf("  First example azimuth: %v\n", b.Y[0])
	}

	// Walk a few batches as gomlx tensors
	for i := 0; i < 3; i++ {
		_, inputs, labels, err := s.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("failed to yield batch: %v", err)
		}
		fmt.Printf("Batch %d: input shape %v, label shape %v\n", i, inputs[0].Shape(), labels[0].Shape())
	}

	if n := datasets.CheckAzimuthRange(store.Targets, store.Layout.NAngles); n > 0 {
		fmt.Printf("Warning: %d targets outside the azimuth range\n", n)
	}
}
