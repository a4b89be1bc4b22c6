package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"stormlens-backend/internal/core/utils"
	"stormlens-backend/internal/dataset"
	"stormlens-backend/internal/imaging"
	"stormlens-backend/internal/pipeline"
	"stormlens-backend/internal/storage"

	"github.com/schollz/progressbar/v3"
)

// Checks a local tile tree before it is registered as a dataset. A dataset
// scan stops a shard at the first malformed name or unreadable file; this
// walks the whole tree and reports every problem in one run.

func main() {
	dir := flag.String("dir", "", "path to the tile tree to check")
	workers := flag.Int("workers", 8, "decode concurrency")
	flag.Parse()

	if *dir == "" {
		log.Fatalf("-dir must be set")
	}

	ctx := context.Background()
	connector := storage.NewLocalConnector(storage.LocalConnectorParams{RootDir: *dir})

	tasks, err := connector.CreateScanTasks(ctx)
	if err != nil {
		log.Fatalf("Could not list split directories: %v", err)
	}
	if len(tasks) == 0 {
		log.Fatalf("No split directories found under %s", *dir)
	}

	var (
		records  []dataset.Record
		problems []string
		skipped  int
	)

	for _, task := range tasks {
		if _, ok := dataset.SplitForDir(task.SplitDir); !ok {
			problems = append(problems, fmt.Sprintf("%s: not a split directory", task.SplitDir))
			continue
		}

		for obj, err := range connector.IterSplitObjects(ctx, task.SplitDir) {
			if err != nil {
				log.Fatalf("Could not walk %s: %v", task.SplitDir, err)
			}

			if !dataset.IsTilePath(obj.Name) {
				skipped++
				continue
			}

			record, err := dataset.ParseRecord(obj.Name)
			if err != nil {
				problems = append(problems, err.Error())
				continue
			}
			records = append(records, record)
		}
	}

	fmt.Printf("Found %d tiles (%d non-tile files skipped)\n", len(records), skipped)

	problems = append(problems, decodeAll(ctx, connector, records, *workers)...)

	printSummary(records)

	if len(problems) > 0 {
		fmt.Printf("\n%d problems:\n", len(problems))
		for _, p := range problems {
			fmt.Printf("  %s\n", p)
		}
		os.Exit(1)
	}

	fmt.Println("\nAll tiles parsed and decoded cleanly.")
}

// decodeAll decodes every tile at the pipeline's target size and returns one
// problem line per unreadable or undecodable tile.
func decodeAll(ctx context.Context, connector *storage.LocalConnector, records []dataset.Record, workers int) []string {
	if len(records) == 0 {
		return nil
	}

	decoder := imaging.OpenCVDecoder{}

	queue := make(chan dataset.Record, len(records))
	for _, record := range records {
		queue <- record
	}
	close(queue)

	completed := make(chan utils.CompletedTask[struct{}], len(records))

	utils.RunInPool(func(record dataset.Record) (struct{}, error) {
		data, err := connector.GetObject(ctx, record.Path)
		if err != nil {
			return struct{}{}, fmt.Errorf("%s: %v", record.Path, err)
		}
		if _, err := decoder.Decode(data, pipeline.DefaultTileSize, pipeline.DefaultTileSize); err != nil {
			return struct{}{}, fmt.Errorf("%s: %v", record.Path, err)
		}
		return struct{}{}, nil
	}, queue, completed, workers)

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("⏳ checking tiles"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	var problems []string
	for result := range completed {
		_ = bar.Add(1)
		if result.Error != nil {
			problems = append(problems, result.Error.Error())
		}
	}

	return problems
}

func printSummary(records []dataset.Record) {
	manifest := dataset.BuildManifest(records)

	for _, split := range []dataset.Split{dataset.TrainSplit, dataset.ValidationSplit, dataset.TestSplit} {
		splitRecords := manifest.Split(split)
		if len(splitRecords) == 0 {
			continue
		}

		counts := dataset.CountLabels(splitRecords)

		coords, err := dataset.SummarizeCoords(splitRecords)
		if err != nil {
			log.Fatalf("Could not summarize %s coordinates: %v", split, err)
		}

		fmt.Printf("%s: %d tiles (damaged %d, undamaged %d), lon [%.4f, %.4f], lat [%.4f, %.4f]\n",
			split,
			len(splitRecords),
			counts[dataset.Damaged],
			counts[dataset.Undamaged],
			coords.Bounds.MinLon, coords.Bounds.MaxLon,
			coords.Bounds.MinLat, coords.Bounds.MaxLat,
		)
	}
}
