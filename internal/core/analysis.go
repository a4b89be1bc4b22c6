package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stormlens-backend/internal/core/utils"
	"stormlens-backend/internal/dataset"
	"stormlens-backend/internal/imaging"
	"stormlens-backend/internal/pipeline"

	"github.com/google/uuid"
)

type SplitReport struct {
	Split        string               `json:"split"`
	RecordCount  int                  `json:"record_count"`
	LabelCounts  map[string]int       `json:"label_counts"`
	DamagedShare float64              `json:"damaged_share"`
	PixelMean    [3]float64           `json:"pixel_mean"`
	PixelStdDev  [3]float64           `json:"pixel_std_dev"`
	Coords       dataset.CoordSummary `json:"coords"`
}

// AnalysisReport is the JSON document an analysis job uploads to the object
// store. Values only; rendering them is someone else's problem.
type AnalysisReport struct {
	DatasetId   uuid.UUID     `json:"dataset_id"`
	Split       string        `json:"split,omitempty"`
	Query       string        `json:"query,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
	RecordCount int           `json:"record_count"`
	Splits      []SplitReport `json:"splits"`
}

type splitJob struct {
	split   dataset.Split
	records []dataset.Record
}

// BuildAnalysisReport decodes every record once and aggregates per-split
// pixel, coordinate, and label statistics. Splits fan out on the worker
// pool; decode parallelism within a split comes from the pipeline options.
func BuildAnalysisReport(ctx context.Context, fetcher pipeline.Fetcher, decoder imaging.Decoder, records []dataset.Record, workers int) (AnalysisReport, error) {
	manifest := dataset.BuildManifest(records)

	queue := make(chan splitJob, 3)
	for _, split := range []dataset.Split{dataset.TrainSplit, dataset.ValidationSplit, dataset.TestSplit} {
		if splitRecords := manifest.Split(split); len(splitRecords) > 0 {
			queue <- splitJob{split: split, records: splitRecords}
		}
	}
	close(queue)

	completed := make(chan utils.CompletedTask[SplitReport], cap(queue))

	utils.RunInPool(func(job splitJob) (SplitReport, error) {
		return buildSplitReport(ctx, fetcher, decoder, job, workers)
	}, queue, completed, cap(queue))

	var splits []SplitReport
	for result := range completed {
		if result.Error != nil {
			return AnalysisReport{}, result.Error
		}
		splits = append(splits, result.Result)
	}

	sort.Slice(splits, func(i, j int) bool { return splitOrder(splits[i].Split) < splitOrder(splits[j].Split) })

	return AnalysisReport{
		GeneratedAt: time.Now().UTC(),
		RecordCount: manifest.Len(),
		Splits:      splits,
	}, nil
}

func buildSplitReport(ctx context.Context, fetcher pipeline.Fetcher, decoder imaging.Decoder, job splitJob, workers int) (SplitReport, error) {
	var pixels imaging.PixelStats

	raw := pipeline.DecodeRecords(ctx, fetcher, decoder, job.records, pipeline.Options{Workers: workers})
	for sample, err := range raw {
		if err != nil {
			return SplitReport{}, fmt.Errorf("analyzing split %s: %w", job.split, err)
		}
		pixels.Add(sample.Image)
	}

	coords, err := dataset.SummarizeCoords(job.records)
	if err != nil {
		return SplitReport{}, fmt.Errorf("analyzing split %s: %w", job.split, err)
	}

	labelCounts := make(map[string]int)
	var damaged int
	for label, count := range dataset.CountLabels(job.records) {
		labelCounts[label.String()] = count
		if label == dataset.Damaged {
			damaged = count
		}
	}

	return SplitReport{
		Split:        job.split.String(),
		RecordCount:  len(job.records),
		LabelCounts:  labelCounts,
		DamagedShare: float64(damaged) / float64(len(job.records)),
		PixelMean:    pixels.Mean(),
		PixelStdDev:  pixels.StdDev(),
		Coords:       coords,
	}, nil
}

func splitOrder(split string) int {
	switch split {
	case dataset.TrainSplit.String():
		return 0
	case dataset.ValidationSplit.String():
		return 1
	default:
		return 2
	}
}
