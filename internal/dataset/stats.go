package dataset

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// CoordStats summarizes one coordinate axis of a record set.
type CoordStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Bounds is the spatial extent of a record set.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
}

// CoordSummary holds the geographic distribution of a record set.
type CoordSummary struct {
	Lon    CoordStats `json:"lon"`
	Lat    CoordStats `json:"lat"`
	Bounds Bounds     `json:"bounds"`
}

func SummarizeCoords(records []Record) (CoordSummary, error) {
	if len(records) == 0 {
		return CoordSummary{}, fmt.Errorf("cannot summarize empty record set")
	}

	lons := make([]float64, len(records))
	lats := make([]float64, len(records))
	for i, r := range records {
		lons[i] = r.Lon
		lats[i] = r.Lat
	}

	lon, err := axisStats(lons)
	if err != nil {
		return CoordSummary{}, fmt.Errorf("summarizing longitudes: %w", err)
	}

	lat, err := axisStats(lats)
	if err != nil {
		return CoordSummary{}, fmt.Errorf("summarizing latitudes: %w", err)
	}

	return CoordSummary{
		Lon: lon,
		Lat: lat,
		Bounds: Bounds{
			MinLon: lon.Min, MaxLon: lon.Max,
			MinLat: lat.Min, MaxLat: lat.Max,
		},
	}, nil
}

func axisStats(values stats.Float64Data) (CoordStats, error) {
	mean, err := values.Mean()
	if err != nil {
		return CoordStats{}, err
	}

	std, err := values.StandardDeviation()
	if err != nil {
		return CoordStats{}, err
	}

	min, err := values.Min()
	if err != nil {
		return CoordStats{}, err
	}

	max, err := values.Max()
	if err != nil {
		return CoordStats{}, err
	}

	median, err := values.Median()
	if err != nil {
		return CoordStats{}, err
	}

	return CoordStats{Mean: mean, StdDev: std, Min: min, Max: max, Median: median}, nil
}

// CountLabels returns the label balance of a record set.
func CountLabels(records []Record) map[Label]int {
	counts := make(map[Label]int)
	for _, r := range records {
		counts[r.Label]++
	}
	return counts
}
