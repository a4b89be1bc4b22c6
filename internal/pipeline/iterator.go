package pipeline

import (
	"context"

	"stormlens-backend/internal/imaging"
)

// Fetcher provides tile bytes by dataset-relative key. Storage connectors
// satisfy this.
type Fetcher interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// RawSample is a decoded tile before normalization.
type RawSample struct {
	Image imaging.Image
	Label int
	Path  string
}

// Sample is a normalized tile: float32 RGB in [0,1], row-major HWC.
type Sample struct {
	Pixels   []float32
	Width    int
	Height   int
	Channels int
	Label    int
	Path     string
}

// Batch is a fixed group of samples flattened to NHWC for model input. The
// final batch of an epoch may be short.
type Batch struct {
	Pixels   []float32 // Size*Height*Width*Channels
	Labels   []float32
	Size     int
	Width    int
	Height   int
	Channels int
}

// Iterators follow range-over-func semantics. A non-nil error is yielded
// once and terminates the stream; there is no skip or retry.
type (
	RawIterator    func(yield func(RawSample, error) bool)
	SampleIterator func(yield func(Sample, error) bool)
	BatchIterator  func(yield func(Batch, error) bool)
)

// Collect drains a sample iterator. Mostly useful in tests and the ad hoc
// prepare tool.
func Collect(samples SampleIterator) ([]Sample, error) {
	var out []Sample
	for s, err := range samples {
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
