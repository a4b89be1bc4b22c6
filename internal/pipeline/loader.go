package pipeline

import (
	"context"
	"fmt"

	"stormlens-backend/internal/dataset"
	"stormlens-backend/internal/imaging"
)

// DecodeRecords is the producer half of the loader: it fetches and decodes
// tiles on a worker pool and yields 8-bit samples in record order. Nothing
// runs until the iterator is consumed.
func DecodeRecords(ctx context.Context, fetcher Fetcher, decoder imaging.Decoder, records []dataset.Record, opts Options) RawIterator {
	opts = opts.withDefaults()

	decodeOne := func(ctx context.Context, r dataset.Record) (RawSample, error) {
		data, err := fetcher.GetObject(ctx, r.Path)
		if err != nil {
			return RawSample{}, fmt.Errorf("fetching %s: %w", r.Path, err)
		}

		img, err := decoder.Decode(data, opts.TargetWidth, opts.TargetHeight)
		if err != nil {
			return RawSample{}, fmt.Errorf("decoding %s: %w", r.Path, err)
		}

		return RawSample{Image: img, Label: int(r.Label), Path: r.Path}, nil
	}

	return RawIterator(runOrdered(ctx, opts.Workers, 2*opts.Workers, records, decodeOne))
}

// Normalize is the transformer half of the loader: a pure uint8 → float32
// rescale to [0,1] applied on the pull side of the stage boundary.
func Normalize(raw RawIterator) SampleIterator {
	return func(yield func(Sample, error) bool) {
		for rs, err := range raw {
			if err != nil {
				yield(Sample{}, err)
				return
			}
			if !yield(normalizeSample(rs), nil) {
				return
			}
		}
	}
}

func normalizeSample(rs RawSample) Sample {
	pix := make([]float32, len(rs.Image.Pix))
	for i, v := range rs.Image.Pix {
		pix[i] = float32(v) / 255
	}

	return Sample{
		Pixels:   pix,
		Width:    rs.Image.Width,
		Height:   rs.Image.Height,
		Channels: rs.Image.Channels,
		Label:    rs.Label,
		Path:     rs.Path,
	}
}
