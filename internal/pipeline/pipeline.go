package pipeline

import (
	"context"
	"runtime"

	"stormlens-backend/internal/dataset"
	"stormlens-backend/internal/imaging"
)

const (
	DefaultTileSize  = 128
	DefaultBatchSize = 64
)

type Options struct {
	TargetWidth  int // default 128
	TargetHeight int // default 128
	BatchSize    int // default 64
	// ShuffleBuffer of 0 means the full epoch length, the reference
	// configuration for every split.
	ShuffleBuffer int
	Workers       int // decode concurrency, default min(GOMAXPROCS, 8)
	// Augment doubles the epoch: originals concatenated with one augmented
	// pass. On for train and validation, never for test.
	Augment bool
	Seeds   Seeds
}

func (o Options) withDefaults() Options {
	if o.TargetWidth <= 0 {
		o.TargetWidth = DefaultTileSize
	}
	if o.TargetHeight <= 0 {
		o.TargetHeight = DefaultTileSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = min(runtime.GOMAXPROCS(0), 8)
	}
	return o
}

// Pipeline is the lazy load → normalize → augment → shuffle → batch chain
// over one split's records. Random state lives on the pipeline, so epochs
// advance it and a fresh pipeline with equal seeds replays the run.
type Pipeline struct {
	fetcher   Fetcher
	decoder   imaging.Decoder
	records   []dataset.Record
	opts      Options
	augmentor *Augmentor
	shuffler  *Shuffler
}

func New(fetcher Fetcher, decoder imaging.Decoder, records []dataset.Record, opts Options) *Pipeline {
	opts = opts.withDefaults()

	p := &Pipeline{
		fetcher: fetcher,
		decoder: decoder,
		records: records,
		opts:    opts,
	}

	if opts.Augment {
		p.augmentor = NewAugmentor(opts.Seeds)
	}

	buffer := opts.ShuffleBuffer
	if buffer <= 0 {
		buffer = p.EpochSize()
	}
	p.shuffler = NewShuffler(opts.Seeds.Shuffle, buffer)

	return p
}

// EpochSize is the number of samples one epoch yields.
func (p *Pipeline) EpochSize() int {
	n := len(p.records)
	if p.opts.Augment {
		n *= 2
	}
	return n
}

// BatchesPerEpoch is ceil(EpochSize / BatchSize).
func (p *Pipeline) BatchesPerEpoch() int {
	n := p.EpochSize()
	return (n + p.opts.BatchSize - 1) / p.opts.BatchSize
}

// Samples yields one epoch. Decoding starts when the iterator is consumed
// and stalls when the consumer does.
func (p *Pipeline) Samples(ctx context.Context) SampleIterator {
	epoch := Normalize(DecodeRecords(ctx, p.fetcher, p.decoder, p.records, p.opts))

	if p.augmentor != nil {
		augmented := p.augmentor.Transform(Normalize(DecodeRecords(ctx, p.fetcher, p.decoder, p.records, p.opts)))
		epoch = Concat(epoch, augmented)
	}

	return p.shuffler.Shuffle(epoch)
}

// Batches yields one epoch of batches. Call again for the next epoch; the
// pipeline's generators carry over, so epoch orders differ within a run.
func (p *Pipeline) Batches(ctx context.Context) BatchIterator {
	return BatchSamples(p.Samples(ctx), p.opts.BatchSize)
}
