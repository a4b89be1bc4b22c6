package pipeline

import "math/rand"

// Seeds fixes every random decision the pipeline makes. Each transform
// family owns its own generator so adding or removing one family never
// shifts the draws of another.
type Seeds struct {
	Rotation       int64
	HorizontalFlip int64
	VerticalFlip   int64
	Shuffle        int64
}

// Augmentor applies a random quarter-turn rotation followed by independent
// horizontal and vertical flips. Generators are seeded at construction and
// persist across epochs, so a fixed seed triple fixes the whole run's
// augmentation sequence. Draws happen in sample order on the single pull
// goroutine; parallel decode upstream cannot perturb them.
type Augmentor struct {
	rot   *rand.Rand
	hflip *rand.Rand
	vflip *rand.Rand
}

func NewAugmentor(seeds Seeds) *Augmentor {
	return &Augmentor{
		rot:   rand.New(rand.NewSource(seeds.Rotation)),
		hflip: rand.New(rand.NewSource(seeds.HorizontalFlip)),
		vflip: rand.New(rand.NewSource(seeds.VerticalFlip)),
	}
}

// Apply draws one decision per family, always in the same order, and
// returns the transformed sample. The label passes through untouched.
func (a *Augmentor) Apply(s Sample) Sample {
	quarters := a.rot.Intn(4)
	flipH := a.hflip.Float64() < 0.5
	flipV := a.vflip.Float64() < 0.5

	out := s
	if quarters != 0 {
		out = rotate90(out, quarters)
	}
	if flipH {
		out = horizontalFlip(out)
	}
	if flipV {
		out = verticalFlip(out)
	}
	return out
}

// Transform yields an augmented copy of every upstream sample.
func (a *Augmentor) Transform(samples SampleIterator) SampleIterator {
	return func(yield func(Sample, error) bool) {
		for s, err := range samples {
			if err != nil {
				yield(Sample{}, err)
				return
			}
			if !yield(a.Apply(s), nil) {
				return
			}
		}
	}
}

// Concat yields every sample of a, then every sample of b. Train and
// validation epochs run the originals concatenated with one augmented pass.
func Concat(a, b SampleIterator) SampleIterator {
	return func(yield func(Sample, error) bool) {
		for s, err := range a {
			if err != nil {
				yield(Sample{}, err)
				return
			}
			if !yield(s, nil) {
				return
			}
		}
		for s, err := range b {
			if err != nil {
				yield(Sample{}, err)
				return
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

// remap builds a transformed sample where dst(x, y) = src(fn(x, y)).
func remap(s Sample, w, h int, fn func(x, y int) (int, int)) Sample {
	out := make([]float32, len(s.Pixels))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := fn(x, y)
			si := (sy*s.Width + sx) * s.Channels
			di := (y*w + x) * s.Channels
			copy(out[di:di+s.Channels], s.Pixels[si:si+s.Channels])
		}
	}

	return Sample{Pixels: out, Width: w, Height: h, Channels: s.Channels, Label: s.Label, Path: s.Path}
}

// rotate90 rotates k quarter turns counterclockwise. Non-square inputs swap
// dimensions on odd k.
func rotate90(s Sample, k int) Sample {
	switch k & 3 {
	case 1:
		return remap(s, s.Height, s.Width, func(x, y int) (int, int) { return s.Width - 1 - y, x })
	case 2:
		return remap(s, s.Width, s.Height, func(x, y int) (int, int) { return s.Width - 1 - x, s.Height - 1 - y })
	case 3:
		return remap(s, s.Height, s.Width, func(x, y int) (int, int) { return y, s.Height - 1 - x })
	default:
		return s
	}
}

func horizontalFlip(s Sample) Sample {
	return remap(s, s.Width, s.Height, func(x, y int) (int, int) { return s.Width - 1 - x, y })
}

func verticalFlip(s Sample) Sample {
	return remap(s, s.Width, s.Height, func(x, y int) (int, int) { return x, s.Height - 1 - y })
}
