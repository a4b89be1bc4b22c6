package pipeline

import "math/rand"

// Shuffler reorders sample streams with a bounded buffer: fill the buffer,
// then swap a uniformly random element out for each new upstream sample and
// drain randomly at the end. Buffer size 1 is the identity; a buffer at
// least the stream length is a uniform permutation. The generator is seeded
// once and persists across epochs, so epochs get distinct orders while runs
// with the same seed see the same sequence of orders.
type Shuffler struct {
	rng  *rand.Rand
	size int
}

func NewShuffler(seed int64, bufferSize int) *Shuffler {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Shuffler{rng: rand.New(rand.NewSource(seed)), size: bufferSize}
}

func (s *Shuffler) Shuffle(samples SampleIterator) SampleIterator {
	return func(yield func(Sample, error) bool) {
		buf := make([]Sample, 0, s.size)

		for sample, err := range samples {
			if err != nil {
				yield(Sample{}, err)
				return
			}

			if len(buf) < s.size {
				buf = append(buf, sample)
				continue
			}

			i := s.rng.Intn(len(buf))
			out := buf[i]
			buf[i] = sample
			if !yield(out, nil) {
				return
			}
		}

		for len(buf) > 0 {
			i := s.rng.Intn(len(buf))
			out := buf[i]
			buf[i] = buf[len(buf)-1]
			buf = buf[:len(buf)-1]
			if !yield(out, nil) {
				return
			}
		}
	}
}
