package pipeline

// BatchSamples groups samples into fixed-size batches in stream order. The
// final batch holds the remainder when size does not divide the stream
// length, so an epoch always yields ceil(n/size) batches.
func BatchSamples(samples SampleIterator, size int) BatchIterator {
	return func(yield func(Batch, error) bool) {
		var batch Batch

		for s, err := range samples {
			if err != nil {
				yield(Batch{}, err)
				return
			}

			if batch.Size == 0 {
				batch = Batch{
					Pixels:   make([]float32, 0, size*len(s.Pixels)),
					Labels:   make([]float32, 0, size),
					Width:    s.Width,
					Height:   s.Height,
					Channels: s.Channels,
				}
			}

			batch.Pixels = append(batch.Pixels, s.Pixels...)
			batch.Labels = append(batch.Labels, float32(s.Label))
			batch.Size++

			if batch.Size == size {
				if !yield(batch, nil) {
					return
				}
				batch = Batch{}
			}
		}

		if batch.Size > 0 {
			yield(batch, nil)
		}
	}
}
