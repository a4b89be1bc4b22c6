package imaging

import "math"

// PixelStats accumulates per-channel 256-bin histograms over decoded tiles.
// Channel means and deviations are derived from the bins, which is exact for
// 8-bit data and avoids holding pixel values in memory.
type PixelStats struct {
	hist  [3][256]int64
	count int64 // pixels per channel
}

func (s *PixelStats) Add(img Image) {
	n := img.Width * img.Height
	for i := 0; i < n; i++ {
		base := i * img.Channels
		for c := 0; c < 3; c++ {
			s.hist[c][img.Pix[base+c]]++
		}
	}
	s.count += int64(n)
}

func (s *PixelStats) Merge(other *PixelStats) {
	for c := 0; c < 3; c++ {
		for v := 0; v < 256; v++ {
			s.hist[c][v] += other.hist[c][v]
		}
	}
	s.count += other.count
}

func (s *PixelStats) Count() int64 {
	return s.count
}

func (s *PixelStats) Histogram() [3][256]int64 {
	return s.hist
}

// Mean returns per-channel means on the [0,1] scale of normalized samples.
func (s *PixelStats) Mean() [3]float64 {
	var means [3]float64
	if s.count == 0 {
		return means
	}
	for c := 0; c < 3; c++ {
		var sum float64
		for v := 0; v < 256; v++ {
			sum += float64(v) / 255 * float64(s.hist[c][v])
		}
		means[c] = sum / float64(s.count)
	}
	return means
}

// StdDev returns per-channel standard deviations on the [0,1] scale.
func (s *PixelStats) StdDev() [3]float64 {
	var stds [3]float64
	if s.count == 0 {
		return stds
	}
	means := s.Mean()
	for c := 0; c < 3; c++ {
		var sumSq float64
		for v := 0; v < 256; v++ {
			x := float64(v) / 255
			sumSq += x * x * float64(s.hist[c][v])
		}
		variance := sumSq/float64(s.count) - means[c]*means[c]
		if variance < 0 {
			variance = 0
		}
		stds[c] = math.Sqrt(variance)
	}
	return stds
}
