package dataset

// Manifest groups a dataset's records by split, preserving enumeration order
// within each split. A record's split comes only from its path; there is no
// resplitting, so train/validation/test cannot leak into each other.
type Manifest struct {
	bySplit map[Split][]Record
	total   int
}

func BuildManifest(records []Record) *Manifest {
	m := &Manifest{bySplit: make(map[Split][]Record), total: len(records)}
	for _, r := range records {
		m.bySplit[r.Split] = append(m.bySplit[r.Split], r)
	}
	return m
}

func (m *Manifest) Split(s Split) []Record {
	return m.bySplit[s]
}

func (m *Manifest) Len() int {
	return m.total
}

// Counts returns the per-split label balance.
func (m *Manifest) Counts() map[Split]map[Label]int {
	counts := make(map[Split]map[Label]int, len(m.bySplit))
	for split, records := range m.bySplit {
		c := make(map[Label]int)
		for _, r := range records {
			c[r.Label]++
		}
		counts[split] = c
	}
	return counts
}
