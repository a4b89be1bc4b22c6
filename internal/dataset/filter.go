package dataset

type Filter interface {
	Matches(r Record) bool
}

type AndFilter struct {
	filters []Filter
}

func (f *AndFilter) Matches(r Record) bool {
	for _, filter := range f.filters {
		if !filter.Matches(r) {
			return false
		}
	}
	return true
}

type OrFilter struct {
	filters []Filter
}

func (f *OrFilter) Matches(r Record) bool {
	for _, filter := range f.filters {
		if filter.Matches(r) {
			return true
		}
	}
	return false
}

type NotFilter struct {
	filter Filter
}

func (f *NotFilter) Matches(r Record) bool {
	return !f.filter.Matches(r)
}

type SplitFilter struct {
	negate bool
	value  Split
}

func (f *SplitFilter) Matches(r Record) bool {
	return (r.Split == f.value) != f.negate
}

type LabelFilter struct {
	negate bool
	value  Label
}

func (f *LabelFilter) Matches(r Record) bool {
	return (r.Label == f.value) != f.negate
}

type CoordFilter struct {
	field string // "lon" or "lat"
	op    string
	value float64
}

func (f *CoordFilter) Matches(r Record) bool {
	v := r.Lon
	if f.field == "lat" {
		v = r.Lat
	}

	switch f.op {
	case "<":
		return v < f.value
	case "<=":
		return v <= f.value
	case ">":
		return v > f.value
	case ">=":
		return v >= f.value
	case "=":
		return v == f.value
	case "!=":
		return v != f.value
	default:
		return false
	}
}

// FilterRecords returns the records matching filter, preserving order. A nil
// filter matches everything.
func FilterRecords(records []Record, filter Filter) []Record {
	if filter == nil {
		return records
	}

	var out []Record
	for _, r := range records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
