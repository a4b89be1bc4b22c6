package dataset

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// ErrFormat indicates a tile path that does not follow the corpus layout:
// <split dir>/<label dir>/<lon>_<lat>.<ext>. Scans fail fast on it, there is
// no quarantine for malformed names.
var ErrFormat = errors.New("malformed tile path")

type Label int

const (
	Undamaged Label = iota
	Damaged
)

func (l Label) String() string {
	switch l {
	case Damaged:
		return "damaged"
	case Undamaged:
		return "undamaged"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

func ParseLabel(s string) (Label, error) {
	switch s {
	case "damaged":
		return Damaged, nil
	case "undamaged":
		return Undamaged, nil
	default:
		return 0, fmt.Errorf("%w: unknown label %q", ErrFormat, s)
	}
}

type Split int

const (
	TrainSplit Split = iota
	ValidationSplit
	TestSplit
)

func (s Split) String() string {
	switch s {
	case TrainSplit:
		return "train"
	case ValidationSplit:
		return "validation"
	case TestSplit:
		return "test"
	default:
		return fmt.Sprintf("split(%d)", int(s))
	}
}

func ParseSplit(s string) (Split, error) {
	switch s {
	case "train":
		return TrainSplit, nil
	case "validation":
		return ValidationSplit, nil
	case "test":
		return TestSplit, nil
	default:
		return 0, fmt.Errorf("%w: unknown split %q", ErrFormat, s)
	}
}

// Record is one tile image in a dataset. Path is the slash-separated key
// relative to the dataset root, e.g. "train_another/damage/-95.06_30.21.jpeg".
type Record struct {
	Path  string
	Split Split
	Label Label
	Lon   float64
	Lat   float64
}

// ParseRecord derives a Record from a tile key. The label comes from the
// parent directory, the split from the grandparent directory (via the layout
// table), and the coordinates from the filename stem: first underscore token
// is longitude, last is latitude.
func ParseRecord(key string) (Record, error) {
	key = path.Clean(strings.TrimPrefix(key, "/"))

	dir, file := path.Split(key)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || dir == "." {
		return Record{}, fmt.Errorf("%w: %q has no label directory", ErrFormat, key)
	}

	labelDir := path.Base(dir)
	splitDir := path.Base(path.Dir(dir))
	if splitDir == "." || splitDir == "/" {
		return Record{}, fmt.Errorf("%w: %q has no split directory", ErrFormat, key)
	}

	label, ok := LabelForDir(labelDir)
	if !ok {
		return Record{}, fmt.Errorf("%w: unknown label directory %q in %q", ErrFormat, labelDir, key)
	}

	split, ok := SplitForDir(splitDir)
	if !ok {
		return Record{}, fmt.Errorf("%w: unknown split directory %q in %q", ErrFormat, splitDir, key)
	}

	lon, lat, err := parseStemCoords(file)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %q: %v", ErrFormat, key, err)
	}

	return Record{Path: key, Split: split, Label: label, Lon: lon, Lat: lat}, nil
}

func parseStemCoords(file string) (float64, float64, error) {
	stem := strings.TrimSuffix(file, path.Ext(file))
	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("stem %q does not contain a lon_lat pair", stem)
	}

	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad longitude %q", parts[0])
	}

	lat, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad latitude %q", parts[len(parts)-1])
	}

	return lon, lat, nil
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// IsTilePath reports whether a key names a tile image. Hidden files and
// non-image extensions are skipped by scans rather than treated as errors.
func IsTilePath(key string) bool {
	base := path.Base(key)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return imageExts[strings.ToLower(path.Ext(base))]
}
