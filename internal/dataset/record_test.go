package dataset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected Record
	}{
		{
			name: "train damaged",
			key:  "train_another/damage/-93.6141_30.7545.jpeg",
			expected: Record{
				Path:  "train_another/damage/-93.6141_30.7545.jpeg",
				Split: TrainSplit,
				Label: Damaged,
				Lon:   -93.6141,
				Lat:   30.7545,
			},
		},
		{
			name: "validation undamaged",
			key:  "validation_another/no_damage/-95.06_29.83.jpeg",
			expected: Record{
				Path:  "validation_another/no_damage/-95.06_29.83.jpeg",
				Split: ValidationSplit,
				Label: Undamaged,
				Lon:   -95.06,
				Lat:   29.83,
			},
		},
		{
			name: "test alias",
			key:  "test/damage/-93.905_30.2.jpeg",
			expected: Record{
				Path:  "test/damage/-93.905_30.2.jpeg",
				Split: TestSplit,
				Label: Damaged,
				Lon:   -93.905,
				Lat:   30.2,
			},
		},
		{
			name: "holdout test dir",
			key:  "test_another/no_damage/-95.0_29.0.png",
			expected: Record{
				Path:  "test_another/no_damage/-95.0_29.0.png",
				Split: TestSplit,
				Label: Undamaged,
				Lon:   -95.0,
				Lat:   29.0,
			},
		},
		{
			name: "extra stem tokens use first and last",
			key:  "train_another/damage/-93.61_copy_30.75.jpeg",
			expected: Record{
				Path:  "train_another/damage/-93.61_copy_30.75.jpeg",
				Split: TrainSplit,
				Label: Damaged,
				Lon:   -93.61,
				Lat:   30.75,
			},
		},
		{
			name: "nested prefix before split dir",
			key:  "datasets/hurricane/train_another/damage/-93.6_30.7.jpg",
			expected: Record{
				Path:  "datasets/hurricane/train_another/damage/-93.6_30.7.jpg",
				Split: TrainSplit,
				Label: Damaged,
				Lon:   -93.6,
				Lat:   30.7,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			record, err := ParseRecord(tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, record)
		})
	}
}

func TestParseRecordErrors(t *testing.T) {
	keys := []string{
		"train_another/basement/-93.6_30.7.jpeg", // unknown label dir
		"train/damage/-93.6_30.7.jpeg",           // unknown split dir
		"train_another/damage/nocoords.jpeg",     // no lon_lat pair
		"train_another/damage/abc_def.jpeg",      // unparseable floats
		"orphan.jpeg",                            // no directories at all
		"damage/-93.6_30.7.jpeg",                 // label dir without split dir
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			_, err := ParseRecord(key)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat), "expected ErrFormat, got %v", err)
		})
	}
}

func TestIsTilePath(t *testing.T) {
	assert.True(t, IsTilePath("train_another/damage/-93.6_30.7.jpeg"))
	assert.True(t, IsTilePath("test/no_damage/-95.0_29.0.JPG"))
	assert.True(t, IsTilePath("a/b/c.png"))

	assert.False(t, IsTilePath("train_another/damage/.hidden.jpeg"))
	assert.False(t, IsTilePath("train_another/damage/notes.txt"))
	assert.False(t, IsTilePath("train_another/damage/manifest.csv"))
}

func TestLayoutTables(t *testing.T) {
	split, ok := SplitForDir("train_another")
	require.True(t, ok)
	assert.Equal(t, TrainSplit, split)

	split, ok = SplitForDir("test")
	require.True(t, ok)
	assert.Equal(t, TestSplit, split)

	_, ok = SplitForDir("holdout")
	assert.False(t, ok)

	label, ok := LabelForDir("no_damage")
	require.True(t, ok)
	assert.Equal(t, Undamaged, label)

	assert.ElementsMatch(t, []string{"train_another", "validation_another", "test_another", "test"}, SplitDirNames())
}

func TestBuildManifest(t *testing.T) {
	records := []Record{
		{Path: "a", Split: TrainSplit, Label: Damaged},
		{Path: "b", Split: TestSplit, Label: Undamaged},
		{Path: "c", Split: TrainSplit, Label: Undamaged},
		{Path: "d", Split: TrainSplit, Label: Damaged},
	}

	m := BuildManifest(records)

	assert.Equal(t, 4, m.Len())
	assert.Equal(t, []Record{records[0], records[2], records[3]}, m.Split(TrainSplit))
	assert.Equal(t, []Record{records[1]}, m.Split(TestSplit))
	assert.Empty(t, m.Split(ValidationSplit))

	counts := m.Counts()
	assert.Equal(t, 2, counts[TrainSplit][Damaged])
	assert.Equal(t, 1, counts[TrainSplit][Undamaged])
	assert.Equal(t, 1, counts[TestSplit][Undamaged])
}

func TestLabelNumericValues(t *testing.T) {
	// Damaged is the positive class.
	assert.Equal(t, 1, int(Damaged))
	assert.Equal(t, 0, int(Undamaged))
}
