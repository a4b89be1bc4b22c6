package dataset

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"
)

// The hurricane damage corpus names its directories train_another,
// validation_another, test_another/test and damage/no_damage. The mapping to
// canonical splits and labels is kept as data so new corpus drops with
// different directory names only need a layout change.

//go:embed layout.yaml
var layoutYAML []byte

var splitDirs, labelDirs = mustLoadLayout()

func mustLoadLayout() (map[string]Split, map[string]Label) {
	raw := struct {
		Splits map[string][]string `yaml:"splits"`
		Labels map[string][]string `yaml:"labels"`
	}{}

	if err := yaml.Unmarshal(layoutYAML, &raw); err != nil {
		panic(fmt.Sprintf("parsing embedded layout: %v", err))
	}

	splits := make(map[string]Split)
	for name, dirs := range raw.Splits {
		split, err := ParseSplit(name)
		if err != nil {
			panic(fmt.Sprintf("embedded layout: %v", err))
		}
		for _, dir := range dirs {
			splits[dir] = split
		}
	}

	labels := make(map[string]Label)
	for name, dirs := range raw.Labels {
		label, err := ParseLabel(name)
		if err != nil {
			panic(fmt.Sprintf("embedded layout: %v", err))
		}
		for _, dir := range dirs {
			labels[dir] = label
		}
	}

	return splits, labels
}

// SplitForDir maps an on-disk split directory name to its canonical split.
func SplitForDir(name string) (Split, bool) {
	s, ok := splitDirs[name]
	return s, ok
}

// LabelForDir maps an on-disk label directory name to its canonical label.
func LabelForDir(name string) (Label, bool) {
	l, ok := labelDirs[name]
	return l, ok
}

// SplitDirNames returns every directory name the layout recognizes as a
// split, for connectors that enumerate dataset roots.
func SplitDirNames() []string {
	names := make([]string, 0, len(splitDirs))
	for name := range splitDirs {
		names = append(names, name)
	}
	return names
}
