package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type LocalConnectorParams struct {
	RootDir string
}

type LocalConnector struct {
	params LocalConnectorParams
}

var _ Connector = (*LocalConnector)(nil)

func NewLocalConnector(params LocalConnectorParams) *LocalConnector {
	return &LocalConnector{params: params}
}

func (c *LocalConnector) ListSplitDirs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.params.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset root %s: %w", c.params.RootDir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

func (c *LocalConnector) CreateScanTasks(ctx context.Context) ([]ScanTask, error) {
	dirs, err := c.ListSplitDirs(ctx)
	if err != nil {
		return nil, err
	}
	return scanTasksForDirs(dirs), nil
}

func (c *LocalConnector) IterSplitObjects(ctx context.Context, splitDir string) ObjectIterator {
	return func(yield func(obj Object, err error) bool) {
		err := filepath.WalkDir(filepath.Join(c.params.RootDir, splitDir), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(c.params.RootDir, path)
			if err != nil {
				return err
			}

			obj := Object{Name: filepath.ToSlash(rel), Size: info.Size()}
			if !yield(obj, nil) {
				return io.EOF
			}
			return nil
		})

		if err != nil && !errors.Is(err, io.EOF) {
			yield(Object{}, err)
		}
	}
}

func (c *LocalConnector) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(c.params.RootDir, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", c.params.RootDir, key, err)
	}
	return data, nil
}
