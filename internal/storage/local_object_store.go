package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalObjectStore keeps artifacts under one base directory. Directory
// transfers are symlinks rather than copies, so a "downloaded" artifact dir
// tracks the store in place.
type LocalObjectStore struct {
	baseDir string
}

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(dir string) (*LocalObjectStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	return &LocalObjectStore{baseDir: baseDir}, nil
}

func (s *LocalObjectStore) fullpath(key string) string {
	return filepath.Join(s.baseDir, key)
}

func (s *LocalObjectStore) CreateBucket(ctx context.Context) error {
	if err := os.MkdirAll(s.baseDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", s.baseDir, err)
	}
	return nil
}

func (s *LocalObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.fullpath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", s.fullpath(key), err)
	}
	return data, nil
}

func (s *LocalObjectStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	path := s.fullpath(key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}

func (s *LocalObjectStore) DeleteObjects(ctx context.Context, prefix string) error {
	if err := os.RemoveAll(s.fullpath(prefix)); err != nil {
		return fmt.Errorf("failed to delete objects in %s: %w", s.fullpath(prefix), err)
	}
	return nil
}

func (s *LocalObjectStore) DownloadDir(ctx context.Context, src, dest string, overwrite bool) error {
	if _, err := os.Stat(dest); err == nil {
		if !overwrite {
			return fmt.Errorf("destination %s already exists and overwrite is false", dest)
		}
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	return replaceWithSymlink(s.fullpath(src), dest)
}

func (s *LocalObjectStore) UploadDir(ctx context.Context, src, dest string) error {
	destPath := s.fullpath(dest)

	if _, err := os.Stat(destPath); err == nil {
		if err := os.RemoveAll(destPath); err != nil {
			return fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	return replaceWithSymlink(src, destPath)
}

func replaceWithSymlink(target, linkPath string) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", linkPath, err)
	}

	if err := os.Symlink(target, linkPath); err != nil {
		return fmt.Errorf("failed to create symlink from %s to %s: %w", target, linkPath, err)
	}
	return nil
}
