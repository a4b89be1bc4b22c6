package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// ScanTask covers one top level split directory of a dataset. The worker
// scans each directory independently so large datasets shard naturally.
type ScanTask struct {
	SplitDir string
}

// Connector provides read access to the tile tree of a registered dataset.
// Object names are slash separated keys relative to the dataset root, so the
// split directory is the first path element and the label directory is the
// parent of the tile.
type Connector interface {
	ListSplitDirs(ctx context.Context) ([]string, error)

	CreateScanTasks(ctx context.Context) ([]ScanTask, error)

	IterSplitObjects(ctx context.Context, splitDir string) ObjectIterator

	GetObject(ctx context.Context, key string) ([]byte, error)
}

type StorageType string

const (
	LocalStorageType StorageType = "local"
	S3StorageType    StorageType = "s3"
)

func ToStorageType(typeString string) (StorageType, error) {
	switch typeString {
	case string(LocalStorageType):
		return LocalStorageType, nil
	case string(S3StorageType):
		return S3StorageType, nil
	}
	return "", fmt.Errorf("unknown storage type: %s", typeString)
}

func NewConnector(ctx context.Context, storageType StorageType, params []byte) (Connector, error) {
	switch storageType {
	case LocalStorageType:
		var localConnectorParams LocalConnectorParams
		if err := json.Unmarshal(params, &localConnectorParams); err != nil {
			return nil, err
		}
		return NewLocalConnector(localConnectorParams), nil

	case S3StorageType:
		var s3ConnectorParams S3ConnectorParams
		if err := json.Unmarshal(params, &s3ConnectorParams); err != nil {
			return nil, err
		}
		return NewS3Connector(ctx, s3ConnectorParams)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}

func scanTasksForDirs(dirs []string) []ScanTask {
	tasks := make([]ScanTask, 0, len(dirs))
	for _, dir := range dirs {
		tasks = append(tasks, ScanTask{SplitDir: dir})
	}
	return tasks
}
