package integrationtests

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stormlens-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bucketName = "stormlens-test"
	subdir     = "tiles"
)

func setupTestObjectStore(t *testing.T, ctx context.Context) (*storage.S3ObjectStore, string) {
	t.Helper()

	endpoint := startMinio(t, ctx)

	objectStore, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		Bucket:          bucketName,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)
	require.NoError(t, objectStore.CreateBucket(ctx))

	return objectStore, endpoint
}

func setupTestConnector(t *testing.T, ctx context.Context) (*storage.S3ObjectStore, *storage.S3Connector) {
	t.Helper()
	objectStore, endpoint := setupTestObjectStore(t, ctx)

	// Tile keys live under the subdir prefix, like a dataset rooted in a
	// subfolder of a shared bucket.
	tiles := []string{
		"train_another/damage/-95.06_30.21.jpeg",
		"train_another/damage/-95.07_30.22.jpeg",
		"train_another/no_damage/-95.08_30.23.jpeg",
		"validation_another/no_damage/-95.09_30.24.jpeg",
	}
	for _, tile := range tiles {
		key := path.Join(subdir, tile)
		require.NoError(t, objectStore.PutObject(ctx, key, strings.NewReader("tile: "+tile)))
	}
	require.NoError(t, objectStore.PutObject(ctx, path.Join(subdir, "manifest.txt"), strings.NewReader("not a tile")))

	connector, err := storage.NewS3Connector(ctx, storage.S3ConnectorParams{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		Bucket:          bucketName,
		Prefix:          subdir,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)

	return objectStore, connector
}

func TestS3ObjectStore_PutObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore, _ := setupTestObjectStore(t, ctx)

	key := "analyses/7c2e/report.json"
	report := []byte(`{"record_count": 10}`)

	require.NoError(t, objectStore.PutObject(ctx, key, bytes.NewReader(report)))

	data, err := objectStore.GetObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, report, data)
}

func TestS3ObjectStore_DeleteObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore, _ := setupTestObjectStore(t, ctx)

	// Two classifier artifact dirs; deleting one must not touch the other.
	artifacts := map[string]string{
		"classifiers/doomed/model.onnx":      "weights",
		"classifiers/doomed/classifier.json": `{"input_name": "input"}`,
		"classifiers/kept/model.onnx":        "other weights",
	}
	for key, content := range artifacts {
		require.NoError(t, objectStore.PutObject(ctx, key, strings.NewReader(content)))
	}

	require.NoError(t, objectStore.DeleteObjects(ctx, "classifiers/doomed"))

	_, err := objectStore.GetObject(ctx, "classifiers/doomed/model.onnx")
	assert.Error(t, err)
	_, err = objectStore.GetObject(ctx, "classifiers/doomed/classifier.json")
	assert.Error(t, err)

	data, err := objectStore.GetObject(ctx, "classifiers/kept/model.onnx")
	require.NoError(t, err)
	assert.Equal(t, "other weights", string(data))
}

func TestS3ObjectStore_UploadDir(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore, _ := setupTestObjectStore(t, ctx)

	// Stage a classifier artifact dir on disk, nested file included.
	srcDir := t.TempDir()
	artifacts := []string{"model.onnx", "classifier.json", "history/epochs.json"}
	for _, name := range artifacts {
		full := filepath.Join(srcDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), os.ModePerm))
		require.NoError(t, os.WriteFile(full, []byte("artifact: "+name), os.ModePerm))
	}

	require.NoError(t, objectStore.UploadDir(ctx, srcDir, "classifiers/uploaded"))

	for _, name := range artifacts {
		data, err := objectStore.GetObject(ctx, path.Join("classifiers/uploaded", name))
		require.NoError(t, err)
		assert.Equal(t, "artifact: "+name, string(data))
	}
}

func TestS3ObjectStore_DownloadDir(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore, _ := setupTestObjectStore(t, ctx)

	artifacts := []string{"model.onnx", "classifier.json", "history/epochs.json"}
	for _, name := range artifacts {
		key := path.Join("classifiers/base", name)
		require.NoError(t, objectStore.PutObject(ctx, key, strings.NewReader("artifact: "+name)))
	}

	cacheDir := filepath.Join(t.TempDir(), "base")
	require.NoError(t, objectStore.DownloadDir(ctx, "classifiers/base", cacheDir, false))

	for _, name := range artifacts {
		data, err := os.ReadFile(filepath.Join(cacheDir, name))
		require.NoError(t, err)
		assert.Equal(t, "artifact: "+name, string(data))
	}
}

func TestS3ObjectStore_DownloadDir_Overwrite(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore, _ := setupTestObjectStore(t, ctx)

	require.NoError(t, objectStore.PutObject(ctx, "classifiers/base/model.onnx", strings.NewReader("retrained weights")))

	// The cache dir already holds a stale copy.
	cacheDir := t.TempDir()
	stale := filepath.Join(cacheDir, "model.onnx")
	require.NoError(t, os.WriteFile(stale, []byte("stale weights"), os.ModePerm))

	err := objectStore.DownloadDir(ctx, "classifiers/base", cacheDir, false)
	require.Error(t, err)
	data, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.Equal(t, "stale weights", string(data), "without overwrite the stale copy must survive")

	require.NoError(t, objectStore.DownloadDir(ctx, "classifiers/base", cacheDir, true))
	data, err = os.ReadFile(stale)
	require.NoError(t, err)
	assert.Equal(t, "retrained weights", string(data))
}

func TestS3Connector_ListSplitDirs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, connector := setupTestConnector(t, ctx)

	dirs, err := connector.ListSplitDirs(ctx)
	require.NoError(t, err)

	// Loose objects directly under the prefix are not directories.
	assert.ElementsMatch(t, []string{"train_another", "validation_another"}, dirs)
}

func TestS3Connector_CreateScanTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, connector := setupTestConnector(t, ctx)

	tasks, err := connector.CreateScanTasks(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []storage.ScanTask{
		{SplitDir: "train_another"},
		{SplitDir: "validation_another"},
	}, tasks)
}

func TestS3Connector_IterSplitObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, connector := setupTestConnector(t, ctx)

	var names []string
	for obj, err := range connector.IterSplitObjects(ctx, "train_another") {
		require.NoError(t, err)
		assert.Greater(t, obj.Size, int64(0))
		names = append(names, obj.Name)
	}

	// Keys come back relative to the dataset prefix, and other splits are
	// not included.
	assert.ElementsMatch(t, []string{
		"train_another/damage/-95.06_30.21.jpeg",
		"train_another/damage/-95.07_30.22.jpeg",
		"train_another/no_damage/-95.08_30.23.jpeg",
	}, names)
}

func TestS3Connector_GetObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	_, connector := setupTestConnector(t, ctx)

	data, err := connector.GetObject(ctx, "train_another/damage/-95.06_30.21.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "tile: train_another/damage/-95.06_30.21.jpeg", string(data))

	_, err = connector.GetObject(ctx, "train_another/damage/missing.jpeg")
	assert.Error(t, err)
}
