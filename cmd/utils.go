package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path"
	"time"

	"stormlens-backend/internal/core"
	"stormlens-backend/internal/database"
	"stormlens-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	configPath := flag.String("env", "", "path to load env from")
	flag.Parse()

	if *configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", *configPath)
	if err := godotenv.Load(*configPath); err != nil {
		log.Fatalf("error loading .env file '%s': %v", *configPath, err)
	}
}

// InitializeBaseClassifier registers a pretrained classifier under the given
// name and pushes its exported artifacts (model.onnx, classifier.json) from a
// local directory into the artifact store. Repeated startups are no-ops once
// the artifacts are uploaded.
func InitializeBaseClassifier(ctx context.Context, db *gorm.DB, store storage.ObjectStore, name, localDir string) error {
	var clf database.Classifier
	err := db.Where(database.Classifier{Name: name}).Attrs(database.Classifier{
		Id:           uuid.New(),
		Type:         string(core.Onnx),
		Status:       database.ClassifierTrained,
		CreationTime: time.Now().UTC(),
	}).FirstOrCreate(&clf).Error
	if err != nil {
		return fmt.Errorf("failed to find or create classifier record: %w", err)
	}

	info, err := os.Stat(localDir)
	switch {
	case os.IsNotExist(err):
		slog.Warn("base classifier dir does not exist, skipping upload", "dir", localDir)
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat base classifier dir %s: %w", localDir, err)
	case !info.IsDir():
		slog.Warn("base classifier path exists but is not a directory, skipping upload", "path", localDir)
		return nil
	}

	prefix := core.ClassifierArtifactPath(clf.Id)
	if _, err := store.GetObject(ctx, path.Join(prefix, "classifier.json")); err == nil {
		slog.Info("base classifier already uploaded, skipping upload", "classifier_id", clf.Id)
		return nil
	}

	if err := store.UploadDir(ctx, localDir, prefix); err != nil {
		database.UpdateClassifierStatus(ctx, db, clf.Id, database.ClassifierFailed) //nolint:errcheck
		return fmt.Errorf("error uploading base classifier artifacts: %w", err)
	}

	slog.Info("successfully uploaded base classifier", "classifier_id", clf.Id, "name", name)
	return nil
}
