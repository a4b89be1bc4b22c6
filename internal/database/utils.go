package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// statusUpdate builds the column updates for a status change, stamping
// completion_time when the new status is terminal.
func statusUpdate(status string, terminal bool) map[string]any {
	updates := map[string]any{"status": status}
	if terminal {
		updates["completion_time"] = time.Now().UTC()
	}
	return updates
}

func UpdateDatasetStatus(ctx context.Context, txn *gorm.DB, datasetId uuid.UUID, status string) error {
	updates := statusUpdate(status, status == DatasetCompleted || status == DatasetFailed)

	if err := txn.WithContext(ctx).Model(&Dataset{Id: datasetId}).Updates(updates).Error; err != nil {
		slog.Error("error updating dataset status", "dataset_id", datasetId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateScanTaskStatus(ctx context.Context, txn *gorm.DB, datasetId uuid.UUID, taskId int, status string) error {
	updates := statusUpdate(status, status == JobCompleted || status == JobFailed)
	if status == JobRunning {
		updates["start_time"] = time.Now().UTC()
	}

	// Explicit condition because a zero TaskId would be dropped from a
	// primary key struct lookup.
	if err := txn.WithContext(ctx).Model(&ScanTask{}).Where("dataset_id = ? AND task_id = ?", datasetId, taskId).Updates(updates).Error; err != nil {
		slog.Error("error updating scan task status", "dataset_id", datasetId, "task_id", taskId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateClassifierStatus(ctx context.Context, txn *gorm.DB, classifierId uuid.UUID, status string) error {
	updates := statusUpdate(status, status == ClassifierTrained || status == ClassifierFailed)

	if err := txn.WithContext(ctx).Model(&Classifier{Id: classifierId}).Updates(updates).Error; err != nil {
		slog.Error("error updating classifier status", "classifier_id", classifierId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateEvaluationStatus(ctx context.Context, txn *gorm.DB, evaluationId uuid.UUID, status string) error {
	updates := statusUpdate(status, status == JobCompleted || status == JobFailed)

	if err := txn.WithContext(ctx).Model(&Evaluation{Id: evaluationId}).Updates(updates).Error; err != nil {
		slog.Error("error updating evaluation status", "evaluation_id", evaluationId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateAnalysisJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := statusUpdate(status, status == JobCompleted || status == JobFailed)

	if err := txn.WithContext(ctx).Model(&AnalysisJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating analysis job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

func UpdateTrainingJobStatus(ctx context.Context, txn *gorm.DB, jobId uuid.UUID, status string) error {
	updates := statusUpdate(status, status == JobCompleted || status == JobFailed)

	if err := txn.WithContext(ctx).Model(&TrainingJob{Id: jobId}).Updates(updates).Error; err != nil {
		slog.Error("error updating training job status", "job_id", jobId, "status", status, "error", err)
		return err
	}
	return nil
}

func SaveDatasetError(ctx context.Context, txn *gorm.DB, datasetId uuid.UUID, errorMessage string) {
	datasetError := DatasetError{
		DatasetId: datasetId,
		ErrorId:   uuid.New(),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&datasetError).Error; err != nil {
		slog.Error("error saving dataset error", "dataset_id", datasetId, "error", err)
	}
}
