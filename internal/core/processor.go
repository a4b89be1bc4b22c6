package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"stormlens-backend/internal/database"
	"stormlens-backend/internal/dataset"
	"stormlens-backend/internal/imaging"
	"stormlens-backend/internal/messaging"
	"stormlens-backend/internal/pipeline"
	"stormlens-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	recordInsertBatch   = 500
	trainerPollInterval = 10 * time.Second
)

type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher
	reciever  messaging.Reciever

	decoder imaging.Decoder
	trainer *TrainerClient

	localModelDir string
	loaders       map[ClassifierType]ClassifierLoader

	workers int
}

func NewTaskProcessor(db *gorm.DB, store storage.ObjectStore, publisher messaging.Publisher, reciever messaging.Reciever, decoder imaging.Decoder, trainer *TrainerClient, localModelDir string, loaders map[ClassifierType]ClassifierLoader, workers int) *TaskProcessor {
	return &TaskProcessor{
		db:            db,
		storage:       store,
		publisher:     publisher,
		reciever:      reciever,
		decoder:       decoder,
		trainer:       trainer,
		localModelDir: localModelDir,
		loaders:       loaders,
		workers:       workers,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.publisher.Close()
	proc.reciever.Close()
}

// errDiscardTask marks messages that can never be processed, malformed
// payloads and unknown queue names. They are rejected instead of nacked.
var errDiscardTask = errors.New("discarding task")

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	err := proc.dispatchTask(context.Background(), task)
	switch {
	case errors.Is(err, errDiscardTask):
		slog.Error("rejecting unprocessable message", "queue", task.Type(), "error", err)
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
	case err != nil:
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	default:
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) dispatchTask(ctx context.Context, task messaging.Task) error {
	switch task.Type() {
	case messaging.ScanQueue:
		var payload messaging.ScanTaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("%w: unmarshalling scan task: %v", errDiscardTask, err)
		}
		return proc.processScanTask(ctx, payload)

	case messaging.AnalysisQueue:
		var payload messaging.AnalysisPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("%w: unmarshalling analysis task: %v", errDiscardTask, err)
		}
		return proc.processAnalysisTask(ctx, payload)

	case messaging.EvaluationQueue:
		var payload messaging.EvaluationPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("%w: unmarshalling evaluation task: %v", errDiscardTask, err)
		}
		return proc.processEvaluationTask(ctx, payload)

	case messaging.TrainingQueue:
		var payload messaging.TrainingPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("%w: unmarshalling training task: %v", errDiscardTask, err)
		}
		return proc.processTrainingTask(ctx, payload)

	default:
		return fmt.Errorf("%w: unknown task type %q", errDiscardTask, task.Type())
	}
}

func (proc *TaskProcessor) getConnector(ctx context.Context, ds database.Dataset) (storage.Connector, error) {
	connectorType, err := storage.ToStorageType(ds.StorageType)
	if err != nil {
		return nil, fmt.Errorf("invalid storage type: %w", err)
	}
	return storage.NewConnector(ctx, connectorType, ds.StorageParams)
}

func (proc *TaskProcessor) processScanTask(ctx context.Context, payload messaging.ScanTaskPayload) error {
	if payload.TaskId == messaging.ShardScanTaskId {
		return proc.shardDataset(ctx, payload.DatasetId)
	}
	return proc.scanShard(ctx, payload)
}

// shardDataset turns a freshly registered dataset into one scan task per
// split directory. TotalTasks is set before any shard is published so a fast
// shard on another worker cannot observe a zero task count and finalize the
// dataset early.
func (proc *TaskProcessor) shardDataset(ctx context.Context, datasetId uuid.UUID) error {
	slog.Info("sharding dataset scan", "dataset_id", datasetId)

	var ds database.Dataset
	if err := proc.db.WithContext(ctx).First(&ds, "id = ?", datasetId).Error; err != nil {
		slog.Error("error fetching dataset", "dataset_id", datasetId, "error", err)
		return fmt.Errorf("error getting dataset: %w", err)
	}

	database.UpdateDatasetStatus(ctx, proc.db, datasetId, database.DatasetScanning) //nolint:errcheck

	fail := func(err error) error {
		database.UpdateDatasetStatus(ctx, proc.db, datasetId, database.DatasetFailed) //nolint:errcheck
		database.SaveDatasetError(ctx, proc.db, datasetId, err.Error())
		return err
	}

	connector, err := proc.getConnector(ctx, ds)
	if err != nil {
		return fail(fmt.Errorf("error initializing connector for dataset scan: %w", err))
	}

	shards, err := connector.CreateScanTasks(ctx)
	if err != nil {
		return fail(fmt.Errorf("error creating scan tasks: %w", err))
	}
	if len(shards) == 0 {
		return fail(fmt.Errorf("no split directories found under dataset %s", datasetId))
	}

	for taskId, shard := range shards {
		task := database.ScanTask{
			DatasetId:    datasetId,
			TaskId:       taskId,
			SplitDir:     shard.SplitDir,
			Status:       database.JobQueued,
			CreationTime: time.Now().UTC(),
		}

		if err := proc.db.WithContext(ctx).Create(&task).Error; err != nil {
			slog.Error("error saving scan task to db", "dataset_id", datasetId, "task_id", taskId, "error", err)
			return fail(fmt.Errorf("error saving scan task to db: %w", err))
		}
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.Dataset{}).
		Where("id = ?", datasetId).
		UpdateColumn("total_tasks", len(shards)).
		Error; err != nil {
		return fail(fmt.Errorf("error updating total task count: %w", err))
	}

	for taskId := range shards {
		payload := messaging.ScanTaskPayload{DatasetId: datasetId, TaskId: taskId}
		if err := proc.publisher.PublishScanTask(ctx, payload); err != nil {
			slog.Error("failed to publish scan task", "dataset_id", datasetId, "task_id", taskId, "error", err)
			return fail(fmt.Errorf("failed to publish scan task %d: %w", taskId, err))
		}
	}

	slog.Info("dataset scan sharded", "dataset_id", datasetId, "n_tasks", len(shards))

	return nil
}

func (proc *TaskProcessor) scanShard(ctx context.Context, payload messaging.ScanTaskPayload) error {
	datasetId, taskId := payload.DatasetId, payload.TaskId

	slog.Info("processing scan task", "dataset_id", datasetId, "task_id", taskId)

	var task database.ScanTask
	if err := proc.db.WithContext(ctx).First(&task, "dataset_id = ? AND task_id = ?", datasetId, taskId).Error; err != nil {
		slog.Error("error fetching scan task", "dataset_id", datasetId, "task_id", taskId, "error", err)
		return fmt.Errorf("error getting scan task: %w", err)
	}

	var ds database.Dataset
	if err := proc.db.WithContext(ctx).First(&ds, "id = ?", datasetId).Error; err != nil {
		return fmt.Errorf("error getting dataset: %w", err)
	}

	database.UpdateScanTaskStatus(ctx, proc.db, datasetId, taskId, database.JobRunning) //nolint:errcheck

	var count int64
	scanErr := func() error {
		connector, err := proc.getConnector(ctx, ds)
		if err != nil {
			return fmt.Errorf("error initializing connector for scan task: %w", err)
		}

		count, err = proc.scanSplitDir(ctx, connector, datasetId, task.SplitDir)
		return err
	}()

	if err := proc.db.WithContext(ctx).
		Model(&database.ScanTask{}).
		Where("dataset_id = ? AND task_id = ?", datasetId, taskId).
		Update("record_count", count).
		Error; err != nil {
		slog.Error("unable to update scan task record count", "dataset_id", datasetId, "task_id", taskId, "error", err)
	}

	if scanErr != nil {
		slog.Error("error scanning split directory", "dataset_id", datasetId, "task_id", taskId, "split_dir", task.SplitDir, "error", scanErr)
		database.UpdateScanTaskStatus(ctx, proc.db, datasetId, taskId, database.JobFailed) //nolint:errcheck
		database.SaveDatasetError(ctx, proc.db, datasetId, scanErr.Error())
		proc.bumpTaskCount(datasetId, false) //nolint:errcheck
		proc.finalizeDataset(ctx, datasetId)
		return fmt.Errorf("error scanning split %s: %w", task.SplitDir, scanErr)
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.Dataset{}).
		Where("id = ?", datasetId).
		UpdateColumn("record_count", gorm.Expr("record_count + ?", count)).
		Error; err != nil {
		slog.Error("could not increment dataset record count", "dataset_id", datasetId, "error", err)
	}

	if err := database.UpdateScanTaskStatus(ctx, proc.db, datasetId, taskId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating scan task status to complete: %w", err)
	}

	if err := proc.bumpTaskCount(datasetId, true); err != nil {
		return err
	}
	proc.finalizeDataset(ctx, datasetId)

	slog.Info("scan task completed", "dataset_id", datasetId, "task_id", taskId, "records", count)

	return nil
}

// scanSplitDir walks one split directory, parses every tile key, and
// batch-inserts the records. Any malformed name fails the whole shard.
func (proc *TaskProcessor) scanSplitDir(ctx context.Context, connector storage.Connector, datasetId uuid.UUID, splitDir string) (int64, error) {
	split, ok := dataset.SplitForDir(splitDir)
	if !ok {
		return 0, fmt.Errorf("%w: unknown split directory %q", dataset.ErrFormat, splitDir)
	}

	var (
		count   int64
		pending []database.TileRecord
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := proc.db.WithContext(ctx).CreateInBatches(&pending, 100).Error; err != nil {
			return fmt.Errorf("error saving tile records: %w", err)
		}
		count += int64(len(pending))
		pending = pending[:0]
		return nil
	}

	for obj, err := range connector.IterSplitObjects(ctx, splitDir) {
		if err != nil {
			return count, fmt.Errorf("error listing objects under %s: %w", splitDir, err)
		}

		if !dataset.IsTilePath(obj.Name) {
			continue
		}

		record, err := dataset.ParseRecord(obj.Name)
		if err != nil {
			return count, err
		}
		if record.Split != split {
			return count, fmt.Errorf("%w: %q resolves to split %s inside directory %s", dataset.ErrFormat, obj.Name, record.Split, splitDir)
		}

		pending = append(pending, database.TileRecord{
			DatasetId: datasetId,
			Path:      record.Path,
			Split:     record.Split.String(),
			Label:     record.Label.String(),
			Lon:       record.Lon,
			Lat:       record.Lat,
		})

		if len(pending) >= recordInsertBatch {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}

	if err := flush(); err != nil {
		return count, err
	}

	if count == 0 {
		slog.Warn("no tile records found in split directory", "dataset_id", datasetId, "split_dir", splitDir)
	}

	return count, nil
}

func (proc *TaskProcessor) bumpTaskCount(datasetId uuid.UUID, success bool) error {
	var column string
	if success {
		column = "completed_tasks"
	} else {
		column = "failed_tasks"
	}

	if err := proc.db.
		Model(&database.Dataset{}).
		Where("id = ?", datasetId).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).
		Error; err != nil {
		slog.Error("could not increment task count", "dataset_id", datasetId, "column", column, "error", err)
		return fmt.Errorf("could not increment task count: %w", err)
	}

	return nil
}

// finalizeDataset flips a scanning dataset to its terminal status once every
// shard has reported. Running it after each shard keeps it idempotent; the
// terminal transition only happens from SCANNING.
func (proc *TaskProcessor) finalizeDataset(ctx context.Context, datasetId uuid.UUID) {
	var ds database.Dataset
	if err := proc.db.WithContext(ctx).First(&ds, "id = ?", datasetId).Error; err != nil {
		slog.Error("error fetching dataset for finalization", "dataset_id", datasetId, "error", err)
		return
	}

	if ds.Status != database.DatasetScanning {
		return
	}
	if ds.TotalTasks == 0 || ds.CompletedTasks+ds.FailedTasks < ds.TotalTasks {
		return
	}

	if ds.FailedTasks > 0 {
		database.UpdateDatasetStatus(ctx, proc.db, datasetId, database.DatasetFailed) //nolint:errcheck
		slog.Info("dataset scan failed", "dataset_id", datasetId, "failed_tasks", ds.FailedTasks)
		return
	}

	if err := proc.writeSplitSummaries(ctx, datasetId); err != nil {
		slog.Error("error writing split summaries", "dataset_id", datasetId, "error", err)
		database.UpdateDatasetStatus(ctx, proc.db, datasetId, database.DatasetFailed) //nolint:errcheck
		database.SaveDatasetError(ctx, proc.db, datasetId, err.Error())
		return
	}

	database.UpdateDatasetStatus(ctx, proc.db, datasetId, database.DatasetCompleted) //nolint:errcheck
	slog.Info("dataset scan completed", "dataset_id", datasetId, "record_count", ds.RecordCount)
}

type splitAggregate struct {
	Split          string
	DamagedCount   int64
	UndamagedCount int64
	MinLon         float64
	MaxLon         float64
	MinLat         float64
	MaxLat         float64
}

// writeSplitSummaries derives the per-split summaries from the records table
// in one aggregation. Shards that feed the same split (test and
// test_another) make incremental upserts racy across workers, so the
// summaries are computed once at finalization instead.
func (proc *TaskProcessor) writeSplitSummaries(ctx context.Context, datasetId uuid.UUID) error {
	var aggregates []splitAggregate

	query := `
		SELECT split,
		       SUM(CASE WHEN label = ? THEN 1 ELSE 0 END) AS damaged_count,
		       SUM(CASE WHEN label = ? THEN 1 ELSE 0 END) AS undamaged_count,
		       MIN(lon) AS min_lon, MAX(lon) AS max_lon,
		       MIN(lat) AS min_lat, MAX(lat) AS max_lat
		FROM tile_records
		WHERE dataset_id = ?
		GROUP BY split`

	if err := proc.db.WithContext(ctx).
		Raw(query, dataset.Damaged.String(), dataset.Undamaged.String(), datasetId).
		Scan(&aggregates).Error; err != nil {
		return fmt.Errorf("error aggregating split summaries: %w", err)
	}

	for _, agg := range aggregates {
		summary := database.SplitSummary{
			DatasetId:      datasetId,
			Split:          agg.Split,
			DamagedCount:   agg.DamagedCount,
			UndamagedCount: agg.UndamagedCount,
			MinLon:         agg.MinLon,
			MaxLon:         agg.MaxLon,
			MinLat:         agg.MinLat,
			MaxLat:         agg.MaxLat,
		}

		if err := proc.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&summary).Error; err != nil {
			return fmt.Errorf("error saving split summary for %s: %w", agg.Split, err)
		}
	}

	return nil
}

// loadRecords reads a dataset's records back out of the database, optionally
// restricted to a split and filtered by a query expression. Ordered by path
// so downstream pipelines see a stable sequence.
func (proc *TaskProcessor) loadRecords(ctx context.Context, datasetId uuid.UUID, split, query string) ([]dataset.Record, error) {
	db := proc.db.WithContext(ctx).Where("dataset_id = ?", datasetId)
	if split != "" {
		db = db.Where("split = ?", split)
	}

	var rows []database.TileRecord
	if err := db.Order("path").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error loading tile records: %w", err)
	}

	records := make([]dataset.Record, 0, len(rows))
	for _, row := range rows {
		record, err := recordFromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if query != "" {
		filter, err := dataset.ParseQuery(query)
		if err != nil {
			return nil, fmt.Errorf("error parsing query: %w", err)
		}
		records = dataset.FilterRecords(records, filter)
	}

	return records, nil
}

func recordFromRow(row database.TileRecord) (dataset.Record, error) {
	split, err := dataset.ParseSplit(row.Split)
	if err != nil {
		return dataset.Record{}, err
	}

	label, err := dataset.ParseLabel(row.Label)
	if err != nil {
		return dataset.Record{}, err
	}

	return dataset.Record{Path: row.Path, Split: split, Label: label, Lon: row.Lon, Lat: row.Lat}, nil
}

func (proc *TaskProcessor) processAnalysisTask(ctx context.Context, payload messaging.AnalysisPayload) error {
	jobId := payload.JobId

	slog.Info("processing analysis task", "job_id", jobId)

	var job database.AnalysisJob
	if err := proc.db.WithContext(ctx).First(&job, "id = ?", jobId).Error; err != nil {
		slog.Error("error fetching analysis job", "job_id", jobId, "error", err)
		return fmt.Errorf("error getting analysis job: %w", err)
	}

	database.UpdateAnalysisJobStatus(ctx, proc.db, jobId, database.JobRunning) //nolint:errcheck

	fail := func(err error) error {
		database.UpdateAnalysisJobStatus(ctx, proc.db, jobId, database.JobFailed) //nolint:errcheck
		database.SaveDatasetError(ctx, proc.db, job.DatasetId, err.Error())
		return err
	}

	report, err := proc.runAnalysis(ctx, job)
	if err != nil {
		return fail(fmt.Errorf("error running analysis: %w", err))
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fail(fmt.Errorf("error encoding analysis report: %w", err))
	}

	reportPath := analysisReportPath(jobId)
	if err := proc.storage.PutObject(ctx, reportPath, bytes.NewReader(data)); err != nil {
		return fail(fmt.Errorf("error uploading analysis report: %w", err))
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.AnalysisJob{}).
		Where("id = ?", jobId).
		Update("report_path", reportPath).
		Error; err != nil {
		return fail(fmt.Errorf("error recording report path: %w", err))
	}

	if err := database.UpdateAnalysisJobStatus(ctx, proc.db, jobId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating analysis job status to complete: %w", err)
	}

	slog.Info("analysis completed", "job_id", jobId, "report_path", reportPath)

	return nil
}

func (proc *TaskProcessor) runAnalysis(ctx context.Context, job database.AnalysisJob) (AnalysisReport, error) {
	var ds database.Dataset
	if err := proc.db.WithContext(ctx).First(&ds, "id = ?", job.DatasetId).Error; err != nil {
		return AnalysisReport{}, fmt.Errorf("error getting dataset: %w", err)
	}

	if ds.Status != database.DatasetCompleted {
		return AnalysisReport{}, fmt.Errorf("dataset %s is not scanned (status %s)", ds.Id, ds.Status)
	}

	records, err := proc.loadRecords(ctx, job.DatasetId, job.Split, job.Query)
	if err != nil {
		return AnalysisReport{}, err
	}
	if len(records) == 0 {
		return AnalysisReport{}, errors.New("no records matched the analysis selection")
	}

	connector, err := proc.getConnector(ctx, ds)
	if err != nil {
		return AnalysisReport{}, fmt.Errorf("error initializing connector: %w", err)
	}

	report, err := BuildAnalysisReport(ctx, connector, proc.decoder, records, proc.workers)
	if err != nil {
		return AnalysisReport{}, err
	}

	report.DatasetId = job.DatasetId
	report.Split = job.Split
	report.Query = job.Query

	return report, nil
}

func (proc *TaskProcessor) processEvaluationTask(ctx context.Context, payload messaging.EvaluationPayload) error {
	evaluationId := payload.EvaluationId

	slog.Info("processing evaluation task", "evaluation_id", evaluationId)

	var eval database.Evaluation
	if err := proc.db.WithContext(ctx).First(&eval, "id = ?", evaluationId).Error; err != nil {
		slog.Error("error fetching evaluation", "evaluation_id", evaluationId, "error", err)
		return fmt.Errorf("error getting evaluation: %w", err)
	}

	database.UpdateEvaluationStatus(ctx, proc.db, evaluationId, database.JobRunning) //nolint:errcheck

	metrics, err := proc.runEvaluation(ctx, eval)
	if err != nil {
		database.UpdateEvaluationStatus(ctx, proc.db, evaluationId, database.JobFailed) //nolint:errcheck
		return fmt.Errorf("error running evaluation: %w", err)
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.Evaluation{}).
		Where("id = ?", evaluationId).
		Updates(map[string]any{
			"loss":         metrics.Loss,
			"accuracy":     metrics.Accuracy,
			"sample_count": metrics.SampleCount,
		}).Error; err != nil {
		database.UpdateEvaluationStatus(ctx, proc.db, evaluationId, database.JobFailed) //nolint:errcheck
		return fmt.Errorf("error saving evaluation results: %w", err)
	}

	if err := database.UpdateEvaluationStatus(ctx, proc.db, evaluationId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating evaluation status to complete: %w", err)
	}

	slog.Info("evaluation completed", "evaluation_id", evaluationId, "loss", metrics.Loss, "accuracy", metrics.Accuracy, "samples", metrics.SampleCount)

	return nil
}

func (proc *TaskProcessor) runEvaluation(ctx context.Context, eval database.Evaluation) (EvalMetrics, error) {
	var clf database.Classifier
	if err := proc.db.WithContext(ctx).First(&clf, "id = ?", eval.ClassifierId).Error; err != nil {
		return EvalMetrics{}, fmt.Errorf("error getting classifier: %w", err)
	}

	if clf.Status != database.ClassifierTrained {
		return EvalMetrics{}, fmt.Errorf("classifier %s is not trained (status %s)", clf.Id, clf.Status)
	}

	var ds database.Dataset
	if err := proc.db.WithContext(ctx).First(&ds, "id = ?", eval.DatasetId).Error; err != nil {
		return EvalMetrics{}, fmt.Errorf("error getting dataset: %w", err)
	}

	if ds.Status != database.DatasetCompleted {
		return EvalMetrics{}, fmt.Errorf("dataset %s is not scanned (status %s)", ds.Id, ds.Status)
	}

	records, err := proc.loadRecords(ctx, eval.DatasetId, eval.Split, eval.Query)
	if err != nil {
		return EvalMetrics{}, err
	}
	if len(records) == 0 {
		return EvalMetrics{}, errors.New("no records matched the evaluation selection")
	}

	connector, err := proc.getConnector(ctx, ds)
	if err != nil {
		return EvalMetrics{}, fmt.Errorf("error initializing connector: %w", err)
	}

	classifier, err := proc.loadClassifier(ctx, clf)
	if err != nil {
		return EvalMetrics{}, err
	}
	defer classifier.Release()

	p := pipeline.New(connector, proc.decoder, records, pipeline.Options{
		BatchSize:     eval.BatchSize,
		ShuffleBuffer: 1, // evaluation keeps record order
		Workers:       proc.workers,
	})

	return EvaluateClassifier(classifier, p.Batches(ctx))
}

func (proc *TaskProcessor) classifierDir(classifierId uuid.UUID) string {
	return filepath.Join(proc.localModelDir, classifierId.String())
}

// ClassifierArtifactPath is the object store prefix holding a classifier's
// exported artifacts.
func ClassifierArtifactPath(classifierId uuid.UUID) string {
	return path.Join("classifiers", classifierId.String())
}

func (proc *TaskProcessor) loadClassifier(ctx context.Context, clf database.Classifier) (Classifier, error) {
	classifierType := ParseClassifierType(clf.Type)

	loader, ok := proc.loaders[classifierType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for classifier type %q", clf.Type)
	}

	var localDir string
	if !IsStatelessClassifier(classifierType) {
		localDir = proc.classifierDir(clf.Id)

		if _, err := os.Stat(localDir); os.IsNotExist(err) {
			slog.Info("classifier artifacts not cached locally, downloading", "classifier_id", clf.Id)

			if err := proc.storage.DownloadDir(ctx, ClassifierArtifactPath(clf.Id), localDir, false); err != nil {
				return nil, fmt.Errorf("failed to download classifier artifacts: %w", err)
			}
		}
	}

	classifier, err := loader(clf.Id, localDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load classifier: %w", err)
	}

	return classifier, nil
}

func (proc *TaskProcessor) processTrainingTask(ctx context.Context, payload messaging.TrainingPayload) error {
	jobId := payload.JobId

	slog.Info("processing training task", "job_id", jobId)

	var job database.TrainingJob
	if err := proc.db.WithContext(ctx).First(&job, "id = ?", jobId).Error; err != nil {
		slog.Error("error fetching training job", "job_id", jobId, "error", err)
		return fmt.Errorf("error getting training job: %w", err)
	}

	database.UpdateTrainingJobStatus(ctx, proc.db, jobId, database.JobRunning)                   //nolint:errcheck
	database.UpdateClassifierStatus(ctx, proc.db, job.ClassifierId, database.ClassifierTraining) //nolint:errcheck

	fail := func(err error) error {
		database.UpdateTrainingJobStatus(ctx, proc.db, jobId, database.JobFailed)                  //nolint:errcheck
		database.UpdateClassifierStatus(ctx, proc.db, job.ClassifierId, database.ClassifierFailed) //nolint:errcheck
		return err
	}

	history, err := proc.runTraining(ctx, job)
	if err != nil {
		return fail(fmt.Errorf("error running training job: %w", err))
	}

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fail(fmt.Errorf("error encoding training history: %w", err))
	}

	if err := proc.db.WithContext(ctx).
		Model(&database.TrainingJob{}).
		Where("id = ?", jobId).
		Update("history", datatypes.JSON(historyJSON)).
		Error; err != nil {
		return fail(fmt.Errorf("error saving training history: %w", err))
	}

	if err := database.UpdateClassifierStatus(ctx, proc.db, job.ClassifierId, database.ClassifierTrained); err != nil {
		return fail(fmt.Errorf("error updating classifier status: %w", err))
	}

	if err := database.UpdateTrainingJobStatus(ctx, proc.db, jobId, database.JobCompleted); err != nil {
		return fmt.Errorf("error updating training job status to complete: %w", err)
	}

	slog.Info("training job completed", "job_id", jobId, "classifier_id", job.ClassifierId)

	return nil
}

// runTraining submits the fit to the trainer service and polls until it
// reaches a terminal state. The remote job id is persisted right after
// submission so a redelivered task resumes polling instead of starting a
// second fit.
func (proc *TaskProcessor) runTraining(ctx context.Context, job database.TrainingJob) ([]EpochMetrics, error) {
	if proc.trainer == nil {
		return nil, errors.New("no trainer service configured")
	}

	var clf database.Classifier
	if err := proc.db.WithContext(ctx).First(&clf, "id = ?", job.ClassifierId).Error; err != nil {
		return nil, fmt.Errorf("error getting classifier: %w", err)
	}

	var ds database.Dataset
	if err := proc.db.WithContext(ctx).First(&ds, "id = ?", job.DatasetId).Error; err != nil {
		return nil, fmt.Errorf("error getting dataset: %w", err)
	}

	if ds.Status != database.DatasetCompleted {
		return nil, fmt.Errorf("dataset %s is not scanned (status %s)", ds.Id, ds.Status)
	}

	remoteId := job.RemoteJobId
	if remoteId == "" {
		req := FitRequest{
			ClassifierId:  job.ClassifierId,
			DatasetId:     job.DatasetId,
			StorageType:   ds.StorageType,
			StorageParams: json.RawMessage(ds.StorageParams),
			Splits:        []string{dataset.TrainSplit.String(), dataset.ValidationSplit.String()},
			Epochs:        job.Epochs,
			BatchSize:     pipeline.DefaultBatchSize,
		}
		if clf.BaseClassifierId.Valid {
			base := clf.BaseClassifierId.UUID
			req.BaseClassifierId = &base
		}

		var err error
		remoteId, err = proc.trainer.StartFit(ctx, req)
		if err != nil {
			return nil, err
		}

		if err := proc.db.WithContext(ctx).
			Model(&database.TrainingJob{}).
			Where("id = ?", job.Id).
			Update("remote_job_id", remoteId).
			Error; err != nil {
			slog.Error("error recording remote job id", "job_id", job.Id, "remote_job_id", remoteId, "error", err)
		}

		slog.Info("fit started on trainer service", "job_id", job.Id, "remote_job_id", remoteId)
	}

	for {
		status, err := proc.trainer.GetFit(ctx, remoteId)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case FitCompleted:
			return status.History, nil
		case FitFailed:
			return nil, fmt.Errorf("remote fit failed: %s", status.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(trainerPollInterval):
		}
	}
}

func analysisReportPath(jobId uuid.UUID) string {
	return fmt.Sprintf("analyses/%s/report.json", jobId)
}
