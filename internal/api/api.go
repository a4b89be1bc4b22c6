package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"time"

	"stormlens-backend/internal/core"
	"stormlens-backend/internal/database"
	"stormlens-backend/internal/dataset"
	"stormlens-backend/internal/messaging"
	"stormlens-backend/internal/pipeline"
	"stormlens-backend/internal/storage"
	"stormlens-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultRecordPageSize = 100
	maxRecordPageSize     = 1000

	evaluationEventInterval = time.Second
)

type BackendService struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher
}

func NewBackendService(db *gorm.DB, store storage.ObjectStore, publisher messaging.Publisher) *BackendService {
	return &BackendService{db: db, storage: store, publisher: publisher}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/datasets", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateDataset))
		r.Get("/", RestHandler(s.ListDatasets))
		r.Get("/{dataset_id}", RestHandler(s.GetDataset))
		r.Delete("/{dataset_id}", RestHandler(s.DeleteDataset))
		r.Get("/{dataset_id}/records", RestHandler(s.GetDatasetRecords))
		r.Get("/{dataset_id}/splits", RestHandler(s.GetDatasetSplits))
		r.Post("/{dataset_id}/analyses", RestHandler(s.CreateAnalysis))
	})
	r.Route("/analyses", func(r chi.Router) {
		r.Get("/{analysis_id}", RestHandler(s.GetAnalysis))
		r.Get("/{analysis_id}/report", RestHandler(s.GetAnalysisReport))
	})
	r.Route("/classifiers", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateClassifier))
		r.Get("/", RestHandler(s.ListClassifiers))
		r.Get("/{classifier_id}", RestHandler(s.GetClassifier))
	})
	r.Route("/evaluations", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateEvaluation))
		r.Get("/{evaluation_id}", RestHandler(s.GetEvaluation))
		r.Get("/{evaluation_id}/events", RestStreamHandler(s.StreamEvaluationEvents))
	})
	r.Route("/training-jobs", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateTrainingJob))
		r.Get("/{training_job_id}", RestHandler(s.GetTrainingJob))
	})
}

func (s *BackendService) CreateDataset(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateDatasetRequest](r)
	if err != nil {
		return nil, err
	}

	if err := validateName(req.Name); err != nil {
		return nil, err
	}

	storageType, err := storage.ToStorageType(req.StorageType)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unknown storage type %q", req.StorageType)
	}
	if len(req.StorageParams) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "storage params are required")
	}

	ctx := r.Context()

	if _, err := storage.NewConnector(ctx, storageType, req.StorageParams); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid storage params: %v", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Dataset{}).Where("name = ?", req.Name).Count(&count).Error; err != nil {
		slog.Error("error checking dataset name", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create dataset entry")
	}
	if count > 0 {
		return nil, CodedErrorf(http.StatusConflict, "dataset named %q already exists", req.Name)
	}

	ds := database.Dataset{
		Id:            uuid.New(),
		Name:          req.Name,
		StorageType:   string(storageType),
		StorageParams: datatypes.JSON(req.StorageParams),
		Status:        database.DatasetQueued,
		CreationTime:  time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&ds).Error; err != nil {
		slog.Error("error creating dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create dataset entry")
	}

	payload := messaging.ScanTaskPayload{DatasetId: ds.Id, TaskId: messaging.ShardScanTaskId}
	if err := s.publisher.PublishScanTask(ctx, payload); err != nil {
		slog.Error("error publishing scan task", "dataset_id", ds.Id, "error", err)
		//nolint:errcheck
		database.UpdateDatasetStatus(ctx, s.db, ds.Id, database.DatasetFailed)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue dataset scan")
	}

	slog.Info("registered dataset", "dataset_id", ds.Id, "name", ds.Name)
	return api.CreateDatasetResponse{DatasetId: ds.Id}, nil
}

func (s *BackendService) ListDatasets(r *http.Request) (any, error) {
	ctx := r.Context()

	var datasets []database.Dataset
	if err := s.db.WithContext(ctx).Order("creation_time DESC").Find(&datasets).Error; err != nil {
		slog.Error("error listing datasets", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving datasets")
	}

	return convertDatasets(datasets), nil
}

func (s *BackendService) GetDataset(r *http.Request) (any, error) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var ds database.Dataset
	if err := s.db.WithContext(ctx).Preload("Errors").First(&ds, "id = ?", datasetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "dataset not found")
		}
		slog.Error("error getting dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving dataset record")
	}

	return convertDataset(ds), nil
}

func (s *BackendService) DeleteDataset(r *http.Request) (any, error) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var jobs []database.AnalysisJob
	if err := s.db.WithContext(ctx).Where("dataset_id = ?", datasetId).Find(&jobs).Error; err != nil {
		slog.Error("error listing analyses for dataset", "dataset_id", datasetId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting dataset")
	}

	if err := s.db.WithContext(ctx).Delete(&database.Dataset{Id: datasetId}).Error; err != nil {
		slog.Error("error deleting dataset", "dataset_id", datasetId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting dataset")
	}

	// Stored reports are cleanup, not correctness; the rows are already gone.
	for _, job := range jobs {
		if job.ReportPath == "" {
			continue
		}
		if err := s.storage.DeleteObjects(ctx, path.Dir(job.ReportPath)); err != nil {
			slog.Error("error deleting analysis report objects", "analysis_id", job.Id, "error", err)
		}
	}

	slog.Info("deleted dataset", "dataset_id", datasetId)
	return nil, nil
}

type recordQueryParams struct {
	Split  string `schema:"split"`
	Label  string `schema:"label"`
	Limit  int    `schema:"limit"`
	Offset int    `schema:"offset"`
}

func (s *BackendService) GetDatasetRecords(r *http.Request) (any, error) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[recordQueryParams](r)
	if err != nil {
		return nil, err
	}

	if params.Limit <= 0 {
		params.Limit = defaultRecordPageSize
	}
	if params.Limit > maxRecordPageSize {
		params.Limit = maxRecordPageSize
	}
	if params.Offset < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "offset cannot be negative")
	}

	if params.Split != "" {
		if _, err := dataset.ParseSplit(params.Split); err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid split %q", params.Split)
		}
	}
	if params.Label != "" {
		if _, err := dataset.ParseLabel(params.Label); err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid label %q", params.Label)
		}
	}

	ctx := r.Context()

	query := s.db.WithContext(ctx).Where("dataset_id = ?", datasetId)
	if params.Split != "" {
		query = query.Where("split = ?", params.Split)
	}
	if params.Label != "" {
		query = query.Where("label = ?", params.Label)
	}

	var records []database.TileRecord
	if err := query.Order("path").Limit(params.Limit).Offset(params.Offset).Find(&records).Error; err != nil {
		slog.Error("error listing dataset records", "dataset_id", datasetId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving dataset records")
	}

	return convertRecords(records), nil
}

func (s *BackendService) GetDatasetSplits(r *http.Request) (any, error) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var summaries []database.SplitSummary
	if err := s.db.WithContext(ctx).Where("dataset_id = ?", datasetId).Order("split").Find(&summaries).Error; err != nil {
		slog.Error("error listing dataset splits", "dataset_id", datasetId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving dataset splits")
	}

	return convertSplitSummaries(summaries), nil
}

func (s *BackendService) CreateAnalysis(r *http.Request) (any, error) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.CreateAnalysisRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Split != "" {
		if _, err := dataset.ParseSplit(req.Split); err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid split %q", req.Split)
		}
	}
	if req.Query != "" {
		if _, err := dataset.ParseQuery(req.Query); err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid query: %v", err)
		}
	}

	ctx := r.Context()

	var ds database.Dataset
	if err := s.db.WithContext(ctx).First(&ds, "id = ?", datasetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "dataset not found")
		}
		slog.Error("error getting dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving dataset record")
	}

	if ds.Status != database.DatasetCompleted {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "dataset is not ready: dataset has status: %s", ds.Status)
	}

	job := database.AnalysisJob{
		Id:           uuid.New(),
		DatasetId:    ds.Id,
		Split:        req.Split,
		Query:        req.Query,
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		slog.Error("error creating analysis job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create analysis entry")
	}

	if err := s.publisher.PublishAnalysisTask(ctx, messaging.AnalysisPayload{JobId: job.Id}); err != nil {
		slog.Error("error publishing analysis task", "analysis_id", job.Id, "error", err)
		//nolint:errcheck
		database.UpdateAnalysisJobStatus(ctx, s.db, job.Id, database.JobFailed)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue analysis")
	}

	slog.Info("submitted analysis", "analysis_id", job.Id, "dataset_id", ds.Id)
	return api.CreateAnalysisResponse{AnalysisId: job.Id}, nil
}

func (s *BackendService) GetAnalysis(r *http.Request) (any, error) {
	analysisId, err := URLParamUUID(r, "analysis_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var job database.AnalysisJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", analysisId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "analysis not found")
		}
		slog.Error("error getting analysis", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving analysis record")
	}

	return convertAnalysis(job), nil
}

func (s *BackendService) GetAnalysisReport(r *http.Request) (any, error) {
	analysisId, err := URLParamUUID(r, "analysis_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var job database.AnalysisJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", analysisId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "analysis not found")
		}
		slog.Error("error getting analysis", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving analysis record")
	}

	if job.Status != database.JobCompleted {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "analysis is not ready: analysis has status: %s", job.Status)
	}

	data, err := s.storage.GetObject(ctx, job.ReportPath)
	if err != nil {
		slog.Error("error fetching analysis report", "analysis_id", job.Id, "path", job.ReportPath, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving analysis report")
	}

	return json.RawMessage(data), nil
}

func (s *BackendService) CreateClassifier(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateClassifierRequest](r)
	if err != nil {
		return nil, err
	}

	if err := validateName(req.Name); err != nil {
		return nil, err
	}

	classifierType := core.ParseClassifierType(req.Type)
	if classifierType != core.Onnx && classifierType != core.Remote {
		return nil, CodedErrorf(http.StatusBadRequest, "unknown classifier type %q", req.Type)
	}

	ctx := r.Context()

	clf := database.Classifier{
		Id:           uuid.New(),
		Name:         req.Name,
		Type:         string(classifierType),
		Status:       database.ClassifierQueued,
		CreationTime: time.Now().UTC(),
	}

	if req.BaseClassifierId != nil {
		var base database.Classifier
		if err := s.db.WithContext(ctx).First(&base, "id = ?", *req.BaseClassifierId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, CodedErrorf(http.StatusNotFound, "base classifier not found")
			}
			slog.Error("error getting base classifier", "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving base classifier record")
		}
		clf.BaseClassifierId = uuid.NullUUID{UUID: base.Id, Valid: true}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.Classifier{}).Where("name = ?", req.Name).Count(&count).Error; err != nil {
		slog.Error("error checking classifier name", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create classifier entry")
	}
	if count > 0 {
		return nil, CodedErrorf(http.StatusConflict, "classifier named %q already exists", req.Name)
	}

	if err := s.db.WithContext(ctx).Create(&clf).Error; err != nil {
		slog.Error("error creating classifier", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create classifier entry")
	}

	slog.Info("created classifier", "classifier_id", clf.Id, "type", clf.Type)
	return api.CreateClassifierResponse{ClassifierId: clf.Id}, nil
}

func (s *BackendService) ListClassifiers(r *http.Request) (any, error) {
	ctx := r.Context()

	var classifiers []database.Classifier
	if err := s.db.WithContext(ctx).Order("creation_time DESC").Find(&classifiers).Error; err != nil {
		slog.Error("error listing classifiers", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving classifiers")
	}

	return convertClassifiers(classifiers), nil
}

func (s *BackendService) GetClassifier(r *http.Request) (any, error) {
	classifierId, err := URLParamUUID(r, "classifier_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var clf database.Classifier
	if err := s.db.WithContext(ctx).First(&clf, "id = ?", classifierId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "classifier not found")
		}
		slog.Error("error getting classifier", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving classifier record")
	}

	return convertClassifier(clf), nil
}

func (s *BackendService) CreateEvaluation(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateEvaluationRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Split != "" {
		if _, err := dataset.ParseSplit(req.Split); err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid split %q", req.Split)
		}
	}
	if req.Query != "" {
		if _, err := dataset.ParseQuery(req.Query); err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid query: %v", err)
		}
	}

	batchSize := req.BatchSize
	if batchSize < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "batch size cannot be negative")
	}
	if batchSize == 0 {
		batchSize = pipeline.DefaultBatchSize
	}

	ctx := r.Context()

	var clf database.Classifier
	if err := s.db.WithContext(ctx).First(&clf, "id = ?", req.ClassifierId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "classifier not found")
		}
		slog.Error("error getting classifier", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving classifier record")
	}
	if clf.Status != database.ClassifierTrained {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "classifier is not ready: classifier has status: %s", clf.Status)
	}

	var ds database.Dataset
	if err := s.db.WithContext(ctx).First(&ds, "id = ?", req.DatasetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "dataset not found")
		}
		slog.Error("error getting dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving dataset record")
	}
	if ds.Status != database.DatasetCompleted {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "dataset is not ready: dataset has status: %s", ds.Status)
	}

	eval := database.Evaluation{
		Id:           uuid.New(),
		DatasetId:    ds.Id,
		ClassifierId: clf.Id,
		Split:        req.Split,
		Query:        req.Query,
		BatchSize:    batchSize,
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&eval).Error; err != nil {
		slog.Error("error creating evaluation", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create evaluation entry")
	}

	if err := s.publisher.PublishEvaluationTask(ctx, messaging.EvaluationPayload{EvaluationId: eval.Id}); err != nil {
		slog.Error("error publishing evaluation task", "evaluation_id", eval.Id, "error", err)
		//nolint:errcheck
		database.UpdateEvaluationStatus(ctx, s.db, eval.Id, database.JobFailed)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue evaluation")
	}

	slog.Info("submitted evaluation", "evaluation_id", eval.Id, "classifier_id", clf.Id, "dataset_id", ds.Id)
	return api.CreateEvaluationResponse{EvaluationId: eval.Id}, nil
}

func (s *BackendService) GetEvaluation(r *http.Request) (any, error) {
	evaluationId, err := URLParamUUID(r, "evaluation_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var eval database.Evaluation
	if err := s.db.WithContext(ctx).First(&eval, "id = ?", evaluationId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "evaluation not found")
		}
		slog.Error("error getting evaluation", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving evaluation record")
	}

	return convertEvaluation(eval), nil
}

// StreamEvaluationEvents writes one status snapshot per poll until the
// evaluation reaches a terminal state, then closes the stream.
func (s *BackendService) StreamEvaluationEvents(r *http.Request) (StreamResponse, error) {
	evaluationId, err := URLParamUUID(r, "evaluation_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var eval database.Evaluation
	if err := s.db.WithContext(ctx).First(&eval, "id = ?", evaluationId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "evaluation not found")
		}
		slog.Error("error getting evaluation", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving evaluation record")
	}

	return func(yield func(any, error) bool) {
		for {
			var eval database.Evaluation
			if err := s.db.WithContext(ctx).First(&eval, "id = ?", evaluationId).Error; err != nil {
				slog.Error("error polling evaluation", "evaluation_id", evaluationId, "error", err)
				yield(nil, CodedErrorf(http.StatusInternalServerError, "error retrieving evaluation record"))
				return
			}

			if !yield(convertEvaluation(eval), nil) {
				return
			}

			if eval.Status == database.JobCompleted || eval.Status == database.JobFailed {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(evaluationEventInterval):
			}
		}
	}, nil
}

func (s *BackendService) CreateTrainingJob(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateTrainingJobRequest](r)
	if err != nil {
		return nil, err
	}

	epochs := req.Epochs
	if epochs < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "epochs cannot be negative")
	}
	if epochs == 0 {
		epochs = 1
	}

	ctx := r.Context()

	var clf database.Classifier
	if err := s.db.WithContext(ctx).First(&clf, "id = ?", req.ClassifierId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "classifier not found")
		}
		slog.Error("error getting classifier", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving classifier record")
	}
	if clf.Status != database.ClassifierQueued {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "classifier cannot be trained: classifier has status: %s", clf.Status)
	}

	var ds database.Dataset
	if err := s.db.WithContext(ctx).First(&ds, "id = ?", req.DatasetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "dataset not found")
		}
		slog.Error("error getting dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving dataset record")
	}
	if ds.Status != database.DatasetCompleted {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "dataset is not ready: dataset has status: %s", ds.Status)
	}

	job := database.TrainingJob{
		Id:           uuid.New(),
		ClassifierId: clf.Id,
		DatasetId:    ds.Id,
		Epochs:       epochs,
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		slog.Error("error creating training job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create training job entry")
	}

	if err := s.publisher.PublishTrainingTask(ctx, messaging.TrainingPayload{JobId: job.Id}); err != nil {
		slog.Error("error publishing training task", "training_job_id", job.Id, "error", err)
		//nolint:errcheck
		database.UpdateTrainingJobStatus(ctx, s.db, job.Id, database.JobFailed)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue training job")
	}

	slog.Info("submitted training job", "training_job_id", job.Id, "classifier_id", clf.Id, "dataset_id", ds.Id)
	return api.CreateTrainingJobResponse{TrainingJobId: job.Id}, nil
}

func (s *BackendService) GetTrainingJob(r *http.Request) (any, error) {
	trainingJobId, err := URLParamUUID(r, "training_job_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var job database.TrainingJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", trainingJobId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "training job not found")
		}
		slog.Error("error getting training job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving training job record")
	}

	return convertTrainingJob(job), nil
}
