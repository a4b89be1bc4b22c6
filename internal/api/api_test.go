package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	backend "stormlens-backend/internal/api"
	"stormlens-backend/internal/database"
	"stormlens-backend/internal/messaging"
	"stormlens-backend/internal/storage"
	"stormlens-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := database.NewDatabase("file:" + filepath.Join(t.TempDir(), "stormlens.db") + "?_foreign_keys=on&_busy_timeout=5000")
	require.NoError(t, err)

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func newTestRouter(t *testing.T, db *gorm.DB) (chi.Router, *messaging.InMemoryQueue, storage.ObjectStore) {
	t.Helper()

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	queue := messaging.NewInMemoryQueue()
	service := backend.NewBackendService(db, store, queue)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return router, queue, store
}

func receiveTask(t *testing.T, queue *messaging.InMemoryQueue) messaging.Task {
	t.Helper()
	select {
	case task := <-queue.Tasks():
		return task
	default:
		t.Fatal("expected a published task")
		return nil
	}
}

func completedDataset(id uuid.UUID, name string) *database.Dataset {
	return &database.Dataset{
		Id:             id,
		Name:           name,
		StorageType:    string(storage.LocalStorageType),
		StorageParams:  datatypes.JSON(`{"RootDir": "/tmp/tiles"}`),
		Status:         database.DatasetCompleted,
		CreationTime:   time.Now().UTC(),
		CompletionTime: sql.NullTime{Time: time.Now().UTC(), Valid: true},
	}
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t, createDB(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateDataset(t *testing.T) {
	db := createDB(t)
	router, queue, _ := newTestRouter(t, db)

	params, err := json.Marshal(storage.LocalConnectorParams{RootDir: t.TempDir()})
	require.NoError(t, err)

	payload := api.CreateDatasetRequest{
		Name:          "harvey-tiles",
		StorageType:   string(storage.LocalStorageType),
		StorageParams: params,
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/datasets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.CreateDatasetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotEqual(t, uuid.Nil, response.DatasetId)

	var ds database.Dataset
	require.NoError(t, db.First(&ds, "id = ?", response.DatasetId).Error)
	assert.Equal(t, "harvey-tiles", ds.Name)
	assert.Equal(t, database.DatasetQueued, ds.Status)

	task := receiveTask(t, queue)
	assert.Equal(t, messaging.ScanQueue, task.Type())

	var scan messaging.ScanTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &scan))
	assert.Equal(t, response.DatasetId, scan.DatasetId)
	assert.Equal(t, messaging.ShardScanTaskId, scan.TaskId)
}

func TestCreateDatasetRejectsBadRequests(t *testing.T) {
	db := createDB(t, completedDataset(uuid.New(), "taken"))
	router, _, _ := newTestRouter(t, db)

	post := func(payload api.CreateDatasetRequest) *httptest.ResponseRecorder {
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/datasets", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	params := json.RawMessage(`{"RootDir": "/tmp/tiles"}`)

	rec := post(api.CreateDatasetRequest{Name: "bad name!", StorageType: "local", StorageParams: params})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(api.CreateDatasetRequest{Name: "tiles", StorageType: "ftp", StorageParams: params})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(api.CreateDatasetRequest{Name: "tiles", StorageType: "local"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(api.CreateDatasetRequest{Name: "taken", StorageType: "local", StorageParams: params})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListDatasets(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	db := createDB(t,
		completedDataset(id1, "harvey"),
		&database.Dataset{
			Id:            id2,
			Name:          "michael",
			StorageType:   string(storage.LocalStorageType),
			StorageParams: datatypes.JSON(`{"RootDir": "/tmp/tiles"}`),
			Status:        database.DatasetScanning,
			CreationTime:  time.Now().UTC(),
		},
	)
	router, _, _ := newTestRouter(t, db)

	req := httptest.NewRequest(http.MethodGet, "/datasets", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response []api.Dataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)

	byId := map[uuid.UUID]api.Dataset{response[0].Id: response[0], response[1].Id: response[1]}
	assert.Equal(t, "harvey", byId[id1].Name)
	assert.Equal(t, database.DatasetCompleted, byId[id1].Status)
	assert.NotNil(t, byId[id1].CompletionTime)
	assert.Equal(t, database.DatasetScanning, byId[id2].Status)
	assert.Nil(t, byId[id2].CompletionTime)
}

func TestGetDataset(t *testing.T) {
	datasetId := uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.DatasetError{DatasetId: datasetId, ErrorId: uuid.New(), Error: "listing split dir: timeout", Timestamp: time.Now().UTC()},
	)
	router, _, _ := newTestRouter(t, db)

	req := httptest.NewRequest(http.MethodGet, "/datasets/"+datasetId.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.Dataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, datasetId, response.Id)
	assert.Equal(t, "harvey", response.Name)
	assert.Equal(t, []string{"listing split dir: timeout"}, response.Errors)

	req = httptest.NewRequest(http.MethodGet, "/datasets/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDataset(t *testing.T) {
	datasetId := uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.TileRecord{DatasetId: datasetId, Path: "test/damage/-95.0_30.5.jpeg", Split: "test", Label: "damaged", Lon: -95.0, Lat: 30.5},
	)
	router, _, _ := newTestRouter(t, db)

	req := httptest.NewRequest(http.MethodDelete, "/datasets/"+datasetId.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, db.Model(&database.Dataset{}).Where("id = ?", datasetId).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, db.Model(&database.TileRecord{}).Where("dataset_id = ?", datasetId).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetDatasetRecords(t *testing.T) {
	datasetId := uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.TileRecord{DatasetId: datasetId, Path: "test/damage/-95.0_30.5.jpeg", Split: "test", Label: "damaged", Lon: -95.0, Lat: 30.5},
		&database.TileRecord{DatasetId: datasetId, Path: "train_another/damage/-93.5_30.1.jpeg", Split: "train", Label: "damaged", Lon: -93.5, Lat: 30.1},
		&database.TileRecord{DatasetId: datasetId, Path: "train_another/no_damage/-93.6_30.2.jpeg", Split: "train", Label: "undamaged", Lon: -93.6, Lat: 30.2},
	)
	router, _, _ := newTestRouter(t, db)

	t.Run("FilterBySplit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/datasets/"+datasetId.String()+"/records?split=train", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var records []api.TileRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 2)
		assert.Equal(t, "train_another/damage/-93.5_30.1.jpeg", records[0].Path)
	})

	t.Run("FilterByLabel", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/datasets/"+datasetId.String()+"/records?split=train&label=undamaged", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var records []api.TileRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "undamaged", records[0].Label)
	})

	t.Run("Paged", func(t *testing.T) {
		var records []api.TileRecord

		for {
			url := fmt.Sprintf("/datasets/%s/records?limit=2&offset=%d", datasetId.String(), len(records))
			req := httptest.NewRequest(http.MethodGet, url, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			var page []api.TileRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.GreaterOrEqual(t, 2, len(page))
			records = append(records, page...)

			if len(page) == 0 {
				break
			}
		}

		assert.Len(t, records, 3)
	})

	t.Run("InvalidSplit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/datasets/"+datasetId.String()+"/records?split=holdout", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetDatasetSplits(t *testing.T) {
	datasetId := uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.SplitSummary{DatasetId: datasetId, Split: "train", DamagedCount: 12, UndamagedCount: 8, MinLon: -95.1, MaxLon: -93.5, MinLat: 29.8, MaxLat: 30.6},
		&database.SplitSummary{DatasetId: datasetId, Split: "test", DamagedCount: 3, UndamagedCount: 5, MinLon: -95.0, MaxLon: -94.0, MinLat: 30.0, MaxLat: 30.5},
	)
	router, _, _ := newTestRouter(t, db)

	req := httptest.NewRequest(http.MethodGet, "/datasets/"+datasetId.String()+"/splits", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response []api.SplitSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.ElementsMatch(t, []api.SplitSummary{
		{Split: "train", DamagedCount: 12, UndamagedCount: 8, MinLon: -95.1, MaxLon: -93.5, MinLat: 29.8, MaxLat: 30.6},
		{Split: "test", DamagedCount: 3, UndamagedCount: 5, MinLon: -95.0, MaxLon: -94.0, MinLat: 30.0, MaxLat: 30.5},
	}, response)
}

func TestCreateAnalysis(t *testing.T) {
	datasetId := uuid.New()
	db := createDB(t, completedDataset(datasetId, "harvey"))
	router, queue, _ := newTestRouter(t, db)

	payload := api.CreateAnalysisRequest{Split: "train", Query: `label = damaged`}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/datasets/"+datasetId.String()+"/analyses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.CreateAnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	var job database.AnalysisJob
	require.NoError(t, db.First(&job, "id = ?", response.AnalysisId).Error)
	assert.Equal(t, datasetId, job.DatasetId)
	assert.Equal(t, "train", job.Split)
	assert.Equal(t, database.JobQueued, job.Status)

	task := receiveTask(t, queue)
	assert.Equal(t, messaging.AnalysisQueue, task.Type())

	var analysis messaging.AnalysisPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &analysis))
	assert.Equal(t, response.AnalysisId, analysis.JobId)
}

func TestCreateAnalysisRejectsUnreadyDataset(t *testing.T) {
	datasetId := uuid.New()
	ds := completedDataset(datasetId, "harvey")
	ds.Status = database.DatasetScanning
	db := createDB(t, ds)
	router, _, _ := newTestRouter(t, db)

	body, err := json.Marshal(api.CreateAnalysisRequest{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/datasets/"+datasetId.String()+"/analyses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateAnalysisRejectsBadQuery(t *testing.T) {
	datasetId := uuid.New()
	db := createDB(t, completedDataset(datasetId, "harvey"))
	router, _, _ := newTestRouter(t, db)

	body, err := json.Marshal(api.CreateAnalysisRequest{Query: `label ~~ damaged`})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/datasets/"+datasetId.String()+"/analyses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAnalysisReport(t *testing.T) {
	datasetId, analysisId := uuid.New(), uuid.New()
	reportPath := fmt.Sprintf("analyses/%s/report.json", analysisId)

	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.AnalysisJob{
			Id:             analysisId,
			DatasetId:      datasetId,
			Status:         database.JobCompleted,
			CreationTime:   time.Now().UTC(),
			CompletionTime: sql.NullTime{Time: time.Now().UTC(), Valid: true},
			ReportPath:     reportPath,
		},
	)
	router, _, store := newTestRouter(t, db)

	report := `{"dataset_id": "` + datasetId.String() + `", "record_count": 5}`
	require.NoError(t, store.PutObject(context.Background(), reportPath, bytes.NewReader([]byte(report))))

	req := httptest.NewRequest(http.MethodGet, "/analyses/"+analysisId.String()+"/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, report, rec.Body.String())
}

func TestGetAnalysisReportNotReady(t *testing.T) {
	datasetId, analysisId := uuid.New(), uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.AnalysisJob{Id: analysisId, DatasetId: datasetId, Status: database.JobRunning, CreationTime: time.Now().UTC()},
	)
	router, _, _ := newTestRouter(t, db)

	req := httptest.NewRequest(http.MethodGet, "/analyses/"+analysisId.String()+"/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/analyses/"+analysisId.String(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var analysis api.Analysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Equal(t, database.JobRunning, analysis.Status)
}

func TestCreateClassifier(t *testing.T) {
	baseId := uuid.New()
	db := createDB(t,
		&database.Classifier{Id: baseId, Name: "base-cnn", Type: "onnx", Status: database.ClassifierTrained, CreationTime: time.Now().UTC()},
	)
	router, _, _ := newTestRouter(t, db)

	var response api.CreateClassifierResponse
	t.Run("Create", func(t *testing.T) {
		body, err := json.Marshal(api.CreateClassifierRequest{Name: "harvey-cnn", Type: "onnx", BaseClassifierId: &baseId})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/classifiers", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.NotEqual(t, uuid.Nil, response.ClassifierId)
	})

	t.Run("Get", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/classifiers/"+response.ClassifierId.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var clf api.Classifier
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clf))
		assert.Equal(t, "harvey-cnn", clf.Name)
		assert.Equal(t, "onnx", clf.Type)
		assert.Equal(t, database.ClassifierQueued, clf.Status)
		require.NotNil(t, clf.BaseClassifierId)
		assert.Equal(t, baseId, *clf.BaseClassifierId)
	})

	t.Run("List", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/classifiers", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var classifiers []api.Classifier
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &classifiers))
		assert.Len(t, classifiers, 2)
	})

	t.Run("UnknownType", func(t *testing.T) {
		body, err := json.Marshal(api.CreateClassifierRequest{Name: "other", Type: "xgboost"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/classifiers", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("DuplicateName", func(t *testing.T) {
		body, err := json.Marshal(api.CreateClassifierRequest{Name: "harvey-cnn", Type: "onnx"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/classifiers", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestCreateEvaluation(t *testing.T) {
	datasetId, classifierId := uuid.New(), uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.Classifier{Id: classifierId, Name: "harvey-cnn", Type: "onnx", Status: database.ClassifierTrained, CreationTime: time.Now().UTC()},
	)
	router, queue, _ := newTestRouter(t, db)

	body, err := json.Marshal(api.CreateEvaluationRequest{
		ClassifierId: classifierId,
		DatasetId:    datasetId,
		Split:        "test",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.CreateEvaluationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	var eval database.Evaluation
	require.NoError(t, db.First(&eval, "id = ?", response.EvaluationId).Error)
	assert.Equal(t, "test", eval.Split)
	assert.Equal(t, 64, eval.BatchSize)
	assert.Equal(t, database.JobQueued, eval.Status)

	task := receiveTask(t, queue)
	assert.Equal(t, messaging.EvaluationQueue, task.Type())

	var payload messaging.EvaluationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, response.EvaluationId, payload.EvaluationId)
}

func TestCreateEvaluationRejectsUntrainedClassifier(t *testing.T) {
	datasetId, classifierId := uuid.New(), uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.Classifier{Id: classifierId, Name: "harvey-cnn", Type: "onnx", Status: database.ClassifierTraining, CreationTime: time.Now().UTC()},
	)
	router, _, _ := newTestRouter(t, db)

	body, err := json.Marshal(api.CreateEvaluationRequest{ClassifierId: classifierId, DatasetId: datasetId})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateEvaluationMissingDataset(t *testing.T) {
	classifierId := uuid.New()
	db := createDB(t,
		&database.Classifier{Id: classifierId, Name: "harvey-cnn", Type: "onnx", Status: database.ClassifierTrained, CreationTime: time.Now().UTC()},
	)
	router, _, _ := newTestRouter(t, db)

	body, err := json.Marshal(api.CreateEvaluationRequest{ClassifierId: classifierId, DatasetId: uuid.New()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/evaluations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvaluationEvents(t *testing.T) {
	datasetId, classifierId, evaluationId := uuid.New(), uuid.New(), uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.Classifier{Id: classifierId, Name: "harvey-cnn", Type: "onnx", Status: database.ClassifierTrained, CreationTime: time.Now().UTC()},
		&database.Evaluation{
			Id:           evaluationId,
			DatasetId:    datasetId,
			ClassifierId: classifierId,
			Split:        "test",
			BatchSize:    64,
			Status:       database.JobQueued,
			CreationTime: time.Now().UTC(),
		},
	)
	router, _, _ := newTestRouter(t, db)

	server := httptest.NewServer(router)
	defer server.Close()

	res, err := http.Get(server.URL + "/evaluations/" + evaluationId.String() + "/events")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	decoder := json.NewDecoder(res.Body)

	var first backend.StreamMessage
	require.NoError(t, decoder.Decode(&first))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, database.JobQueued, first.Data.(map[string]any)["Status"])

	require.NoError(t, database.UpdateEvaluationStatus(context.Background(), db, evaluationId, database.JobCompleted))

	var last backend.StreamMessage
	for {
		var msg backend.StreamMessage
		if err := decoder.Decode(&msg); err != nil {
			break
		}
		last = msg
	}

	require.NotNil(t, last.Data)
	assert.Equal(t, database.JobCompleted, last.Data.(map[string]any)["Status"])
}

func TestEvaluationEventsUnknownEvaluation(t *testing.T) {
	router, _, _ := newTestRouter(t, createDB(t))

	req := httptest.NewRequest(http.MethodGet, "/evaluations/"+uuid.NewString()+"/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTrainingJob(t *testing.T) {
	datasetId, classifierId := uuid.New(), uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.Classifier{Id: classifierId, Name: "harvey-cnn", Type: "onnx", Status: database.ClassifierQueued, CreationTime: time.Now().UTC()},
	)
	router, queue, _ := newTestRouter(t, db)

	body, err := json.Marshal(api.CreateTrainingJobRequest{ClassifierId: classifierId, DatasetId: datasetId, Epochs: 5})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/training-jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.CreateTrainingJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	var job database.TrainingJob
	require.NoError(t, db.First(&job, "id = ?", response.TrainingJobId).Error)
	assert.Equal(t, 5, job.Epochs)
	assert.Equal(t, database.JobQueued, job.Status)

	task := receiveTask(t, queue)
	assert.Equal(t, messaging.TrainingQueue, task.Type())

	var payload messaging.TrainingPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, response.TrainingJobId, payload.JobId)
}

func TestCreateTrainingJobRejectsTrainedClassifier(t *testing.T) {
	datasetId, classifierId := uuid.New(), uuid.New()
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.Classifier{Id: classifierId, Name: "harvey-cnn", Type: "onnx", Status: database.ClassifierTrained, CreationTime: time.Now().UTC()},
	)
	router, _, _ := newTestRouter(t, db)

	body, err := json.Marshal(api.CreateTrainingJobRequest{ClassifierId: classifierId, DatasetId: datasetId})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/training-jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetTrainingJob(t *testing.T) {
	datasetId, classifierId, jobId := uuid.New(), uuid.New(), uuid.New()
	history := `[{"epoch": 1, "loss": 0.4, "accuracy": 0.8, "val_loss": 0.5, "val_accuracy": 0.75}]`
	db := createDB(t,
		completedDataset(datasetId, "harvey"),
		&database.Classifier{Id: classifierId, Name: "harvey-cnn", Type: "onnx", Status: database.ClassifierTrained, CreationTime: time.Now().UTC()},
		&database.TrainingJob{
			Id:             jobId,
			ClassifierId:   classifierId,
			DatasetId:      datasetId,
			Epochs:         1,
			Status:         database.JobCompleted,
			RemoteJobId:    "fit-123",
			CreationTime:   time.Now().UTC(),
			CompletionTime: sql.NullTime{Time: time.Now().UTC(), Valid: true},
			History:        datatypes.JSON(history),
		},
	)
	router, _, _ := newTestRouter(t, db)

	req := httptest.NewRequest(http.MethodGet, "/training-jobs/"+jobId.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var job api.TrainingJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobId, job.Id)
	assert.Equal(t, "fit-123", job.RemoteJobId)
	require.Len(t, job.History, 1)
	assert.InDelta(t, 0.75, job.History[0].ValAccuracy, 1e-9)
}
