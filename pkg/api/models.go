package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Dataset struct {
	Id   uuid.UUID
	Name string

	StorageType string

	Status         string
	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`

	RecordCount    int64
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int

	Errors []string `json:"Errors,omitempty"`
}

type CreateDatasetRequest struct {
	Name string

	StorageType   string
	StorageParams json.RawMessage
}

type CreateDatasetResponse struct {
	DatasetId uuid.UUID
}

type TileRecord struct {
	Path  string
	Split string
	Label string
	Lon   float64
	Lat   float64
}

type SplitSummary struct {
	Split string

	DamagedCount   int64
	UndamagedCount int64

	MinLon float64
	MaxLon float64
	MinLat float64
	MaxLat float64
}

type CreateAnalysisRequest struct {
	Split string
	Query string
}

type CreateAnalysisResponse struct {
	AnalysisId uuid.UUID
}

type Analysis struct {
	Id        uuid.UUID
	DatasetId uuid.UUID

	Split string `json:"Split,omitempty"`
	Query string `json:"Query,omitempty"`

	Status         string
	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`
}

type CreateClassifierRequest struct {
	Name string
	Type string

	BaseClassifierId *uuid.UUID
}

type CreateClassifierResponse struct {
	ClassifierId uuid.UUID
}

type Classifier struct {
	Id               uuid.UUID
	BaseClassifierId *uuid.UUID `json:"BaseClassifierId,omitempty"`

	Name   string
	Type   string
	Status string

	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`
}

type CreateEvaluationRequest struct {
	ClassifierId uuid.UUID
	DatasetId    uuid.UUID

	Split     string
	Query     string
	BatchSize int
}

type CreateEvaluationResponse struct {
	EvaluationId uuid.UUID
}

type Evaluation struct {
	Id           uuid.UUID
	DatasetId    uuid.UUID
	ClassifierId uuid.UUID

	Split     string `json:"Split,omitempty"`
	Query     string `json:"Query,omitempty"`
	BatchSize int

	Status         string
	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`

	Loss        float64
	Accuracy    float64
	SampleCount int64
}

type CreateTrainingJobRequest struct {
	ClassifierId uuid.UUID
	DatasetId    uuid.UUID

	Epochs int
}

type CreateTrainingJobResponse struct {
	TrainingJobId uuid.UUID
}

// EpochMetrics mirrors the history schema reported by the trainer service.
type EpochMetrics struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

type TrainingJob struct {
	Id           uuid.UUID
	ClassifierId uuid.UUID
	DatasetId    uuid.UUID

	Epochs      int
	Status      string
	RemoteJobId string `json:"RemoteJobId,omitempty"`

	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`

	History []EpochMetrics `json:"History,omitempty"`
}
