package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stormlens-backend/internal/pipeline"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Fit job states reported by the trainer service.
const (
	FitPending   = "pending"
	FitRunning   = "running"
	FitCompleted = "completed"
	FitFailed    = "failed"
)

type FitRequest struct {
	ClassifierId     uuid.UUID       `json:"classifier_id"`
	BaseClassifierId *uuid.UUID      `json:"base_classifier_id,omitempty"`
	DatasetId        uuid.UUID       `json:"dataset_id"`
	StorageType      string          `json:"storage_type"`
	StorageParams    json.RawMessage `json:"storage_params"`
	Splits           []string        `json:"splits"`
	Epochs           int             `json:"epochs"`
	BatchSize        int             `json:"batch_size"`
	Seeds            pipeline.Seeds  `json:"seeds"`
}

type startFitResponse struct {
	JobId string `json:"job_id"`
}

type EpochMetrics struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

type FitStatus struct {
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	History []EpochMetrics `json:"history,omitempty"`
}

type EvalRequest struct {
	ClassifierId uuid.UUID `json:"classifier_id"`
	Size         int       `json:"size"`
	Height       int       `json:"height"`
	Width        int       `json:"width"`
	Channels     int       `json:"channels"`
	Pixels       []float32 `json:"pixels"`
}

type EvalResponse struct {
	Probabilities []float32 `json:"probabilities"`
}

// TrainerClient talks to the external training service that owns model
// fitting; the backend never trains locally. On completion the trainer
// exports the artifacts (model.onnx plus classifier.json) to the shared
// artifact store under classifiers/<classifier id>/ before the fit job
// reports completed.
type TrainerClient struct {
	client *resty.Client
}

func NewTrainerClient(baseURL string) *TrainerClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(2 * time.Minute)

	return &TrainerClient{client: client}
}

func (c *TrainerClient) StartFit(ctx context.Context, req FitRequest) (string, error) {
	var fit startFitResponse

	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&fit).
		Post("/fit")
	if err != nil {
		return "", fmt.Errorf("error sending fit request: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("fit request failed with status %d: %s", res.StatusCode(), res.String())
	}
	if fit.JobId == "" {
		return "", errors.New("trainer did not return a job id")
	}

	return fit.JobId, nil
}

func (c *TrainerClient) GetFit(ctx context.Context, jobId string) (FitStatus, error) {
	var status FitStatus

	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&status).
		Get(fmt.Sprintf("/fit/%s", jobId))
	if err != nil {
		return FitStatus{}, fmt.Errorf("error getting fit status: %w", err)
	}
	if res.IsError() {
		return FitStatus{}, fmt.Errorf("fit status request failed with status %d: %s", res.StatusCode(), res.String())
	}

	return status, nil
}

func (c *TrainerClient) Evaluate(ctx context.Context, req EvalRequest) (EvalResponse, error) {
	var eval EvalResponse

	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&eval).
		Post("/evaluate")
	if err != nil {
		return EvalResponse{}, fmt.Errorf("error sending evaluate request: %w", err)
	}
	if res.IsError() {
		return EvalResponse{}, fmt.Errorf("evaluate request failed with status %d: %s", res.StatusCode(), res.String())
	}

	return eval, nil
}

// RemoteClassifier forwards batches to the trainer service instead of
// running a local session. Used for classifiers whose weights never leave
// the trainer.
type RemoteClassifier struct {
	trainer      *TrainerClient
	classifierId uuid.UUID
}

func NewRemoteClassifier(trainer *TrainerClient, classifierId uuid.UUID) *RemoteClassifier {
	return &RemoteClassifier{trainer: trainer, classifierId: classifierId}
}

func (m *RemoteClassifier) Predict(batch pipeline.Batch) ([]float32, error) {
	res, err := m.trainer.Evaluate(context.Background(), EvalRequest{
		ClassifierId: m.classifierId,
		Size:         batch.Size,
		Height:       batch.Height,
		Width:        batch.Width,
		Channels:     batch.Channels,
		Pixels:       batch.Pixels,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Probabilities) != batch.Size {
		return nil, fmt.Errorf("trainer returned %d probabilities for a batch of %d samples", len(res.Probabilities), batch.Size)
	}

	return res.Probabilities, nil
}

func (m *RemoteClassifier) Release() {}
