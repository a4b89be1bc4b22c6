package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ScanQueue       = "scan_queue"
	AnalysisQueue   = "analysis_queue"
	EvaluationQueue = "evaluation_queue"
	TrainingQueue   = "training_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// ShardScanTaskId is the TaskId on the scan task published at dataset
// registration, before any per-split shards exist. The processor responds
// by listing split directories and fanning out one task per shard.
const ShardScanTaskId = -1

type ScanTaskPayload struct {
	DatasetId uuid.UUID
	TaskId    int
}

type AnalysisPayload struct {
	JobId uuid.UUID
}

type EvaluationPayload struct {
	EvaluationId uuid.UUID
}

type TrainingPayload struct {
	JobId uuid.UUID
}

type Publisher interface {
	PublishScanTask(ctx context.Context, payload ScanTaskPayload) error

	PublishAnalysisTask(ctx context.Context, payload AnalysisPayload) error

	PublishEvaluationTask(ctx context.Context, payload EvaluationPayload) error

	PublishTrainingTask(ctx context.Context, payload TrainingPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
