package messaging

import (
	"context"
	"encoding/json"
)

type inMemoryTask struct {
	queue   string
	payload []byte
}

func (t *inMemoryTask) Type() string { return t.queue }

func (t *inMemoryTask) Payload() []byte { return t.payload }

func (t *inMemoryTask) Ack() error { return nil }

func (t *inMemoryTask) Nack() error { return nil }

func (t *inMemoryTask) Reject() error { return nil }

// InMemoryQueue is the single-process broker for local mode: one buffered
// channel serves as every queue, and tasks carry their queue name as the
// task type.
type InMemoryQueue struct {
	tasks chan Task
}

var _ Publisher = (*InMemoryQueue)(nil)
var _ Reciever = (*InMemoryQueue)(nil)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, 100),
	}
}

func (q *InMemoryQueue) enqueue(queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.tasks <- &inMemoryTask{queue: queue, payload: data}
	return nil
}

func (q *InMemoryQueue) PublishScanTask(ctx context.Context, payload ScanTaskPayload) error {
	return q.enqueue(ScanQueue, payload)
}

func (q *InMemoryQueue) PublishAnalysisTask(ctx context.Context, payload AnalysisPayload) error {
	return q.enqueue(AnalysisQueue, payload)
}

func (q *InMemoryQueue) PublishEvaluationTask(ctx context.Context, payload EvaluationPayload) error {
	return q.enqueue(EvaluationQueue, payload)
}

func (q *InMemoryQueue) PublishTrainingTask(ctx context.Context, payload TrainingPayload) error {
	return q.enqueue(TrainingQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

// Close tolerates being called twice because the same queue serves as both
// the publisher and the reciever in local mode.
func (q *InMemoryQueue) Close() {
	if q.tasks != nil {
		close(q.tasks)
		q.tasks = nil
	}
}
