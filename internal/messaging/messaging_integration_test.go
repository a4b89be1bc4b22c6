//go:build integration
// +build integration

// The build tag 'integration' allows separating integration tests from unit tests.
// Run unit tests with: go test ./...
// Run integration tests with: go test -tags=integration ./...

package messaging

import (
	"context"
	"encoding/json"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func startRabbitMQ(t *testing.T, ctx context.Context) string {
	log.Println("Setting up RabbitMQ container...")
	rabbitmqContainer, err := rabbitmq.RunContainer(ctx,
		testcontainers.WithImage("rabbitmq:3.11-management"),
	)
	require.NoError(t, err, "Failed to start RabbitMQ container")
	t.Cleanup(func() {
		log.Println("Terminating RabbitMQ container...")
		if err := rabbitmqContainer.Terminate(context.Background()); err != nil {
			log.Printf("Warning: failed to terminate RabbitMQ container: %v", err)
		}
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")
	log.Printf("RabbitMQ container ready at: %s", connStr)

	return connStr
}

func TestPublishConsumeScanTask(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := startRabbitMQ(t, ctx)

	publisher, err := NewRabbitMQPublisher(connStr)
	require.NoError(t, err, "Failed to create publisher")
	defer publisher.Close()

	reciever, err := NewRabbitMQReceiver(connStr)
	require.NoError(t, err, "Failed to create receiver")
	defer reciever.Close()

	sent := ScanTaskPayload{DatasetId: uuid.New(), TaskId: 3}
	require.NoError(t, publisher.PublishScanTask(ctx, sent), "Failed to publish scan task")

	select {
	case task, ok := <-reciever.Tasks():
		require.True(t, ok, "Task channel closed unexpectedly")
		assert.Equal(t, ScanQueue, task.Type())

		var got ScanTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &got))
		assert.Equal(t, sent, got)

		require.NoError(t, task.Ack())

	case <-ctx.Done():
		t.Fatal("Test timed out waiting for message delivery")
	}
}

func TestTaskTypeFollowsQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := startRabbitMQ(t, ctx)

	publisher, err := NewRabbitMQPublisher(connStr)
	require.NoError(t, err, "Failed to create publisher")
	defer publisher.Close()

	reciever, err := NewRabbitMQReceiver(connStr)
	require.NoError(t, err, "Failed to create receiver")
	defer reciever.Close()

	analysisId, trainingId := uuid.New(), uuid.New()
	require.NoError(t, publisher.PublishAnalysisTask(ctx, AnalysisPayload{JobId: analysisId}))
	require.NoError(t, publisher.PublishTrainingTask(ctx, TrainingPayload{JobId: trainingId}))

	// Every queue feeds the same task channel, so the two tasks can arrive
	// in either order.
	byType := make(map[string][]byte, 2)
	for len(byType) < 2 {
		select {
		case task, ok := <-reciever.Tasks():
			require.True(t, ok, "Task channel closed unexpectedly")
			byType[task.Type()] = task.Payload()
			require.NoError(t, task.Ack())
		case <-ctx.Done():
			t.Fatal("Test timed out waiting for message delivery")
		}
	}

	var analysis AnalysisPayload
	require.NoError(t, json.Unmarshal(byType[AnalysisQueue], &analysis))
	assert.Equal(t, analysisId, analysis.JobId)

	var training TrainingPayload
	require.NoError(t, json.Unmarshal(byType[TrainingQueue], &training))
	assert.Equal(t, trainingId, training.JobId)
}
