package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var allQueues = []string{ScanQueue, AnalysisQueue, EvaluationQueue, TrainingQueue}

// dialRabbitMQ retries the initial connection so the service can come up
// while the broker is still starting.
func dialRabbitMQ(url string) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxConnectRetry; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			slog.Info("connected to rabbitmq")
			return conn, nil
		}
		lastErr = err
		slog.Warn("failed to connect to rabbitmq", "attempt", attempt, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}

	slog.Error("failed to connect to rabbitmq", "attempts", MaxConnectRetry, "error", lastErr)
	return nil, fmt.Errorf("worker failed to connect after %d attempts: %w", MaxConnectRetry, lastErr)
}

// openTaskChannel dials, opens a channel, and declares every task queue as
// durable. Publisher and receiver both declare, so either side can start
// first.
func openTaskChannel(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := dialRabbitMQ(url)
	if err != nil {
		return nil, nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		slog.Error("failed to open rabbitmq channel", "error", err)
		return nil, nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	for _, queue := range allQueues {
		if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to declare rabbitmq queue %s: %w", queue, err)
		}
	}

	return conn, channel, nil
}

type RabbitMQPublisher struct {
	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	url       string
	closeOnce sync.Once
}

var _ Publisher = (*RabbitMQPublisher)(nil)

func NewRabbitMQPublisher(rabbitMQURL string) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{url: rabbitMQURL}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) connect() error {
	conn, channel, err := openTaskChannel(p.url)
	if err != nil {
		return err
	}

	p.conn = conn
	p.channel = channel
	slog.Info("rabbitmq channel opened and queues declared")

	go p.watchConnection()
	return nil
}

// watchConnection blocks until the channel dies, then reconnects. Each
// successful connect starts a new watcher on the new channel.
func (p *RabbitMQPublisher) watchConnection() {
	notifyClose := make(chan *amqp.Error)
	p.channel.NotifyClose(notifyClose)

	err, ok := <-notifyClose
	if !ok { // no error delivery on graceful close
		slog.Info("rabbitmq connection closed", "error", err)
		return
	}

	slog.Warn("rabbit connection closed, attempting to reconnect", "error", err)

	p.mu.Lock() // the connection must not be used while reconnecting
	defer p.mu.Unlock()

	p.conn, p.channel = nil, nil
	for p.connect() != nil {
		time.Sleep(RetryDelay * 10)
	}
	slog.Info("successfully reconnected to rabbitmq.")
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queueName string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil || p.channel.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal payload", "queue", queueName, "error", err)
		return fmt.Errorf("failed to marshal %s payload: %w", queueName, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // survive broker restarts
		Body:         body,
	}
	if err := p.channel.PublishWithContext(ctx, "", queueName, false, false, msg); err != nil {
		slog.Error("failed to publish task, potential connection issue", "queue", queueName, "error", err)
		return fmt.Errorf("failed to publish %s: %w", queueName, err)
	}

	return nil
}

func (p *RabbitMQPublisher) PublishScanTask(ctx context.Context, payload ScanTaskPayload) error {
	return p.publish(ctx, ScanQueue, payload)
}

func (p *RabbitMQPublisher) PublishAnalysisTask(ctx context.Context, payload AnalysisPayload) error {
	return p.publish(ctx, AnalysisQueue, payload)
}

func (p *RabbitMQPublisher) PublishEvaluationTask(ctx context.Context, payload EvaluationPayload) error {
	return p.publish(ctx, EvaluationQueue, payload)
}

func (p *RabbitMQPublisher) PublishTrainingTask(ctx context.Context, payload TrainingPayload) error {
	return p.publish(ctx, TrainingQueue, payload)
}

func (p *RabbitMQPublisher) Close() {
	p.closeOnce.Do(func() {
		if err := p.conn.Close(); err != nil {
			slog.Error("error closing rabbitmq connection", "error", err)
		}
	})
}

type RabbitMQTask struct {
	d amqp.Delivery
}

func (t *RabbitMQTask) Type() string { return t.d.RoutingKey }

func (t *RabbitMQTask) Payload() []byte { return t.d.Body }

func (t *RabbitMQTask) Ack() error { return t.d.Ack(false) }

func (t *RabbitMQTask) Nack() error {
	// No requeue: a task that failed once fails again on the same input, and
	// requeueing would spin. Persistent failures belong in a dead letter queue.
	return t.d.Nack(false, false)
}

func (t *RabbitMQTask) Reject() error { return t.d.Reject(false) }

type RabbitMQReceiver struct {
	tasks chan Task
	url   string
	stop  chan struct{}
}

var _ Reciever = (*RabbitMQReceiver)(nil)

func NewRabbitMQReceiver(rabbitMQURL string) (*RabbitMQReceiver, error) {
	r := &RabbitMQReceiver{
		tasks: make(chan Task),
		url:   rabbitMQURL,
		stop:  make(chan struct{}),
	}

	if err := r.startConsumers(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQReceiver) startConsumers() error {
	conn, channel, err := openTaskChannel(r.url)
	if err != nil {
		return err
	}

	// Process one message at a time per worker instance.
	if err := channel.Qos(1, 0, false); err != nil {
		slog.Error("failed to set channel qos", "error", err)
		conn.Close()
		return fmt.Errorf("failed to set channel qos: %w", err)
	}

	for _, queue := range allQueues {
		msgs, err := channel.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			slog.Error("failed to consume from rabbitmq queue", "queue", queue, "error", err)
			conn.Close()
			return fmt.Errorf("failed to consume from rabbitmq queue %s: %w", queue, err)
		}

		go func() {
			for d := range msgs {
				r.tasks <- &RabbitMQTask{d: d}
			}
		}()
	}

	go r.watchConnection(conn, channel)
	return nil
}

func (r *RabbitMQReceiver) watchConnection(conn *amqp.Connection, channel *amqp.Channel) {
	notifyClose := make(chan *amqp.Error)
	channel.NotifyClose(notifyClose)

	select {
	case err, ok := <-notifyClose:
		if !ok { // no error delivery on graceful close
			slog.Info("rabbitmq connection closed", "error", err)
			return
		}

		slog.Warn("rabbit connection closed, attempting to reconnect", "error", err)
		for r.startConsumers() != nil {
			time.Sleep(RetryDelay * 10)
		}
		slog.Info("successfully restarted rabbitmq consumer")

	case <-r.stop:
		slog.Info("stopping rabbitmq consumer")
		if err := conn.Close(); err != nil {
			slog.Error("error closing rabbitmq conn", "error", err)
		}
	}
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	close(r.stop)
}
