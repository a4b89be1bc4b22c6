package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stormlens-backend/cmd"
	"stormlens-backend/internal/core"
	"stormlens-backend/internal/database"
	"stormlens-backend/internal/imaging"
	"stormlens-backend/internal/messaging"
	"stormlens-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	ort "github.com/yalue/onnxruntime_go"
)

type WorkerConfig struct {
	DatabaseURL        string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL        string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL      string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID      string `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey  string `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region           string `env:"AWS_REGION,notEmpty,required"`
	ArtifactBucketName string `env:"ARTIFACT_BUCKET_NAME" envDefault:"stormlens-artifacts"`
	TrainerURL         string `env:"TRAINER_URL"`
	ClassifierCacheDir string `env:"CLASSIFIER_CACHE_DIR" envDefault:"/app/classifiers"`
	OnnxRuntimeDylib   string `env:"ONNX_RUNTIME_DYLIB,notEmpty,required"`
	Concurrency        int    `env:"CONCURRENCY" envDefault:"4"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}
	defer func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Fatalf("error destroying onnx env: %v", err)
		}
	}()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewObjectStore(storage.ObjectStoreConfig{
		Type: storage.S3StorageType,
		S3: storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			Bucket:          cfg.ArtifactBucketName,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		},
	})
	if err != nil {
		log.Fatalf("Worker: Failed to create object store: %v", err)
	}

	if err := store.CreateBucket(context.Background()); err != nil {
		log.Fatalf("Worker: Failed to create artifact bucket: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	var trainer *core.TrainerClient
	if cfg.TrainerURL != "" {
		trainer = core.NewTrainerClient(cfg.TrainerURL)
	} else {
		slog.Warn("TRAINER_URL not set, training jobs and remote classifiers will fail")
	}

	processor := core.NewTaskProcessor(
		db,
		store,
		publisher,
		reciever,
		imaging.OpenCVDecoder{},
		trainer,
		cfg.ClassifierCacheDir,
		core.NewClassifierLoaders(trainer),
		cfg.Concurrency,
	)

	// Closing the receiver drains the task channel, which returns Start.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutdown signal received, stopping worker")
		processor.Stop()
	}()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	processor.Start()

	log.Println("Worker process stopped.")
}
