package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stormlens-backend/cmd"
	"stormlens-backend/internal/api"
	"stormlens-backend/internal/database"
	"stormlens-backend/internal/messaging"
	"stormlens-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type APIConfig struct {
	DatabaseURL        string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL        string `env:"RABBITMQ_URL,notEmpty,required"`
	S3EndpointURL      string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID      string `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey  string `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region           string `env:"AWS_REGION,notEmpty,required"`
	ArtifactBucketName string `env:"ARTIFACT_BUCKET_NAME" envDefault:"stormlens-artifacts"`
	BaseClassifierName string `env:"BASE_CLASSIFIER_NAME" envDefault:"base"`
	BaseClassifierDir  string `env:"BASE_CLASSIFIER_DIR"`
	APIPort            string `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

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
		log.Fatalf("Failed to create object store: %v", err)
	}

	if err := store.CreateBucket(context.Background()); err != nil {
		log.Fatalf("Failed to create artifact bucket: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	if cfg.BaseClassifierDir != "" {
		if err := cmd.InitializeBaseClassifier(context.Background(), db, store, cfg.BaseClassifierName, cfg.BaseClassifierDir); err != nil {
			log.Fatalf("Failed to initialize base classifier: %v", err)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	api.NewBackendService(db, store, publisher).AddRoutes(r)

	server := &http.Server{Addr: ":" + cfg.APIPort, Handler: r}

	go func() {
		log.Printf("API server listening on port %s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// In-flight requests get 30 seconds to drain before the listener is torn down.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped.")
}
