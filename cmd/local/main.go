package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stormlens-backend/cmd"
	"stormlens-backend/internal/api"
	"stormlens-backend/internal/core"
	"stormlens-backend/internal/database"
	"stormlens-backend/internal/imaging"
	"stormlens-backend/internal/messaging"
	"stormlens-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ort "github.com/yalue/onnxruntime_go"
	"gorm.io/gorm"
)

type Config struct {
	Root              string `env:"ROOT" envDefault:"./stormlens"`
	Port              int    `env:"PORT" envDefault:"3001"`
	TrainerURL        string `env:"TRAINER_URL" envDefault:""`
	BaseClassifierDir string `env:"BASE_CLASSIFIER_DIR" envDefault:""`
	OnnxRuntimeDylib  string `env:"ONNX_RUNTIME_DYLIB"`
	Concurrency       int    `env:"CONCURRENCY" envDefault:"4"`
}

const baseClassifierName = "base"

// initOnnxRuntime boots the onnxruntime environment from the configured
// shared library. The returned func tears it down.
func initOnnxRuntime(dylib string) func() {
	if dylib == "" {
		log.Fatalf("ONNX_RUNTIME_DYLIB must be set")
	}
	ort.SetSharedLibraryPath(dylib)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}

	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Fatalf("error destroying onnx env: %v", err)
		}
	}
}

// initLogging mirrors log output to ROOT/backend.log in addition to stderr.
func initLogging(root string) *os.File {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	log.SetOutput(io.MultiWriter(f, os.Stderr))

	return f
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "stormlens.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := database.NewDatabase("file:" + path + "?_foreign_keys=on")
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	return db
}

// createQueue republishes every queued task left over from a previous run.
// The in-memory queue does not survive restarts, but the task rows do.
func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	ctx := context.Background()
	queue := messaging.NewInMemoryQueue()

	var datasets []database.Dataset
	if err := db.Where("status = ?", database.DatasetQueued).Find(&datasets).Error; err != nil {
		log.Fatalf("Failed to fetch datasets from database: %v", err)
	}
	for _, ds := range datasets {
		if err := queue.PublishScanTask(ctx, messaging.ScanTaskPayload{
			DatasetId: ds.Id,
			TaskId:    messaging.ShardScanTaskId,
		}); err != nil {
			log.Fatalf("Failed to publish scan task: %v", err)
		}
	}

	var scanTasks []database.ScanTask
	if err := db.Where("status = ?", database.JobQueued).Find(&scanTasks).Error; err != nil {
		log.Fatalf("Failed to fetch scan tasks from database: %v", err)
	}
	for _, task := range scanTasks {
		if err := queue.PublishScanTask(ctx, messaging.ScanTaskPayload{
			DatasetId: task.DatasetId,
			TaskId:    task.TaskId,
		}); err != nil {
			log.Fatalf("Failed to publish scan task: %v", err)
		}
	}

	var analyses []database.AnalysisJob
	if err := db.Where("status = ?", database.JobQueued).Find(&analyses).Error; err != nil {
		log.Fatalf("Failed to fetch analysis jobs from database: %v", err)
	}
	for _, job := range analyses {
		if err := queue.PublishAnalysisTask(ctx, messaging.AnalysisPayload{JobId: job.Id}); err != nil {
			log.Fatalf("Failed to publish analysis task: %v", err)
		}
	}

	var evaluations []database.Evaluation
	if err := db.Where("status = ?", database.JobQueued).Find(&evaluations).Error; err != nil {
		log.Fatalf("Failed to fetch evaluations from database: %v", err)
	}
	for _, eval := range evaluations {
		if err := queue.PublishEvaluationTask(ctx, messaging.EvaluationPayload{EvaluationId: eval.Id}); err != nil {
			log.Fatalf("Failed to publish evaluation task: %v", err)
		}
	}

	var trainingJobs []database.TrainingJob
	if err := db.Where("status = ?", database.JobQueued).Find(&trainingJobs).Error; err != nil {
		log.Fatalf("Failed to fetch training jobs from database: %v", err)
	}
	for _, job := range trainingJobs {
		if err := queue.PublishTrainingTask(ctx, messaging.TrainingPayload{JobId: job.Id}); err != nil {
			log.Fatalf("Failed to publish training task: %v", err)
		}
	}

	return queue
}

func createServer(db *gorm.DB, store storage.ObjectStore, queue messaging.Publisher, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // TODO: make this an env var
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, store, queue)
	r.Route("/api/v1", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: r}
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	defer initOnnxRuntime(cfg.OnnxRuntimeDylib)()

	logFile := initLogging(cfg.Root)
	defer logFile.Close()

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "trainer_url", cfg.TrainerURL)

	db := createDatabase(cfg.Root)

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create local object store: %v", err)
	}
	if err := store.CreateBucket(context.Background()); err != nil {
		log.Fatalf("error creating storage directory: %v", err)
	}

	if cfg.BaseClassifierDir != "" {
		if err := cmd.InitializeBaseClassifier(context.Background(), db, store, baseClassifierName, cfg.BaseClassifierDir); err != nil {
			log.Fatalf("Failed to initialize base classifier: %v", err)
		}
	}

	queue := createQueue(db)

	var trainer *core.TrainerClient
	if cfg.TrainerURL != "" {
		trainer = core.NewTrainerClient(cfg.TrainerURL)
	} else {
		slog.Warn("TRAINER_URL not set, training jobs and remote classifiers will fail")
	}

	worker := core.NewTaskProcessor(
		db,
		store,
		queue,
		queue,
		imaging.OpenCVDecoder{},
		trainer,
		filepath.Join(cfg.Root, "classifiers"),
		core.NewClassifierLoaders(trainer),
		cfg.Concurrency,
	)

	server := createServer(db, store, queue, cfg.Port)

	slog.Info("starting worker")
	go worker.Start()

	go func() {
		slog.Info("server started", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slog.Info("shutting down worker")
	worker.Stop()

	slog.Info("server stopped")
}
