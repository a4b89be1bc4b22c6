package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Dataset struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name string `gorm:"uniqueIndex;not null"`

	StorageType   string         `gorm:"size:20;not null"`
	StorageParams datatypes.JSON `gorm:"type:jsonb;not null"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	CompletionTime sql.NullTime

	RecordCount    int64 `gorm:"default:0"`
	TotalTasks     int   `gorm:"default:0"`
	CompletedTasks int   `gorm:"default:0"`
	FailedTasks    int   `gorm:"default:0"`

	Records   []TileRecord   `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`
	Splits    []SplitSummary `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`
	ScanTasks []ScanTask     `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`

	Errors []DatasetError `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`
}

type TileRecord struct {
	DatasetId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Path      string    `gorm:"primaryKey;size:255"`

	Split string  `gorm:"size:20;not null;index"`
	Label string  `gorm:"size:20;not null"`
	Lon   float64 `gorm:"not null"`
	Lat   float64 `gorm:"not null"`
}

type SplitSummary struct {
	DatasetId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Split     string    `gorm:"primaryKey;size:20"`

	DamagedCount   int64 `gorm:"default:0"`
	UndamagedCount int64 `gorm:"default:0"`
}

type ScanTask struct {
	DatasetId uuid.UUID `gorm:"type:uuid;primaryKey"`
	TaskId    int       `gorm:"primaryKey"`
	Dataset   *Dataset  `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`

	SplitDir string `gorm:"not null"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime

	RecordCount int64 `gorm:"default:0"`
}

type Classifier struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	BaseClassifierId uuid.NullUUID `gorm:"type:uuid"`
	BaseClassifier   *Classifier   `gorm:"foreignKey:BaseClassifierId"`

	Name   string `gorm:"uniqueIndex;not null"`
	Type   string `gorm:"size:20;not null"`
	Status string `gorm:"size:20;not null"`

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

type Evaluation struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DatasetId uuid.UUID `gorm:"type:uuid;not null"`
	Dataset   *Dataset  `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`

	ClassifierId uuid.UUID   `gorm:"type:uuid;not null"`
	Classifier   *Classifier `gorm:"foreignKey:ClassifierId;constraint:OnDelete:CASCADE"`

	Split     string `gorm:"size:20;not null"`
	Query     string
	BatchSize int `gorm:"default:64"`

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	CompletionTime sql.NullTime

	Loss        float64
	Accuracy    float64
	SampleCount int64 `gorm:"default:0"`
}

type AnalysisJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DatasetId uuid.UUID `gorm:"type:uuid;not null"`
	Dataset   *Dataset  `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`

	Split string `gorm:"size:20"`
	Query string

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	CompletionTime sql.NullTime

	ReportPath string
}

type TrainingJob struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ClassifierId uuid.UUID   `gorm:"type:uuid;not null"`
	Classifier   *Classifier `gorm:"foreignKey:ClassifierId;constraint:OnDelete:CASCADE"`

	DatasetId uuid.UUID `gorm:"type:uuid;not null"`
	Dataset   *Dataset  `gorm:"foreignKey:DatasetId;constraint:OnDelete:CASCADE"`

	Epochs      int    `gorm:"default:1"`
	Status      string `gorm:"size:20;not null"`
	RemoteJobId string

	CreationTime   time.Time
	CompletionTime sql.NullTime

	History datatypes.JSON `gorm:"type:jsonb"`
}

type DatasetError struct {
	DatasetId uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}

func Migration(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Dataset{}, &TileRecord{}, &SplitSummary{}, &ScanTask{}, &Classifier{}, &Evaluation{}, &AnalysisJob{}, &TrainingJob{}, &DatasetError{},
	)
	if err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
