package database

import (
	"log"
	"log/slog"

	"stormlens-backend/internal/database/versions/migration_0"
	"stormlens-backend/internal/database/versions/migration_1"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

var migrations = []*gormigrate.Migration{
	{
		ID:      "0",
		Migrate: migration_0.Migration,
	},
	{
		ID:       "1",
		Migrate:  migration_1.Migration,
		Rollback: migration_1.Rollback,
	},
}

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, migrations)

	// InitSchema runs when no migration table exists yet: a clean database
	// gets the latest schema in one shot instead of replaying every version.
	migrator.InitSchema(func(txn *gorm.DB) error {
		log.Println("clean database detected, running full schema initialization")

		if name := db.Dialector.Name(); name == "sqlite" || name == "sqlite3" {
			// Sqlite leaves foreign key enforcement off unless asked.
			if err := txn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
				slog.Error("error enabling foreign keys for SQLite", "error", err)
			}
		}

		return db.AutoMigrate(
			&Dataset{},
			&TileRecord{},
			&SplitSummary{},
			&ScanTask{},
			&Classifier{},
			&Evaluation{},
			&AnalysisJob{},
			&TrainingJob{},
			&DatasetError{},
		)
	})

	return migrator
}
