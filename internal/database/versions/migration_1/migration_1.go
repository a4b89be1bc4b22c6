package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

// Adds the spatial extent of each split to the summary rows so that map
// views can frame a dataset without scanning tile records.
type SplitSummary struct {
	MinLon float64
	MaxLon float64
	MinLat float64
	MaxLat float64
}

func Migration(db *gorm.DB) error {
	for _, column := range []string{"min_lon", "max_lon", "min_lat", "max_lat"} {
		if err := db.Migrator().AddColumn(&SplitSummary{}, column); err != nil {
			return fmt.Errorf("error adding %s column: %w", column, err)
		}

		if err := db.Model(&SplitSummary{}).
			Where(column + " IS NULL").
			Update(column, 0).Error; err != nil {
			return fmt.Errorf("error setting default value for %s: %w", column, err)
		}
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	for _, column := range []string{"MinLon", "MaxLon", "MinLat", "MaxLat"} {
		if err := db.Migrator().DropColumn(&SplitSummary{}, column); err != nil {
			return fmt.Errorf("error dropping %s column: %w", column, err)
		}
	}

	return nil
}
