package models

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate creates missing tables and columns and seeds the singleton rows.
// AutoMigrate only ever adds; existing rows and columns are left alone.
func Migrate(db *gorm.DB, defaultMaxHints int) error {
	err := db.AutoMigrate(
		&Player{},
		&Team{},
		&TeamProgress{},
		&Question{},
		&QuestionAnswer{},
		&Answer{},
		&Hint{},
		&JoinRequest{},
		&GameState{},
		&AdminConfig{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&GameState{ID: SingletonID}).Error; err != nil {
		return fmt.Errorf("seed game_state: %w", err)
	}

	// A map keeps a zero budget from being swapped for the column default.
	if err := db.Model(&AdminConfig{}).Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]interface{}{"id": SingletonID, "max_hints": defaultMaxHints}).Error; err != nil {
		return fmt.Errorf("seed admin_config: %w", err)
	}

	// Rows written before the position column existed are ordered by id.
	if err := db.Model(&Question{}).Where("position IS NULL OR position = 0").
		Update("position", gorm.Expr("id")).Error; err != nil {
		return fmt.Errorf("backfill question positions: %w", err)
	}

	return nil
}
