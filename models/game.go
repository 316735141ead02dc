package models

import (
	"time"
)

// SingletonID is the primary key of the single game_state and admin_config rows.
const SingletonID = 1

type GameState struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	Started             bool       `json:"started" gorm:"not null;default:false"`
	Ended               bool       `json:"ended" gorm:"not null;default:false"`
	FirstFinishTeamID   *uint      `json:"first_finish_team_id"`
	FirstFinishTeamName *string    `json:"first_finish_team_name"`
	FirstFinishPlayer   *string    `json:"first_finish_player"`
	FirstFinishAt       *time.Time `json:"first_finish_at"`
}

func (GameState) TableName() string {
	return "game_state"
}

type AdminConfig struct {
	ID       uint    `json:"id" gorm:"primaryKey"`
	CodeHash *string `json:"-"`
	MaxHints int     `json:"max_hints" gorm:"not null;default:3"`
}

func (AdminConfig) TableName() string {
	return "admin_config"
}
