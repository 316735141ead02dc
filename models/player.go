package models

import (
	"time"
)

type Player struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"uniqueIndex;not null"`
	ExternalID *string   `json:"external_id"`
	TeamID     *uint     `json:"team_id" gorm:"index"`
	IsCreator  bool      `json:"is_creator" gorm:"not null;default:false"` // captaincy flag
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
