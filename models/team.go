package models

import (
	"time"
)

type Team struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
	// CreatorName is the last known captain. The live captain is the member with IsCreator set.
	CreatorName     string     `json:"creator_name"`
	CurrentQuestion int        `json:"current_question" gorm:"not null;default:0"` // 1-based position, 0 = not started
	StartTime       *time.Time `json:"start_time"`
	FinishedAt      *time.Time `json:"finished_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Relationships
	Players []Player `json:"players,omitempty" gorm:"foreignKey:TeamID"`
}

type TeamProgress struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	TeamID           uint      `json:"team_id" gorm:"not null;index"`
	QuestionPosition int       `json:"question_position" gorm:"not null"`
	RecordedAt       time.Time `json:"recorded_at" gorm:"not null"`
}

func (TeamProgress) TableName() string {
	return "team_progress"
}
