package models

import (
	"time"
)

// Answer is an accepted submission. Rejected attempts are never stored.
type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TeamID     uint      `json:"team_id" gorm:"not null;index"`
	QuestionID uint      `json:"question_id" gorm:"not null"`
	Answer     string    `json:"answer"`
	CreatedAt  time.Time `json:"created_at"`
}

type Hint struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TeamID     uint      `json:"team_id" gorm:"not null;uniqueIndex:idx_hints_team_question"`
	QuestionID uint      `json:"question_id" gorm:"not null;uniqueIndex:idx_hints_team_question"`
	CreatedAt  time.Time `json:"created_at"`
}

type JoinRequest struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TeamID     uint      `json:"team_id" gorm:"not null;uniqueIndex:idx_join_requests_team_player"`
	PlayerName string    `json:"player_name" gorm:"not null;uniqueIndex:idx_join_requests_team_player"`
	CreatedAt  time.Time `json:"created_at"`
}
