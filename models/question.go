package models

import (
	"time"
)

type Question struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ImageURL      *string   `json:"image_url"`
	Text          *string   `json:"text"`
	Hint          string    `json:"hint"`
	CorrectAnswer *string   `json:"correct_answer"`
	Position      int       `json:"position" gorm:"not null;index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relationships
	Answers []QuestionAnswer `json:"answers,omitempty" gorm:"foreignKey:QuestionID"`
}
