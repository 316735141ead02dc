package models

// QuestionAnswer is one accepted answer for a question. A single row may carry several
// variants separated by commas or newlines.
type QuestionAnswer struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Answer     string `json:"answer" gorm:"not null"`
}
