package services

import (
	"context"
	"encoding/json"
	"strings"

	"teamquiz/models"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type AddQuestionRequest struct {
	ImageURL      *string  `json:"image_url"`
	Text          *string  `json:"text"`
	Hint          string   `json:"hint"`
	Answers       []string `json:"answers"`
	CorrectAnswer *string  `json:"correct_answer"`
}

type UpdateQuestionRequest struct {
	ID            uint           `json:"id"`
	ImageURL      OptionalString `json:"image_url"`
	Text          OptionalString `json:"text"`
	Hint          OptionalString `json:"hint"`
	Answers       *[]string      `json:"answers"`
	CorrectAnswer OptionalString `json:"correct_answer"`
}

const (
	MoveUp   = "up"
	MoveDown = "down"
)

// cleanAnswers trims and drops empty entries, keeping the first of any case-insensitive duplicates.
func cleanAnswers(raw []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := fold.String(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// column maps a cleared optional field onto NULL.
func column(s *string) interface{} {
	if s == nil {
		return gorm.Expr("NULL")
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	if v := strings.TrimSpace(*s); v != "" {
		return &v
	}
	return nil
}

// QuizService is the admin-side question authoring surface.
type QuizService struct {
	s *Session
}

func NewQuizService(s *Session) *QuizService {
	return &QuizService{s: s}
}

func (q *QuizService) AddQuestion(ctx context.Context, conn Conn, req *AddQuestionRequest) error {
	if !conn.IsAdmin() {
		return ErrNotPermitted
	}
	hint := strings.TrimSpace(req.Hint)
	if hint == "" {
		return ErrHintRequired
	}
	raw := req.Answers
	if raw == nil && req.CorrectAnswer != nil {
		raw = []string{*req.CorrectAnswer}
	}
	answers := cleanAnswers(raw)
	if len(answers) == 0 {
		return ErrAnswerRequired
	}

	var question models.Question
	err := q.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		pos, err := st.NextQuestionPosition()
		if err != nil {
			return err
		}
		question = models.Question{
			ImageURL:      nonEmpty(req.ImageURL),
			Text:          nonEmpty(req.Text),
			Hint:          hint,
			CorrectAnswer: &answers[0],
			Position:      pos,
		}
		if err := st.CreateQuestion(&question); err != nil {
			return err
		}
		return st.ReplaceQuestionAnswers(question.ID, answers)
	})
	if err != nil {
		return err
	}

	q.s.log.Info("question added", zap.Uint("question_id", question.ID), zap.Int("position", question.Position))
	q.publish(ctx)
	return nil
}

// UpdateQuestion applies the fields present in req. The hint must stay non-empty and a
// supplied answer list must keep at least one entry.
func (q *QuizService) UpdateQuestion(ctx context.Context, conn Conn, req *UpdateQuestionRequest) error {
	if !conn.IsAdmin() {
		return ErrNotPermitted
	}
	if req.ID == 0 {
		return ErrNotFound
	}

	var answers []string
	if req.Answers != nil {
		answers = cleanAnswers(*req.Answers)
	} else if req.CorrectAnswer.Set {
		var raw []string
		if req.CorrectAnswer.Value != nil {
			raw = []string{*req.CorrectAnswer.Value}
		}
		answers = cleanAnswers(raw)
	}
	replacing := req.Answers != nil || req.CorrectAnswer.Set
	if replacing && len(answers) == 0 {
		return ErrAnswerRequired
	}

	err := q.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		curr, err := st.QuestionByID(req.ID)
		if err != nil {
			return err
		}

		hint := curr.Hint
		if req.Hint.Set {
			hint = ""
			if req.Hint.Value != nil {
				hint = *req.Hint.Value
			}
		}
		if hint = strings.TrimSpace(hint); hint == "" {
			return ErrHintRequired
		}

		fields := map[string]interface{}{"hint": hint}
		if req.ImageURL.Set {
			fields["image_url"] = column(nonEmpty(req.ImageURL.Value))
		}
		if req.Text.Set {
			fields["text"] = column(nonEmpty(req.Text.Value))
		}
		if replacing {
			fields["correct_answer"] = answers[0]
		}
		if err := st.UpdateQuestion(curr.ID, fields); err != nil {
			return err
		}
		if replacing {
			return st.ReplaceQuestionAnswers(curr.ID, answers)
		}
		return nil
	})
	if err != nil {
		return err
	}

	q.s.log.Info("question updated", zap.Uint("question_id", req.ID))
	q.publish(ctx)
	return nil
}

// RemoveQuestion deletes a question and closes the gap in the position sequence.
func (q *QuizService) RemoveQuestion(ctx context.Context, conn Conn, id uint) error {
	if !conn.IsAdmin() {
		return ErrNotPermitted
	}

	err := q.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		if _, err := st.QuestionByID(id); err != nil {
			return err
		}
		if err := st.DeleteQuestion(id); err != nil {
			return err
		}
		return st.RenumberQuestions()
	})
	if err != nil {
		return err
	}

	q.s.log.Info("question removed", zap.Uint("question_id", id))
	q.publish(ctx)
	return nil
}

// MoveQuestion swaps a question with its neighbour in play order. Moving past either end
// leaves the order unchanged.
func (q *QuizService) MoveQuestion(ctx context.Context, conn Conn, id uint, direction string) error {
	if !conn.IsAdmin() {
		return ErrNotPermitted
	}
	if direction != MoveUp && direction != MoveDown {
		return ErrInvalidMoveRequest
	}

	err := q.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		if err := st.RenumberQuestions(); err != nil {
			return err
		}
		questions, err := st.Questions()
		if err != nil {
			return err
		}
		idx := -1
		for i := range questions {
			if questions[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNotFound
		}

		other := idx - 1
		if direction == MoveDown {
			other = idx + 1
		}
		if other < 0 || other >= len(questions) {
			return nil
		}
		a, b := questions[idx], questions[other]
		if err := st.SetQuestionPosition(a.ID, b.Position); err != nil {
			return err
		}
		return st.SetQuestionPosition(b.ID, a.Position)
	})
	if err != nil {
		return err
	}

	q.s.log.Info("question moved", zap.Uint("question_id", id), zap.String("direction", direction))
	q.publish(ctx)
	return nil
}

// publish fans a question mutation out to admins and players.
func (q *QuizService) publish(ctx context.Context) {
	view, err := q.s.views.AdminView(ctx)
	if err != nil {
		q.s.views.logPushError("questions", err)
	} else {
		q.s.out.SendToRoom(AdminRoom, "questions_update", view.Questions)
	}
	q.s.views.PushQuestions(ctx)
	q.s.views.PushAdmin(ctx)
}
