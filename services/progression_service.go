package services

import (
	"context"
	"strings"

	"teamquiz/models"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

type AnswerResult struct {
	Correct bool   `json:"correct"`
	Message string `json:"message,omitempty"`
}

type FirstFinish struct {
	TeamID     uint   `json:"teamId"`
	TeamName   string `json:"teamName"`
	PlayerName string `json:"playerName"`
}

// normalizeAnswer trims, case-folds and collapses whitespace runs to a single space.
func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// acceptedVariants lists every normalized answer the question accepts.
func acceptedVariants(q *models.Question) []string {
	var raw []string
	for _, row := range q.Answers {
		raw = append(raw, splitVariants(row.Answer)...)
	}
	if len(raw) == 0 && q.CorrectAnswer != nil {
		raw = splitVariants(*q.CorrectAnswer)
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if n := normalizeAnswer(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func matches(q *models.Question, given string) bool {
	for _, v := range acceptedVariants(q) {
		if v == given {
			return true
		}
	}
	return false
}

// ProgressionService checks captain submissions and moves team pointers forward.
type ProgressionService struct {
	s *Session
}

func NewProgressionService(s *Session) *ProgressionService {
	return &ProgressionService{s: s}
}

// SubmitAnswer checks the captain's answer against the team's current question. A correct
// answer advances the pointer by one and may finish the team; the first team to finish in a
// run is recorded exactly once.
func (p *ProgressionService) SubmitAnswer(ctx context.Context, conn Conn, raw string) error {
	given := normalizeAnswer(raw)
	if given == "" {
		return nil
	}

	var (
		team     *models.Team
		correct  bool
		finished bool
		won      bool
	)
	err := p.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		player, err := p.s.currentPlayer(st, conn)
		if err != nil {
			return err
		}
		if !player.IsCreator || player.TeamID == nil {
			return ErrNotPermitted
		}
		gs, err := st.GameState()
		if err != nil {
			return err
		}
		if PhaseOf(gs) != PhaseRunning {
			return ErrGameNotRunning
		}
		team, err = st.TeamByID(*player.TeamID)
		if err != nil {
			return err
		}
		total, err := st.QuestionCount()
		if err != nil {
			return err
		}
		if team.CurrentQuestion < 1 || team.CurrentQuestion > total {
			return ErrNotFound
		}
		q, err := st.QuestionAt(team.CurrentQuestion)
		if err != nil {
			return err
		}
		if !matches(q, given) {
			return nil
		}

		from := team.CurrentQuestion
		advanced, err := st.AdvanceTeam(team.ID, from)
		if err != nil {
			return err
		}
		if !advanced {
			return ErrStaleRequest
		}
		if err := st.AppendAnswer(team.ID, q.ID, strings.TrimSpace(raw)); err != nil {
			return err
		}
		correct = true

		now := p.s.timestamp()
		next := from + 1
		if err := st.RecordProgress(team.ID, next, now); err != nil {
			return err
		}
		if next <= total {
			return nil
		}
		finished = true
		if err := st.MarkTeamFinished(team.ID, now); err != nil {
			return err
		}
		won, err = st.RecordFirstFinish(team, player.Name, now)
		return err
	})
	if err != nil {
		return err
	}

	if !correct {
		p.s.out.SendToConn(conn, "answer_result", AnswerResult{Correct: false, Message: p.s.opts.WrongAnswerMessage})
		return nil
	}

	name := conn.PlayerName()
	p.s.log.Info("answer accepted",
		zap.String("player", name), zap.String("team", team.Name), zap.Int("position", team.CurrentQuestion))
	p.s.views.PushTeams(ctx)
	p.s.out.SendToConn(conn, "answer_result", AnswerResult{Correct: true})
	if finished {
		p.s.log.Info("team finished", zap.String("team", team.Name), zap.Bool("first", won))
	}
	if won {
		p.s.out.SendToRoom(AdminRoom, "first_finish_notified", FirstFinish{TeamID: team.ID, TeamName: team.Name, PlayerName: name})
	}
	p.s.views.PushAdmin(ctx)
	return nil
}
