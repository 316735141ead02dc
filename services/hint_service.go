package services

import (
	"context"

	"go.uber.org/zap"
)

type HintRevealed struct {
	TeamID     uint   `json:"teamId"`
	QuestionID uint   `json:"questionId"`
	Hint       string `json:"hint"`
	Used       int    `json:"used"`
	Left       int    `json:"left"`
	Max        int    `json:"max"`
}

// HintService grants hints against the per-run budget. One hint per (team, question).
type HintService struct {
	s *Session
}

func NewHintService(s *Session) *HintService {
	return &HintService{s: s}
}

// RequestHint reveals the current question's hint to the captain's team. Asking again for a
// question already hinted only re-sends the allocation state; an exhausted budget does nothing.
func (h *HintService) RequestHint(ctx context.Context, conn Conn) error {
	var (
		revealed *HintRevealed
		repeat   *HintsState
	)
	err := h.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		player, err := h.s.currentPlayer(st, conn)
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
		team, err := st.TeamByID(*player.TeamID)
		if err != nil {
			return err
		}
		q, err := st.QuestionAt(team.CurrentQuestion)
		if err != nil {
			return err
		}

		state, err := h.s.views.HintsState(st, &team.ID)
		if err != nil {
			return err
		}
		for _, id := range state.HintedQuestionIDs {
			if id == q.ID {
				repeat = state
				return nil
			}
		}
		if state.Left <= 0 {
			return nil
		}

		inserted, err := st.InsertHint(team.ID, q.ID)
		if err != nil {
			return err
		}
		if !inserted {
			repeat = state
			return nil
		}
		revealed = &HintRevealed{
			TeamID:     team.ID,
			QuestionID: q.ID,
			Hint:       q.Hint,
			Used:       state.Used + 1,
			Left:       state.Left - 1,
			Max:        state.Max,
		}
		return nil
	})
	if err != nil {
		return err
	}

	if repeat != nil {
		h.s.out.SendToConn(conn, "hints_state", repeat)
		return nil
	}
	if revealed == nil {
		h.s.log.Info("hint budget exhausted", zap.String("player", conn.PlayerName()))
		return nil
	}

	h.s.log.Info("hint revealed",
		zap.String("player", conn.PlayerName()), zap.Uint("team_id", revealed.TeamID), zap.Uint("question_id", revealed.QuestionID))
	h.s.views.SendToTeam(ctx, revealed.TeamID, "hint_revealed", revealed)
	h.s.views.PushAdmin(ctx)
	return nil
}

// SendState pushes the caller's team hint allocation. Players without a team see the full budget.
func (h *HintService) SendState(ctx context.Context, conn Conn) error {
	st := h.s.store.WithContext(ctx)
	player, err := h.s.currentPlayer(st, conn)
	if err != nil {
		return err
	}
	state, err := h.s.views.HintsState(st, player.TeamID)
	if err != nil {
		return err
	}
	h.s.out.SendToConn(conn, "hints_state", state)
	return nil
}
