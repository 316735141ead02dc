package services

import (
	"context"

	"teamquiz/models"

	"go.uber.org/zap"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

func PhaseOf(gs *models.GameState) Phase {
	switch {
	case gs.Ended:
		return PhaseFinished
	case gs.Started:
		return PhaseRunning
	default:
		return PhaseIdle
	}
}

// GameService owns the idle → running → finished lifecycle.
type GameService struct {
	s *Session
}

func NewGameService(s *Session) *GameService {
	return &GameService{s: s}
}

func (g *GameService) Phase(ctx context.Context) (Phase, error) {
	gs, err := g.s.store.WithContext(ctx).GameState()
	if err != nil {
		return "", err
	}
	return PhaseOf(gs), nil
}

// Start begins a new run from idle or finished. Starting a running game does nothing.
func (g *GameService) Start(ctx context.Context, conn Conn) error {
	if !conn.IsAdmin() {
		return ErrNotPermitted
	}

	started := false
	err := g.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		gs, err := st.GameState()
		if err != nil {
			return err
		}
		if PhaseOf(gs) == PhaseRunning {
			return nil
		}
		started = true
		return st.ResetRun(g.s.timestamp())
	})
	if err != nil {
		return err
	}
	if !started {
		g.s.log.Info("start ignored, game already running")
		return nil
	}

	g.s.log.Info("game started", zap.String("conn", conn.ID()))
	g.s.out.Broadcast("game_started", nil)
	g.s.views.PushTeams(ctx)
	g.s.views.PushQuestions(ctx)
	g.s.views.PushAdmin(ctx)
	return nil
}

// End finishes a running game. Team pointers and logs are kept for review.
func (g *GameService) End(ctx context.Context, conn Conn) error {
	if !conn.IsAdmin() {
		return ErrNotPermitted
	}

	err := g.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		gs, err := st.GameState()
		if err != nil {
			return err
		}
		if PhaseOf(gs) != PhaseRunning {
			return ErrGameNotRunning
		}
		return st.EndRun()
	})
	if err != nil {
		return err
	}

	g.s.log.Info("game ended", zap.String("conn", conn.ID()))
	g.s.out.Broadcast("game_ended", nil)
	g.s.views.PushQuestions(ctx)
	g.s.views.PushAdmin(ctx)
	return nil
}
