package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"teamquiz/models"

	"go.uber.org/zap"
)

const maxNameLength = 64

func cleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// TeamService handles team creation, direct joins, leaving and admin deletion.
type TeamService struct {
	s *Session
}

func NewTeamService(s *Session) *TeamService {
	return &TeamService{s: s}
}

// CreateTeam creates a team with the caller as captain. Mid-run, the team starts on position 1.
func (t *TeamService) CreateTeam(ctx context.Context, conn Conn, rawName string) error {
	name, err := cleanName(rawName)
	if err != nil {
		return err
	}

	running := false
	err = t.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		player, err := t.s.currentPlayer(st, conn)
		if err != nil {
			return err
		}
		gs, err := st.GameState()
		if err != nil {
			return err
		}
		running = PhaseOf(gs) == PhaseRunning
		if running && player.TeamID != nil {
			return ErrGameFrozen
		}

		team := models.Team{Name: name, CreatorName: player.Name}
		now := t.s.timestamp()
		if running {
			team.CurrentQuestion = 1
			team.StartTime = &now
		}
		if err := st.CreateTeam(&team); err != nil {
			return err
		}
		if running {
			if err := st.RecordProgress(team.ID, 1, now); err != nil {
				return err
			}
		}
		if player.TeamID != nil {
			if err := t.detach(st, player); err != nil {
				return err
			}
		}
		return st.AssignPlayer(player.ID, &team.ID, true)
	})
	if err != nil {
		return err
	}

	t.s.log.Info("team created", zap.String("team", name), zap.String("captain", conn.PlayerName()))
	t.s.views.PushTeams(ctx)
	if running {
		t.s.views.SendQuestions(ctx, conn)
	}
	t.s.views.PushAdmin(ctx)
	return nil
}

// JoinTeam adds the caller to a team directly. The joiner takes the captaincy when the team
// has no live captain.
func (t *TeamService) JoinTeam(ctx context.Context, conn Conn, teamName string) error {
	running := false
	joined := false
	err := t.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		player, err := t.s.currentPlayer(st, conn)
		if err != nil {
			return err
		}
		team, err := st.TeamByName(strings.TrimSpace(teamName))
		if err != nil {
			return err
		}
		gs, err := st.GameState()
		if err != nil {
			return err
		}
		running = PhaseOf(gs) == PhaseRunning

		if player.TeamID != nil {
			if *player.TeamID == team.ID && !running {
				return nil
			}
			return ErrMustLeaveFirst
		}

		count, err := st.MemberCount(team.ID)
		if err != nil {
			return err
		}
		if count >= t.s.opts.MaxTeamSize {
			return ErrTeamFull
		}

		captain, err := st.Captain(team.ID)
		if err != nil {
			return err
		}
		if err := st.AssignPlayer(player.ID, &team.ID, captain == nil); err != nil {
			return err
		}
		if captain == nil {
			if err := st.SetCreatorName(team.ID, player.Name); err != nil {
				return err
			}
		}
		joined = true
		return nil
	})
	if err != nil {
		return err
	}
	if !joined {
		return nil
	}

	t.s.log.Info("player joined team", zap.String("player", conn.PlayerName()), zap.String("team", teamName))
	t.s.views.PushTeams(ctx)
	if running {
		t.s.views.SendQuestions(ctx, conn)
	}
	t.s.views.PushAdmin(ctx)
	return nil
}

// LeaveTeam removes the caller from their team. Captaincy is not handed to anyone else.
func (t *TeamService) LeaveTeam(ctx context.Context, conn Conn) error {
	left := false
	err := t.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		player, err := t.s.currentPlayer(st, conn)
		if err != nil {
			return err
		}
		gs, err := st.GameState()
		if err != nil {
			return err
		}
		if PhaseOf(gs) == PhaseRunning {
			return ErrGameFrozen
		}
		if player.TeamID == nil {
			return nil
		}
		left = true
		return t.detach(st, player)
	})
	if err != nil {
		return err
	}
	if !left {
		return nil
	}

	t.s.log.Info("player left team", zap.String("player", conn.PlayerName()))
	t.s.views.PushTeams(ctx)
	t.s.views.PushAdmin(ctx)
	return nil
}

// detach clears the player's membership. A departing captain stays on record as the team's
// last known captain; an emptied team is removed only under the delete-empty-teams policy.
func (t *TeamService) detach(st *SessionStore, player *models.Player) error {
	teamID := *player.TeamID
	if err := st.AssignPlayer(player.ID, nil, false); err != nil {
		return err
	}
	if player.IsCreator {
		if err := st.SetCreatorName(teamID, player.Name); err != nil {
			return err
		}
	}
	if !t.s.opts.DeleteEmptyTeams {
		return nil
	}
	count, err := st.MemberCount(teamID)
	if err != nil {
		return err
	}
	if count == 0 {
		t.s.log.Info("deleting empty team", zap.Uint("team_id", teamID))
		return st.DeleteTeam(teamID)
	}
	return nil
}

// DeleteTeam is admin-only: members are released and the team's logs removed.
func (t *TeamService) DeleteTeam(ctx context.Context, conn Conn, teamID uint) error {
	if !conn.IsAdmin() {
		return ErrNotPermitted
	}

	err := t.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		if _, err := st.TeamByID(teamID); err != nil {
			return err
		}
		return st.DeleteTeam(teamID)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			t.s.log.Error("failed to delete team", zap.Uint("team_id", teamID), zap.Error(err))
		}
		return err
	}

	t.s.log.Info("team deleted", zap.Uint("team_id", teamID))
	t.s.views.PushTeams(ctx)
	t.s.views.PushAdmin(ctx)
	return nil
}
