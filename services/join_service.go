package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"teamquiz/models"

	"go.uber.org/zap"
)

const (
	ReasonAlreadyInTeam = "already_in_team"
	ReasonTeamFull      = "team_full"
	ReasonRejected      = "rejected"
	ReasonStale         = "stale"
)

type JoinResult struct {
	PlayerName string `json:"playerName"`
	Accepted   bool   `json:"accepted"`
	TeamID     *uint  `json:"teamId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type JoinRequestNotice struct {
	TeamID     uint   `json:"teamId"`
	TeamName   string `json:"teamName"`
	PlayerName string `json:"playerName,omitempty"`
}

type JoinRequestItem struct {
	PlayerName string    `json:"player_name"`
	CreatedAt  time.Time `json:"created_at"`
}

type JoinRequestList struct {
	TeamID uint              `json:"teamId"`
	Items  []JoinRequestItem `json:"items"`
}

// JoinService runs the captain-approved join flow.
type JoinService struct {
	s *Session
}

func NewJoinService(s *Session) *JoinService {
	return &JoinService{s: s}
}

// RequestJoin queues an application to a team, or admits the team's former captain at once.
func (j *JoinService) RequestJoin(ctx context.Context, conn Conn, teamName string) error {
	teamName = strings.TrimSpace(teamName)
	if teamName == "" {
		return ErrNotFound
	}

	var (
		team     *models.Team
		reason   string
		admitted bool
		running  bool
	)
	err := j.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		applicant, err := j.s.currentPlayer(st, conn)
		if err != nil {
			return err
		}
		team, err = st.TeamByName(teamName)
		if err != nil {
			return err
		}
		if applicant.TeamID != nil {
			reason = ReasonAlreadyInTeam
			return nil
		}
		count, err := st.MemberCount(team.ID)
		if err != nil {
			return err
		}
		if count >= j.s.opts.MaxTeamSize {
			reason = ReasonTeamFull
			return nil
		}

		if team.CreatorName == "" || team.CreatorName != applicant.Name {
			return st.EnqueueJoinRequest(team.ID, applicant.Name)
		}

		// Returning former captain: no approval needed.
		captain, err := st.Captain(team.ID)
		if err != nil {
			return err
		}
		if err := st.AssignPlayer(applicant.ID, &team.ID, captain == nil); err != nil {
			return err
		}
		if err := st.DeleteJoinRequest(team.ID, applicant.Name); err != nil {
			return err
		}
		gs, err := st.GameState()
		if err != nil {
			return err
		}
		running = PhaseOf(gs) == PhaseRunning
		admitted = true
		return nil
	})
	if err != nil {
		return err
	}

	name := conn.PlayerName()
	if reason != "" {
		j.s.out.SendToConn(conn, "join_result", JoinResult{PlayerName: name, Accepted: false, Reason: reason})
		return nil
	}

	if !admitted {
		j.s.log.Info("join request queued", zap.String("player", name), zap.String("team", team.Name))
		j.s.out.SendToConn(conn, "join_request_ack", JoinRequestNotice{TeamID: team.ID, TeamName: team.Name})
		j.s.views.SendToTeam(ctx, team.ID, "join_request", JoinRequestNotice{TeamID: team.ID, TeamName: team.Name, PlayerName: name})
		return nil
	}

	j.s.log.Info("former captain readmitted", zap.String("player", name), zap.String("team", team.Name))
	j.s.views.PushTeams(ctx)
	j.s.views.SendToTeam(ctx, team.ID, "join_result", JoinResult{PlayerName: name, Accepted: true, TeamID: &team.ID})
	if running {
		j.s.views.SendQuestionsToPlayer(ctx, name)
		if state, err := j.s.views.HintsState(j.s.store.WithContext(ctx), &team.ID); err == nil {
			j.s.out.SendToConn(conn, "hints_state", state)
		}
	}
	j.s.views.PushAdmin(ctx)
	return nil
}

// captainTeam resolves the caller as a live captain and returns their team id.
func (j *JoinService) captainTeam(st *SessionStore, conn Conn) (uint, error) {
	captain, err := j.s.currentPlayer(st, conn)
	if err != nil {
		return 0, err
	}
	if !captain.IsCreator || captain.TeamID == nil {
		return 0, ErrNotPermitted
	}
	return *captain.TeamID, nil
}

func (j *JoinService) pending(st *SessionStore, teamID uint) (*JoinRequestList, error) {
	rows, err := st.JoinRequests(teamID)
	if err != nil {
		return nil, err
	}
	list := &JoinRequestList{TeamID: teamID, Items: make([]JoinRequestItem, 0, len(rows))}
	for _, r := range rows {
		list.Items = append(list.Items, JoinRequestItem{PlayerName: r.PlayerName, CreatedAt: r.CreatedAt})
	}
	return list, nil
}

// ListRequests sends the captain the pending requests for their own team.
func (j *JoinService) ListRequests(ctx context.Context, conn Conn) error {
	st := j.s.store.WithContext(ctx)
	teamID, err := j.captainTeam(st, conn)
	if err != nil {
		return err
	}
	list, err := j.pending(st, teamID)
	if err != nil {
		return err
	}
	j.s.out.SendToConn(conn, "join_requests", list)
	return nil
}

// Decide accepts or rejects a pending request. Acceptance re-checks that the applicant is
// still unassigned and the team still has room; a failed check drops the request.
func (j *JoinService) Decide(ctx context.Context, conn Conn, applicantName string, accept bool) error {
	if applicantName == "" {
		return ErrNotFound
	}

	var (
		teamID  uint
		reason  string
		running bool
	)
	err := j.s.store.WithContext(ctx).Transaction(func(st *SessionStore) error {
		var err error
		teamID, err = j.captainTeam(st, conn)
		if err != nil {
			return err
		}
		if _, err := st.JoinRequest(teamID, applicantName); err != nil {
			return err
		}
		if err := st.DeleteJoinRequest(teamID, applicantName); err != nil {
			return err
		}
		if !accept {
			reason = ReasonRejected
			return nil
		}

		applicant, err := st.PlayerByName(applicantName)
		if errors.Is(err, ErrNotFound) || (err == nil && applicant.TeamID != nil) {
			reason = ReasonStale
			return nil
		}
		if err != nil {
			return err
		}
		count, err := st.MemberCount(teamID)
		if err != nil {
			return err
		}
		if count >= j.s.opts.MaxTeamSize {
			reason = ReasonTeamFull
			return nil
		}
		if err := st.AssignPlayer(applicant.ID, &teamID, false); err != nil {
			return err
		}
		gs, err := st.GameState()
		if err != nil {
			return err
		}
		running = PhaseOf(gs) == PhaseRunning
		return nil
	})
	if err != nil {
		return err
	}

	if reason != "" {
		j.s.log.Info("join request declined",
			zap.String("applicant", applicantName), zap.Uint("team_id", teamID), zap.String("reason", reason))
		result := JoinResult{PlayerName: applicantName, Accepted: false, TeamID: &teamID, Reason: reason}
		j.s.views.SendToTeam(ctx, teamID, "join_result", result)
		j.s.out.SendToPlayer(applicantName, "join_result", result)
	} else {
		j.s.log.Info("join request accepted", zap.String("applicant", applicantName), zap.Uint("team_id", teamID))
		j.s.views.PushTeams(ctx)
		// The applicant is a member now, so the team fan-out reaches them too.
		j.s.views.SendToTeam(ctx, teamID, "join_result", JoinResult{PlayerName: applicantName, Accepted: true, TeamID: &teamID})
		if running {
			j.s.views.SendQuestionsToPlayer(ctx, applicantName)
		}
		j.s.views.PushAdmin(ctx)
	}

	if list, err := j.pending(j.s.store.WithContext(ctx), teamID); err == nil {
		j.s.out.SendToConn(conn, "join_requests", list)
	} else {
		j.s.log.Error("failed to list join requests", zap.Uint("team_id", teamID), zap.Error(err))
	}
	return nil
}
