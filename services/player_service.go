package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var externalIDPattern = regexp.MustCompile(`^(?:[5-9]|1[0-2])$`)

type PlayerInfo struct {
	IsCreator bool `json:"is_creator"`
}

// cleanExternalID accepts a missing id, or one matching the allowed grade range.
func cleanExternalID(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	id := strings.TrimSpace(*raw)
	if id == "" {
		return nil, nil
	}
	if !externalIDPattern.MatchString(id) {
		return nil, ErrInvalidExternalID
	}
	return &id, nil
}

// PlayerService binds connections to player identities.
type PlayerService struct {
	s *Session
}

func NewPlayerService(s *Session) *PlayerService {
	return &PlayerService{s: s}
}

// Join registers a new player under a unique name and binds it to conn.
func (p *PlayerService) Join(ctx context.Context, conn Conn, rawName string, rawExternalID *string) error {
	name, err := cleanName(rawName)
	if err != nil {
		return err
	}
	externalID, err := cleanExternalID(rawExternalID)
	if err != nil {
		return err
	}

	if _, err := p.s.store.WithContext(ctx).CreatePlayer(name, externalID); err != nil {
		return err
	}
	conn.SetPlayerName(name)
	p.s.log.Info("player joined", zap.String("player", name), zap.String("conn", conn.ID()))
	p.s.out.SendToConn(conn, "joined_as_player", name)
	p.s.views.PushTeams(ctx)
	p.s.views.PushAdmin(ctx)
	return nil
}

// Resume reattaches an existing player to a new connection and replays the public view to it.
func (p *PlayerService) Resume(ctx context.Context, conn Conn, rawName string) error {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return ErrNotFound
	}
	if _, err := p.s.store.WithContext(ctx).PlayerByName(name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResumeFailed
		}
		return err
	}

	conn.SetPlayerName(name)
	p.s.log.Info("player resumed", zap.String("player", name), zap.String("conn", conn.ID()))
	p.s.out.SendToConn(conn, "joined_as_player", name)
	p.s.views.SendQuestions(ctx, conn)
	p.s.views.SendTeams(ctx, conn)
	return nil
}

func (p *PlayerService) Info(ctx context.Context, conn Conn) error {
	player, err := p.s.currentPlayer(p.s.store.WithContext(ctx), conn)
	if err != nil {
		return err
	}
	p.s.out.SendToConn(conn, "player_info", PlayerInfo{IsCreator: player.IsCreator})
	return nil
}

// Questions replays the public question set and game state to conn.
func (p *PlayerService) Questions(ctx context.Context, conn Conn) error {
	if conn.PlayerName() == "" {
		return ErrNotPermitted
	}
	p.s.views.SendQuestions(ctx, conn)
	return nil
}
