package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AdminLoggedIn struct {
	Token string `json:"token"`
}

// AdminService authenticates admin connections. The passphrase is unset until the first
// login establishes it; that transition is a single conditional update.
type AdminService struct {
	s    *Session
	auth *AuthService
}

func NewAdminService(s *Session, auth *AuthService) *AdminService {
	return &AdminService{s: s, auth: auth}
}

// codeDigest pre-hashes the passphrase so codes longer than bcrypt's 72-byte limit are
// neither rejected nor truncated.
func codeDigest(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return []byte(hex.EncodeToString(sum[:]))
}

// Login sets the admin code on first use and compares against it afterwards.
func (a *AdminService) Login(ctx context.Context, conn Conn, code string) error {
	if code == "" {
		return ErrAdminCodeRequired
	}

	st := a.s.store.WithContext(ctx)
	cfg, err := st.AdminConfig()
	if err != nil {
		return err
	}

	if cfg.CodeHash == nil {
		hash, err := bcrypt.GenerateFromPassword(codeDigest(code), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin code: %w", err)
		}
		set, err := st.SetAdminCodeOnce(string(hash))
		if err != nil {
			return err
		}
		if set {
			a.s.log.Info("admin code established", zap.String("conn", conn.ID()))
			return a.admit(ctx, conn, string(hash))
		}
		// Lost the bootstrap race; compare against the code that won.
		if cfg, err = st.AdminConfig(); err != nil {
			return err
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*cfg.CodeHash), codeDigest(code)); err != nil {
		a.s.log.Warn("admin login rejected", zap.String("conn", conn.ID()))
		return ErrWrongAdminCode
	}
	return a.admit(ctx, conn, *cfg.CodeHash)
}

// VerifyToken checks a token issued by Login against the admin code currently on record.
// Before any code is established no token is valid.
func (a *AdminService) VerifyToken(ctx context.Context, token string) (*AdminClaims, error) {
	cfg, err := a.s.store.WithContext(ctx).AdminConfig()
	if err != nil {
		return nil, err
	}
	if cfg.CodeHash == nil {
		return nil, ErrInvalidToken
	}
	return a.auth.VerifyAdminToken(token, *cfg.CodeHash)
}

// Resume re-authenticates a reconnecting admin from a token issued by Login.
func (a *AdminService) Resume(ctx context.Context, conn Conn, token string) error {
	cfg, err := a.s.store.WithContext(ctx).AdminConfig()
	if err != nil {
		return err
	}
	if cfg.CodeHash == nil {
		return ErrInvalidToken
	}
	if _, err := a.auth.VerifyAdminToken(token, *cfg.CodeHash); err != nil {
		a.s.log.Warn("admin resume rejected", zap.String("conn", conn.ID()))
		return err
	}
	return a.admit(ctx, conn, *cfg.CodeHash)
}

func (a *AdminService) admit(ctx context.Context, conn Conn, codeHash string) error {
	token, err := a.auth.IssueAdminToken(conn.ID(), codeHash)
	if err != nil {
		return err
	}
	conn.SetAdmin(true)
	a.s.out.JoinRoom(conn, AdminRoom)
	a.s.log.Info("admin authenticated", zap.String("conn", conn.ID()))
	a.s.out.SendToConn(conn, "admin_logged_in", AdminLoggedIn{Token: token})
	a.s.views.SendAdmin(ctx, conn)
	return nil
}

// SetMaxHints changes the per-run hint budget. Values are floored; negatives are rejected.
func (a *AdminService) SetMaxHints(ctx context.Context, conn Conn, n float64) error {
	if !conn.IsAdmin() {
		return ErrNotPermitted
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return ErrInvalidHintBudget
	}
	max := int(math.Floor(n))
	if err := a.s.store.WithContext(ctx).SetMaxHints(max); err != nil {
		return fmt.Errorf("set max hints: %w", err)
	}
	a.s.log.Info("hint budget changed", zap.Int("max_hints", max))
	a.s.views.PushAdmin(ctx)
	return nil
}

// IsAdminError reports whether err belongs on the admin_error channel.
func IsAdminError(err error) bool {
	return errors.Is(err, ErrAdminCodeRequired) ||
		errors.Is(err, ErrWrongAdminCode) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrHintRequired) ||
		errors.Is(err, ErrAnswerRequired) ||
		errors.Is(err, ErrInvalidMoveRequest) ||
		errors.Is(err, ErrInvalidHintBudget)
}
