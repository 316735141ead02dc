package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"teamquiz/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionStore holds every read and write over the persisted session tables.
// A store obtained inside Transaction is bound to that transaction.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (st *SessionStore) WithContext(ctx context.Context) *SessionStore {
	return &SessionStore{db: st.db.WithContext(ctx)}
}

// Transaction runs fn atomically. fn must only touch the store it is handed.
func (st *SessionStore) Transaction(fn func(tx *SessionStore) error) error {
	return st.db.Transaction(func(tx *gorm.DB) error {
		return fn(&SessionStore{db: tx})
	})
}

func findOne(q *gorm.DB, dest interface{}) error {
	res := q.Limit(1).Find(dest)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Game state and admin config

func (st *SessionStore) GameState() (*models.GameState, error) {
	var gs models.GameState
	if err := findOne(st.db.Where("id = ?", models.SingletonID), &gs); err != nil {
		return nil, fmt.Errorf("load game state: %w", err)
	}
	return &gs, nil
}

func (st *SessionStore) AdminConfig() (*models.AdminConfig, error) {
	var cfg models.AdminConfig
	if err := findOne(st.db.Where("id = ?", models.SingletonID), &cfg); err != nil {
		return nil, fmt.Errorf("load admin config: %w", err)
	}
	return &cfg, nil
}

func (st *SessionStore) MaxHints() (int, error) {
	cfg, err := st.AdminConfig()
	if err != nil {
		return 0, err
	}
	return cfg.MaxHints, nil
}

// Players

func (st *SessionStore) PlayerByName(name string) (*models.Player, error) {
	var p models.Player
	if err := findOne(st.db.Where("name = ?", name), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (st *SessionStore) CreatePlayer(name string, externalID *string) (*models.Player, error) {
	if _, err := st.PlayerByName(name); err == nil {
		return nil, ErrNameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	p := models.Player{Name: name, ExternalID: externalID}
	if err := st.db.Create(&p).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("create player: %w", err)
	}
	return &p, nil
}

// AssignPlayer moves a player onto teamID (nil clears membership) with the given captaincy.
func (st *SessionStore) AssignPlayer(playerID uint, teamID *uint, captain bool) error {
	updates := map[string]interface{}{"is_creator": captain}
	if teamID == nil {
		updates["team_id"] = gorm.Expr("NULL")
	} else {
		updates["team_id"] = *teamID
	}
	if err := st.db.Model(&models.Player{}).Where("id = ?", playerID).Updates(updates).Error; err != nil {
		return fmt.Errorf("assign player %d: %w", playerID, err)
	}
	return nil
}

func (st *SessionStore) Players() ([]models.Player, error) {
	var players []models.Player
	if err := st.db.Order("LOWER(name) ASC").Find(&players).Error; err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

// Teams

func (st *SessionStore) TeamByName(name string) (*models.Team, error) {
	var t models.Team
	if err := findOne(st.db.Where("name = ?", name), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (st *SessionStore) TeamByID(id uint) (*models.Team, error) {
	var t models.Team
	if err := findOne(st.db.Where("id = ?", id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (st *SessionStore) CreateTeam(team *models.Team) error {
	if _, err := st.TeamByName(team.Name); err == nil {
		return ErrTeamNameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := st.db.Create(team).Error; err != nil {
		if isDuplicate(err) {
			return ErrTeamNameTaken
		}
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

func (st *SessionStore) SetCreatorName(teamID uint, name string) error {
	return st.db.Model(&models.Team{}).Where("id = ?", teamID).Update("creator_name", name).Error
}

func (st *SessionStore) MemberCount(teamID uint) (int, error) {
	var n int64
	if err := st.db.Model(&models.Player{}).Where("team_id = ?", teamID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count members of team %d: %w", teamID, err)
	}
	return int(n), nil
}

func (st *SessionStore) Members(teamID uint) ([]models.Player, error) {
	var players []models.Player
	if err := st.db.Where("team_id = ?", teamID).Order("id ASC").Find(&players).Error; err != nil {
		return nil, fmt.Errorf("list members of team %d: %w", teamID, err)
	}
	return players, nil
}

// Captain returns the member holding the captaincy flag, or nil when the team has none.
func (st *SessionStore) Captain(teamID uint) (*models.Player, error) {
	var p models.Player
	err := findOne(st.db.Where("team_id = ? AND is_creator = ?", teamID, true).Order("id ASC"), &p)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (st *SessionStore) Teams() ([]models.Team, error) {
	var teams []models.Team
	err := st.db.
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("players.id ASC")
		}).
		Order("id ASC").
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// AdvanceTeam moves the team pointer from `from` to from+1. It reports false when the pointer
// had already moved, so two submissions for the same position cannot both advance it.
func (st *SessionStore) AdvanceTeam(teamID uint, from int) (bool, error) {
	res := st.db.Model(&models.Team{}).
		Where("id = ? AND current_question = ?", teamID, from).
		Update("current_question", gorm.Expr("current_question + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("advance team %d: %w", teamID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (st *SessionStore) MarkTeamFinished(teamID uint, at time.Time) error {
	return st.db.Model(&models.Team{}).
		Where("id = ? AND finished_at IS NULL", teamID).
		Update("finished_at", at).Error
}

// DeleteTeam clears memberships and removes the team together with its logs.
func (st *SessionStore) DeleteTeam(teamID uint) error {
	if err := st.db.Model(&models.Player{}).Where("team_id = ?", teamID).
		Updates(map[string]interface{}{"team_id": gorm.Expr("NULL"), "is_creator": false}).Error; err != nil {
		return fmt.Errorf("clear members of team %d: %w", teamID, err)
	}
	for _, m := range []interface{}{&models.Answer{}, &models.Hint{}, &models.TeamProgress{}, &models.JoinRequest{}} {
		if err := st.db.Where("team_id = ?", teamID).Delete(m).Error; err != nil {
			return fmt.Errorf("clear logs of team %d: %w", teamID, err)
		}
	}
	if err := st.db.Delete(&models.Team{}, teamID).Error; err != nil {
		return fmt.Errorf("delete team %d: %w", teamID, err)
	}
	return nil
}

func (st *SessionStore) RecordProgress(teamID uint, position int, at time.Time) error {
	p := models.TeamProgress{TeamID: teamID, QuestionPosition: position, RecordedAt: at}
	if err := st.db.Create(&p).Error; err != nil {
		return fmt.Errorf("record progress for team %d: %w", teamID, err)
	}
	return nil
}

func (st *SessionStore) Progress() ([]models.TeamProgress, error) {
	var rows []models.TeamProgress
	if err := st.db.Order("recorded_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return rows, nil
}

// Questions

func orderAnswers(db *gorm.DB) *gorm.DB {
	return db.Order("question_answers.id ASC")
}

func (st *SessionStore) Questions() ([]models.Question, error) {
	var questions []models.Question
	err := st.db.
		Preload("Answers", orderAnswers).
		Order("position ASC, id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

func (st *SessionStore) QuestionByID(id uint) (*models.Question, error) {
	var q models.Question
	if err := findOne(st.db.Preload("Answers", orderAnswers).Where("id = ?", id), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// QuestionAt resolves a play position to its question.
func (st *SessionStore) QuestionAt(position int) (*models.Question, error) {
	var q models.Question
	if err := findOne(st.db.Preload("Answers", orderAnswers).Where("position = ?", position), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (st *SessionStore) QuestionCount() (int, error) {
	var n int64
	if err := st.db.Model(&models.Question{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return int(n), nil
}

func (st *SessionStore) NextQuestionPosition() (int, error) {
	var max int
	if err := st.db.Model(&models.Question{}).Select("COALESCE(MAX(position), 0)").Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("max question position: %w", err)
	}
	return max + 1, nil
}

func (st *SessionStore) CreateQuestion(q *models.Question) error {
	if err := st.db.Create(q).Error; err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

func (st *SessionStore) UpdateQuestion(id uint, fields map[string]interface{}) error {
	if err := st.db.Model(&models.Question{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("update question %d: %w", id, err)
	}
	return nil
}

// DeleteQuestion removes a question with its accepted-answer variants.
func (st *SessionStore) DeleteQuestion(id uint) error {
	if err := st.db.Where("question_id = ?", id).Delete(&models.QuestionAnswer{}).Error; err != nil {
		return fmt.Errorf("clear answers of question %d: %w", id, err)
	}
	if err := st.db.Delete(&models.Question{}, id).Error; err != nil {
		return fmt.Errorf("delete question %d: %w", id, err)
	}
	return nil
}

func (st *SessionStore) ReplaceQuestionAnswers(questionID uint, answers []string) error {
	if err := st.db.Where("question_id = ?", questionID).Delete(&models.QuestionAnswer{}).Error; err != nil {
		return fmt.Errorf("clear answers of question %d: %w", questionID, err)
	}
	for _, a := range answers {
		row := models.QuestionAnswer{QuestionID: questionID, Answer: a}
		if err := st.db.Create(&row).Error; err != nil {
			return fmt.Errorf("store answer for question %d: %w", questionID, err)
		}
	}
	return nil
}

func (st *SessionStore) SetQuestionPosition(questionID uint, position int) error {
	return st.db.Model(&models.Question{}).Where("id = ?", questionID).Update("position", position).Error
}

// RenumberQuestions rewrites positions as a dense 1..N sequence in current order.
func (st *SessionStore) RenumberQuestions() error {
	var ids []uint
	if err := st.db.Model(&models.Question{}).Order("position ASC, id ASC").Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("list question ids: %w", err)
	}
	for i, id := range ids {
		if err := st.SetQuestionPosition(id, i+1); err != nil {
			return fmt.Errorf("renumber question %d: %w", id, err)
		}
	}
	return nil
}

// Answers and hints

func (st *SessionStore) AppendAnswer(teamID, questionID uint, text string) error {
	a := models.Answer{TeamID: teamID, QuestionID: questionID, Answer: text}
	if err := st.db.Create(&a).Error; err != nil {
		return fmt.Errorf("append answer for team %d: %w", teamID, err)
	}
	return nil
}

func (st *SessionStore) Answers() ([]models.Answer, error) {
	var answers []models.Answer
	if err := st.db.Order("id ASC").Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

func (st *SessionStore) Hints() ([]models.Hint, error) {
	var hints []models.Hint
	if err := st.db.Order("id ASC").Find(&hints).Error; err != nil {
		return nil, fmt.Errorf("list hints: %w", err)
	}
	return hints, nil
}

func (st *SessionStore) TeamHints(teamID uint) ([]models.Hint, error) {
	var hints []models.Hint
	if err := st.db.Where("team_id = ?", teamID).Order("id ASC").Find(&hints).Error; err != nil {
		return nil, fmt.Errorf("list hints of team %d: %w", teamID, err)
	}
	return hints, nil
}

// InsertHint records a hint for (team, question) and reports whether a new row was written.
func (st *SessionStore) InsertHint(teamID, questionID uint) (bool, error) {
	res := st.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Hint{TeamID: teamID, QuestionID: questionID})
	if res.Error != nil {
		return false, fmt.Errorf("insert hint for team %d: %w", teamID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Join requests

func (st *SessionStore) JoinRequest(teamID uint, playerName string) (*models.JoinRequest, error) {
	var jr models.JoinRequest
	if err := findOne(st.db.Where("team_id = ? AND player_name = ?", teamID, playerName), &jr); err != nil {
		return nil, err
	}
	return &jr, nil
}

func (st *SessionStore) JoinRequests(teamID uint) ([]models.JoinRequest, error) {
	var rows []models.JoinRequest
	if err := st.db.Where("team_id = ?", teamID).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list join requests of team %d: %w", teamID, err)
	}
	return rows, nil
}

// EnqueueJoinRequest is idempotent per (team, player).
func (st *SessionStore) EnqueueJoinRequest(teamID uint, playerName string) error {
	err := st.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.JoinRequest{TeamID: teamID, PlayerName: playerName}).Error
	if err != nil {
		return fmt.Errorf("enqueue join request: %w", err)
	}
	return nil
}

func (st *SessionStore) DeleteJoinRequest(teamID uint, playerName string) error {
	return st.db.Where("team_id = ? AND player_name = ?", teamID, playerName).Delete(&models.JoinRequest{}).Error
}

// Run lifecycle

// ResetRun starts a fresh run: clears run-scoped logs and first-finisher metadata and puts
// every team on position 1.
func (st *SessionStore) ResetRun(at time.Time) error {
	err := st.db.Model(&models.GameState{}).Where("id = ?", models.SingletonID).Updates(map[string]interface{}{
		"started":                true,
		"ended":                  false,
		"first_finish_team_id":   gorm.Expr("NULL"),
		"first_finish_team_name": gorm.Expr("NULL"),
		"first_finish_player":    gorm.Expr("NULL"),
		"first_finish_at":        gorm.Expr("NULL"),
	}).Error
	if err != nil {
		return fmt.Errorf("reset game state: %w", err)
	}

	for _, m := range []interface{}{&models.Hint{}, &models.Answer{}, &models.TeamProgress{}} {
		if err := st.db.Where("1 = 1").Delete(m).Error; err != nil {
			return fmt.Errorf("clear run logs: %w", err)
		}
	}

	err = st.db.Model(&models.Team{}).Where("1 = 1").Updates(map[string]interface{}{
		"current_question": 1,
		"start_time":       at,
		"finished_at":      gorm.Expr("NULL"),
	}).Error
	if err != nil {
		return fmt.Errorf("reset team pointers: %w", err)
	}

	var teamIDs []uint
	if err := st.db.Model(&models.Team{}).Order("id ASC").Pluck("id", &teamIDs).Error; err != nil {
		return fmt.Errorf("list team ids: %w", err)
	}
	for _, id := range teamIDs {
		if err := st.RecordProgress(id, 1, at); err != nil {
			return err
		}
	}
	return nil
}

func (st *SessionStore) EndRun() error {
	return st.db.Model(&models.GameState{}).Where("id = ?", models.SingletonID).
		Updates(map[string]interface{}{"started": false, "ended": true}).Error
}

// RecordFirstFinish sets the first-finisher metadata unless another team already holds it.
// The conditional update is the whole check-and-set, so exactly one caller per run wins.
func (st *SessionStore) RecordFirstFinish(team *models.Team, playerName string, at time.Time) (bool, error) {
	res := st.db.Model(&models.GameState{}).
		Where("id = ? AND first_finish_team_id IS NULL", models.SingletonID).
		Updates(map[string]interface{}{
			"first_finish_team_id":   team.ID,
			"first_finish_team_name": team.Name,
			"first_finish_player":    playerName,
			"first_finish_at":        at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("record first finish: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetAdminCodeOnce stores the admin passphrase hash only while none is set.
func (st *SessionStore) SetAdminCodeOnce(hash string) (bool, error) {
	res := st.db.Model(&models.AdminConfig{}).
		Where("id = ? AND code_hash IS NULL", models.SingletonID).
		Update("code_hash", hash)
	if res.Error != nil {
		return false, fmt.Errorf("set admin code: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (st *SessionStore) SetMaxHints(n int) error {
	return st.db.Model(&models.AdminConfig{}).Where("id = ?", models.SingletonID).Update("max_hints", n).Error
}
