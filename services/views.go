package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"teamquiz/models"

	"go.uber.org/zap"
)

type PublicMember struct {
	Name       string  `json:"name"`
	ExternalID *string `json:"external_id"`
	IsCreator  bool    `json:"is_creator"`
}

type TeamView struct {
	ID              uint           `json:"id"`
	Name            string         `json:"name"`
	Players         []string       `json:"players"`
	PlayersDetail   []PublicMember `json:"players_detail"`
	CurrentQuestion int            `json:"current_question"`
	Captain         *string        `json:"captain"`
	StartTime       *time.Time     `json:"start_time"`
	FinishedAt      *time.Time     `json:"finished_at"`
}

// PublicQuestion never carries the hint or accepted answers.
type PublicQuestion struct {
	ID       uint    `json:"id"`
	ImageURL *string `json:"image_url"`
	Text     *string `json:"text"`
	Position int     `json:"position"`
}

type GameView struct {
	Phase               Phase      `json:"phase"`
	Started             bool       `json:"started"`
	Ended               bool       `json:"ended"`
	FirstFinishTeamID   *uint      `json:"first_finish_team_id"`
	FirstFinishTeamName *string    `json:"first_finish_team_name"`
	FirstFinishPlayer   *string    `json:"first_finish_player"`
	FirstFinishAt       *time.Time `json:"first_finish_at"`
}

type PublicView struct {
	Teams     []TeamView       `json:"teams"`
	Questions []PublicQuestion `json:"questions"`
	Game      GameView         `json:"game"`
}

type QuestionsPayload struct {
	Questions []PublicQuestion `json:"questions"`
	Game      GameView         `json:"game"`
}

type QuestionsPayloadFor struct {
	PlayerName string           `json:"playerName"`
	Questions  []PublicQuestion `json:"questions"`
	Game       GameView         `json:"game"`
}

type AdminQuestion struct {
	ID            uint     `json:"id"`
	ImageURL      *string  `json:"image_url"`
	Text          *string  `json:"text"`
	Hint          string   `json:"hint"`
	CorrectAnswer *string  `json:"correct_answer"`
	Position      int      `json:"position"`
	Answers       []string `json:"answers"`
}

type AdminPlayer struct {
	ID         uint    `json:"id"`
	Name       string  `json:"name"`
	ExternalID *string `json:"external_id"`
	TeamID     *uint   `json:"team_id"`
	IsCreator  bool    `json:"is_creator"`
	TeamName   *string `json:"team_name"`
}

type AdminView struct {
	Teams     []TeamView            `json:"teams"`
	Questions []AdminQuestion       `json:"questions"`
	Answers   []models.Answer       `json:"answers"`
	Game      GameView              `json:"game"`
	Players   []AdminPlayer         `json:"players"`
	MaxHints  int                   `json:"max_hints"`
	UsedHints []models.Hint         `json:"used_hints"`
	Progress  []models.TeamProgress `json:"progress"`
}

type HintsState struct {
	Used              int    `json:"used"`
	Left              int    `json:"left"`
	Max               int    `json:"max"`
	HintedQuestionIDs []uint `json:"hintedQuestionIds"`
}

// Aggregator assembles the public and admin views and pushes them to their audiences.
// Push failures are logged only: the mutation that triggered them has already committed.
type Aggregator struct {
	s     *Session
	cache *SnapshotCache
}

func newAggregator(s *Session) *Aggregator {
	return &Aggregator{s: s}
}

var variantSeparator = regexp.MustCompile(`\r?\n|\\n|,`)

// splitVariants breaks one stored answer into its trimmed, non-empty variants.
func splitVariants(value string) []string {
	var out []string
	for _, part := range variantSeparator.Split(value, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func gameView(gs *models.GameState) GameView {
	return GameView{
		Phase:               PhaseOf(gs),
		Started:             gs.Started,
		Ended:               gs.Ended,
		FirstFinishTeamID:   gs.FirstFinishTeamID,
		FirstFinishTeamName: gs.FirstFinishTeamName,
		FirstFinishPlayer:   gs.FirstFinishPlayer,
		FirstFinishAt:       gs.FirstFinishAt,
	}
}

func teamViews(teams []models.Team) []TeamView {
	views := make([]TeamView, 0, len(teams))
	for _, t := range teams {
		v := TeamView{
			ID:              t.ID,
			Name:            t.Name,
			Players:         make([]string, 0, len(t.Players)),
			PlayersDetail:   make([]PublicMember, 0, len(t.Players)),
			CurrentQuestion: t.CurrentQuestion,
			StartTime:       t.StartTime,
			FinishedAt:      t.FinishedAt,
		}
		for _, p := range t.Players {
			v.Players = append(v.Players, p.Name)
			v.PlayersDetail = append(v.PlayersDetail, PublicMember{Name: p.Name, ExternalID: p.ExternalID, IsCreator: p.IsCreator})
			if p.IsCreator && v.Captain == nil {
				name := p.Name
				v.Captain = &name
			}
		}
		views = append(views, v)
	}
	return views
}

func (a *Aggregator) buildPublic(st *SessionStore) (*PublicView, error) {
	teams, err := st.Teams()
	if err != nil {
		return nil, err
	}
	questions, err := st.Questions()
	if err != nil {
		return nil, err
	}
	gs, err := st.GameState()
	if err != nil {
		return nil, err
	}

	view := &PublicView{
		Teams:     teamViews(teams),
		Questions: make([]PublicQuestion, 0, len(questions)),
		Game:      gameView(gs),
	}
	for _, q := range questions {
		view.Questions = append(view.Questions, PublicQuestion{ID: q.ID, ImageURL: q.ImageURL, Text: q.Text, Position: q.Position})
	}
	return view, nil
}

func (a *Aggregator) buildAdmin(st *SessionStore) (*AdminView, error) {
	teams, err := st.Teams()
	if err != nil {
		return nil, err
	}
	questions, err := st.Questions()
	if err != nil {
		return nil, err
	}
	answers, err := st.Answers()
	if err != nil {
		return nil, err
	}
	gs, err := st.GameState()
	if err != nil {
		return nil, err
	}
	players, err := st.Players()
	if err != nil {
		return nil, err
	}
	maxHints, err := st.MaxHints()
	if err != nil {
		return nil, err
	}
	hints, err := st.Hints()
	if err != nil {
		return nil, err
	}
	progress, err := st.Progress()
	if err != nil {
		return nil, err
	}

	teamNames := make(map[uint]string, len(teams))
	for _, t := range teams {
		teamNames[t.ID] = t.Name
	}

	view := &AdminView{
		Teams:     teamViews(teams),
		Questions: make([]AdminQuestion, 0, len(questions)),
		Answers:   answers,
		Game:      gameView(gs),
		Players:   make([]AdminPlayer, 0, len(players)),
		MaxHints:  maxHints,
		UsedHints: hints,
		Progress:  progress,
	}
	for _, q := range questions {
		aq := AdminQuestion{
			ID:            q.ID,
			ImageURL:      q.ImageURL,
			Text:          q.Text,
			Hint:          q.Hint,
			CorrectAnswer: q.CorrectAnswer,
			Position:      q.Position,
			Answers:       []string{},
		}
		seen := map[string]bool{}
		for _, row := range q.Answers {
			for _, v := range splitVariants(row.Answer) {
				if !seen[v] {
					seen[v] = true
					aq.Answers = append(aq.Answers, v)
				}
			}
		}
		view.Questions = append(view.Questions, aq)
	}
	for _, p := range players {
		ap := AdminPlayer{ID: p.ID, Name: p.Name, ExternalID: p.ExternalID, TeamID: p.TeamID, IsCreator: p.IsCreator}
		if p.TeamID != nil {
			if name, ok := teamNames[*p.TeamID]; ok {
				ap.TeamName = &name
			}
		}
		view.Players = append(view.Players, ap)
	}
	return view, nil
}

// PublicView serves the cached public view, rebuilding it on a miss.
func (a *Aggregator) PublicView(ctx context.Context) (*PublicView, error) {
	if view, ok := a.cache.Get(ctx); ok {
		return view, nil
	}
	return a.Refresh(ctx)
}

// Refresh rebuilds the public view from storage and rewrites the cache.
func (a *Aggregator) Refresh(ctx context.Context) (*PublicView, error) {
	var view *PublicView
	err := a.s.store.WithContext(ctx).Transaction(func(st *SessionStore) (err error) {
		view, err = a.buildPublic(st)
		return err
	})
	if err != nil {
		a.cache.Invalidate(ctx)
		return nil, err
	}
	a.cache.Set(ctx, view)
	return view, nil
}

func (a *Aggregator) AdminView(ctx context.Context) (*AdminView, error) {
	var view *AdminView
	err := a.s.store.WithContext(ctx).Transaction(func(st *SessionStore) (err error) {
		view, err = a.buildAdmin(st)
		return err
	})
	return view, err
}

func (a *Aggregator) HintsState(st *SessionStore, teamID *uint) (*HintsState, error) {
	max, err := st.MaxHints()
	if err != nil {
		return nil, err
	}
	state := &HintsState{Left: max, Max: max, HintedQuestionIDs: []uint{}}
	if teamID == nil {
		return state, nil
	}

	hints, err := st.TeamHints(*teamID)
	if err != nil {
		return nil, err
	}
	state.Used = len(hints)
	state.Left = max - state.Used
	if state.Left < 0 {
		state.Left = 0
	}
	for _, h := range hints {
		state.HintedQuestionIDs = append(state.HintedQuestionIDs, h.QuestionID)
	}
	return state, nil
}

func (a *Aggregator) logPushError(what string, err error) {
	a.s.log.Error("failed to assemble view", zap.String("view", what), zap.Error(err))
}

// PushTeams sends the roster to every connection.
func (a *Aggregator) PushTeams(ctx context.Context) {
	view, err := a.Refresh(ctx)
	if err != nil {
		a.logPushError("teams", err)
		return
	}
	a.s.out.Broadcast("teams_update", view.Teams)
}

// PushQuestions sends the public question set and game state to every connection.
func (a *Aggregator) PushQuestions(ctx context.Context) {
	view, err := a.Refresh(ctx)
	if err != nil {
		a.logPushError("questions", err)
		return
	}
	a.s.out.Broadcast("questions_payload", QuestionsPayload{Questions: view.Questions, Game: view.Game})
}

func (a *Aggregator) SendQuestions(ctx context.Context, conn Conn) {
	view, err := a.PublicView(ctx)
	if err != nil {
		a.logPushError("questions", err)
		return
	}
	a.s.out.SendToConn(conn, "questions_payload", QuestionsPayload{Questions: view.Questions, Game: view.Game})
}

func (a *Aggregator) SendTeams(ctx context.Context, conn Conn) {
	view, err := a.PublicView(ctx)
	if err != nil {
		a.logPushError("teams", err)
		return
	}
	a.s.out.SendToConn(conn, "teams_update", view.Teams)
}

// SendQuestionsToPlayer delivers the question set to one player's connections only.
func (a *Aggregator) SendQuestionsToPlayer(ctx context.Context, playerName string) {
	view, err := a.PublicView(ctx)
	if err != nil {
		a.logPushError("questions", err)
		return
	}
	a.s.out.SendToPlayer(playerName, "questions_payload_for", QuestionsPayloadFor{
		PlayerName: playerName,
		Questions:  view.Questions,
		Game:       view.Game,
	})
}

// PushAdmin sends the admin view to the admin room.
func (a *Aggregator) PushAdmin(ctx context.Context) {
	view, err := a.AdminView(ctx)
	if err != nil {
		a.logPushError("admin", err)
		return
	}
	a.s.out.SendToRoom(AdminRoom, "admin_state", view)
}

// SendAdmin sends the admin view to a single connection.
func (a *Aggregator) SendAdmin(ctx context.Context, conn Conn) {
	view, err := a.AdminView(ctx)
	if err != nil {
		a.logPushError("admin", err)
		return
	}
	a.s.out.SendToConn(conn, "admin_state", view)
}

// SendToTeam delivers an event to the connections of every current member of a team.
func (a *Aggregator) SendToTeam(ctx context.Context, teamID uint, event string, payload interface{}) {
	members, err := a.s.store.WithContext(ctx).Members(teamID)
	if err != nil {
		a.logPushError("team members", err)
		return
	}
	for _, m := range members {
		a.s.out.SendToPlayer(m.Name, event, payload)
	}
}
