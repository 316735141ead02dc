package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"teamquiz/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sent struct {
	scope   string // all, room, conn, player
	target  string
	event   string
	payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []sent
	rooms  map[string][]string
}

func newRecorder() *recorder {
	return &recorder{rooms: map[string][]string{}}
}

func (r *recorder) add(s sent) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) Broadcast(event string, payload interface{}) {
	r.add(sent{scope: "all", event: event, payload: payload})
}

func (r *recorder) SendToRoom(room, event string, payload interface{}) {
	r.add(sent{scope: "room", target: room, event: event, payload: payload})
}

func (r *recorder) SendToConn(conn Conn, event string, payload interface{}) {
	r.add(sent{scope: "conn", target: conn.ID(), event: event, payload: payload})
}

func (r *recorder) SendToPlayer(name, event string, payload interface{}) {
	r.add(sent{scope: "player", target: name, event: event, payload: payload})
}

func (r *recorder) JoinRoom(conn Conn, room string) {
	r.mu.Lock()
	r.rooms[room] = append(r.rooms[room], conn.ID())
	r.mu.Unlock()
}

// find returns the events named event, in order.
func (r *recorder) find(event string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.events {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func (r *recorder) last(event string) (sent, bool) {
	all := r.find(event)
	if len(all) == 0 {
		return sent{}, false
	}
	return all[len(all)-1], true
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fakeConn struct {
	id    string
	name  string
	admin bool
}

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) PlayerName() string { return c.name }
func (c *fakeConn) SetPlayerName(n string) { c.name = n }
func (c *fakeConn) IsAdmin() bool { return c.admin }
func (c *fakeConn) SetAdmin(admin bool) { c.admin = admin }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.Migrate(db, 3); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var testClock = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	session *Session
	out     *recorder

	players     *PlayerService
	teams       *TeamService
	joins       *JoinService
	game        *GameService
	progression *ProgressionService
	hints       *HintService
	admin       *AdminService
	quiz        *QuizService

	admins *fakeConn
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	out := newRecorder()
	s := NewSession(openTestDB(t), out, zap.NewNop(), opts, WithClock(func() time.Time { return testClock }))
	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		session:     s,
		out:         out,
		players:     NewPlayerService(s),
		teams:       NewTeamService(s),
		joins:       NewJoinService(s),
		game:        NewGameService(s),
		progression: NewProgressionService(s),
		hints:       NewHintService(s),
		admin:       NewAdminService(s, NewAuthService("test-secret", time.Hour)),
		quiz:        NewQuizService(s),
		admins:      &fakeConn{id: "admin", admin: true},
	}
	return f
}

// player registers a new player and returns its connection.
func (f *fixture) player(name string) *fakeConn {
	f.t.Helper()
	conn := &fakeConn{id: "conn-" + name}
	if err := f.players.Join(f.ctx, conn, name, nil); err != nil {
		f.t.Fatalf("join player %s: %v", name, err)
	}
	return conn
}

func (f *fixture) createTeam(conn *fakeConn, name string) *models.Team {
	f.t.Helper()
	if err := f.teams.CreateTeam(f.ctx, conn, name); err != nil {
		f.t.Fatalf("create team %s: %v", name, err)
	}
	return f.team(name)
}

func (f *fixture) team(name string) *models.Team {
	f.t.Helper()
	team, err := f.session.Store().TeamByName(name)
	if err != nil {
		f.t.Fatalf("load team %s: %v", name, err)
	}
	return team
}

func (f *fixture) playerRow(name string) *models.Player {
	f.t.Helper()
	p, err := f.session.Store().PlayerByName(name)
	if err != nil {
		f.t.Fatalf("load player %s: %v", name, err)
	}
	return p
}

func (f *fixture) addQuestion(text, hint string, answers ...string) {
	f.t.Helper()
	err := f.quiz.AddQuestion(f.ctx, f.admins, &AddQuestionRequest{Text: &text, Hint: hint, Answers: answers})
	if err != nil {
		f.t.Fatalf("add question %q: %v", text, err)
	}
}

func (f *fixture) start() {
	f.t.Helper()
	if err := f.game.Start(f.ctx, f.admins); err != nil {
		f.t.Fatalf("start game: %v", err)
	}
}

func (f *fixture) captainCount(teamID uint) int {
	f.t.Helper()
	members, err := f.session.Store().Members(teamID)
	if err != nil {
		f.t.Fatalf("members: %v", err)
	}
	n := 0
	for _, m := range members {
		if m.IsCreator {
			n++
		}
	}
	return n
}
