package services

import (
	"time"

	"teamquiz/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminRoom is the transport room every authenticated admin connection joins.
const AdminRoom = "admins"

// Conn is the per-connection state an action runs against.
type Conn interface {
	ID() string
	PlayerName() string
	SetPlayerName(name string)
	IsAdmin() bool
	SetAdmin(admin bool)
}

// Broadcaster delivers events to connections. Implementations must preserve submission
// order per connection.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
	SendToRoom(room, event string, payload interface{})
	SendToConn(conn Conn, event string, payload interface{})
	SendToPlayer(name, event string, payload interface{})
	JoinRoom(conn Conn, room string)
}

type Options struct {
	MaxTeamSize        int
	DeleteEmptyTeams   bool
	WrongAnswerMessage string
}

func DefaultOptions() Options {
	return Options{
		MaxTeamSize:        5,
		WrongAnswerMessage: "Wrong answer. Try again.",
	}
}

// Session is the shared context handed to every component: storage, outbound transport,
// the view aggregator, logging and the clock.
type Session struct {
	store *SessionStore
	out   Broadcaster
	views *Aggregator
	log   *zap.Logger
	now   func() time.Time
	opts  Options
}

type SessionOption func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSnapshotCache lets the aggregator serve the public view from cache.
func WithSnapshotCache(cache *SnapshotCache) SessionOption {
	return func(s *Session) { s.views.cache = cache }
}

func NewSession(db *gorm.DB, out Broadcaster, log *zap.Logger, opts Options, options ...SessionOption) *Session {
	if opts.MaxTeamSize <= 0 {
		opts.MaxTeamSize = DefaultOptions().MaxTeamSize
	}
	if opts.WrongAnswerMessage == "" {
		opts.WrongAnswerMessage = DefaultOptions().WrongAnswerMessage
	}

	s := &Session{
		store: NewSessionStore(db),
		out:   out,
		log:   log,
		now:   time.Now,
		opts:  opts,
	}
	s.views = newAggregator(s)
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Session) Store() *SessionStore { return s.store }

func (s *Session) Views() *Aggregator { return s.views }

func (s *Session) timestamp() time.Time {
	return s.now().UTC()
}

// currentPlayer resolves the player bound to conn. Connections that never joined are ignored.
func (s *Session) currentPlayer(st *SessionStore, conn Conn) (*models.Player, error) {
	name := conn.PlayerName()
	if name == "" {
		return nil, ErrNotPermitted
	}
	return st.PlayerByName(name)
}
