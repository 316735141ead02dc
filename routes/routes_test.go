package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"teamquiz/handlers"
	"teamquiz/middleware"
	"teamquiz/models"
	"teamquiz/services"

	"github.com/bmizerany/assert"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	router *gin.Engine
	admin  *services.AdminService
	hub    *services.Hub
}

func setup(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true, Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := models.Migrate(db, 3); err != nil {
		t.Fatal(err)
	}

	log := zap.NewNop()
	hub := services.NewHub(log)
	session := services.NewSession(db, hub, log, services.Options{})
	admin := services.NewAdminService(session, services.NewAuthService("secret", time.Hour))
	hub.SetHandler(handlers.NewSocketHandler(handlers.Services{
		Players:     services.NewPlayerService(session),
		Teams:       services.NewTeamService(session),
		Joins:       services.NewJoinService(session),
		Game:        services.NewGameService(session),
		Progression: services.NewProgressionService(session),
		Hints:       services.NewHintService(session),
		Admin:       admin,
		Quiz:        services.NewQuizService(session),
	}, hub, log))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := gin.New()
	router.Use(middleware.CORS())
	SetupRoutes(router,
		handlers.NewGameHandler(session.Views(), log),
		handlers.NewQuizHandler(session.Views(), log),
		hub, admin, log)
	return &testServer{router: router, admin: admin, hub: hub}
}

func (s *testServer) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := setup(t)
	w := s.get("/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	s := setup(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/state", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPublicState(t *testing.T) {
	s := setup(t)
	w := s.get("/api/state", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var view services.PublicView
	assert.Equal(t, nil, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, services.PhaseIdle, view.Game.Phase)
	assert.Equal(t, 0, len(view.Teams))

	w = s.get("/api/questions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.T(t, strings.Contains(w.Body.String(), `"questions":[]`))
}

func TestAdminStateRequiresToken(t *testing.T) {
	s := setup(t)

	assert.Equal(t, http.StatusUnauthorized, s.get("/api/admin/state", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.get("/api/admin/state", "forged").Code)

	// Right secret, but no admin code is on record to bind it to.
	token, err := services.NewAuthService("secret", time.Hour).IssueAdminToken("ops", "guess")
	assert.Equal(t, nil, err)
	assert.Equal(t, http.StatusUnauthorized, s.get("/api/admin/state", token).Code)
}

func TestAdminStateWithIssuedToken(t *testing.T) {
	s := setup(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	assert.Equal(t, nil, ws.WriteJSON(map[string]interface{}{"type": "admin_login", "payload": map[string]string{"code": "s3cret"}}))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg services.Message
	assert.Equal(t, nil, ws.ReadJSON(&msg))
	assert.Equal(t, "admin_logged_in", msg.Type)
	var logged services.AdminLoggedIn
	assert.Equal(t, nil, json.Unmarshal(msg.Payload, &logged))

	w := s.get("/api/admin/state", logged.Token)
	assert.Equal(t, http.StatusOK, w.Code)
	var view services.AdminView
	assert.Equal(t, nil, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, 3, view.MaxHints)
}

func TestSocketJoinPlayer(t *testing.T) {
	s := setup(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	assert.Equal(t, nil, ws.WriteJSON(map[string]interface{}{"type": "join_player", "payload": map[string]string{"name": "A"}}))

	// joined_as_player is queued before the roster broadcast.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg services.Message
	assert.Equal(t, nil, ws.ReadJSON(&msg))
	assert.Equal(t, "joined_as_player", msg.Type)
	assert.Equal(t, `"A"`, string(msg.Payload))

	assert.Equal(t, nil, ws.ReadJSON(&msg))
	assert.Equal(t, "teams_update", msg.Type)

	w := s.get("/api/state", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, s.hub.ClientCount())
}
