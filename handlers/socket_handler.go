package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"teamquiz/services"

	"go.uber.org/zap"
)

// reasonEvents maps rejections onto the bare event the client listens for.
var reasonEvents = []struct {
	err   error
	event string
}{
	{services.ErrNameTaken, "name_taken"},
	{services.ErrTeamNameTaken, "team_name_taken"},
	{services.ErrMustLeaveFirst, "must_leave_first"},
	{services.ErrTeamFull, "team_full"},
	{services.ErrGameFrozen, "game_frozen"},
	{services.ErrInvalidName, "invalid_name"},
	{services.ErrInvalidExternalID, "invalid_external_id"},
	{services.ErrResumeFailed, "resume_failed"},
}

type AdminError struct {
	Message string `json:"message"`
}

type ActionFailed struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

type Services struct {
	Players     *services.PlayerService
	Teams       *services.TeamService
	Joins       *services.JoinService
	Game        *services.GameService
	Progression *services.ProgressionService
	Hints       *services.HintService
	Admin       *services.AdminService
	Quiz        *services.QuizService
}

// SocketHandler dispatches inbound socket actions. Actions run one at a time, each to
// completion, so read-validate-write sequences never interleave.
type SocketHandler struct {
	svc Services
	out services.Broadcaster
	log *zap.Logger
	mu  sync.Mutex
}

func NewSocketHandler(svc Services, out services.Broadcaster, log *zap.Logger) *SocketHandler {
	return &SocketHandler{svc: svc, out: out, log: log}
}

type namePayload struct {
	Name       string          `json:"name"`
	ExternalID json.RawMessage `json:"external_id"`
}

type teamNamePayload struct {
	TeamName string `json:"teamName"`
}

type decisionPayload struct {
	PlayerName string `json:"playerName"`
	Accept     bool   `json:"accept"`
}

type answerPayload struct {
	Text string `json:"text"`
}

type codePayload struct {
	Code json.RawMessage `json:"code"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

type maxHintsPayload struct {
	N float64 `json:"n"`
}

type idPayload struct {
	ID uint `json:"id"`
}

type movePayload struct {
	ID        uint   `json:"id"`
	Direction string `json:"direction"`
}

type teamIDPayload struct {
	TeamID uint `json:"teamId"`
}

func isString(payload json.RawMessage) bool {
	p := bytes.TrimSpace(payload)
	return len(p) > 0 && p[0] == '"'
}

// scalarText renders a JSON string or number as text; a missing value or null gives nil.
// ok is false for any other JSON value.
func scalarText(raw json.RawMessage) (text *string, ok bool) {
	p := bytes.TrimSpace(raw)
	if len(p) == 0 || string(p) == "null" {
		return nil, true
	}
	var s string
	if err := json.Unmarshal(p, &s); err == nil {
		return &s, true
	}
	var n json.Number
	if err := json.Unmarshal(p, &n); err == nil {
		s = n.String()
		return &s, true
	}
	return nil, false
}

// adminCode accepts the code as a bare string or number, or as the code field of an object.
func adminCode(payload json.RawMessage) (string, error) {
	text, ok := scalarText(payload)
	if !ok {
		var p codePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return "", services.ErrAdminCodeRequired
		}
		if text, ok = scalarText(p.Code); !ok {
			return "", services.ErrAdminCodeRequired
		}
	}
	if text == nil {
		return "", nil
	}
	return *text, nil
}

// decode fills dst from payload. A missing payload leaves dst zeroed.
func decode(payload json.RawMessage, dst interface{}) error {
	if len(bytes.TrimSpace(payload)) == 0 || string(bytes.TrimSpace(payload)) == "null" {
		return nil
	}
	return json.Unmarshal(payload, dst)
}

// decodeScalar accepts either a bare JSON string or an object, for the actions older
// clients send as a plain value.
func decodeScalar(payload json.RawMessage, dst interface{}, assign func(string)) error {
	if isString(payload) {
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		assign(s)
		return nil
	}
	return decode(payload, dst)
}

func (h *SocketHandler) HandleMessage(ctx context.Context, conn services.Conn, action string, payload json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.dispatch(ctx, conn, action, payload)
	if err != nil {
		h.report(conn, action, err)
	}
}

func (h *SocketHandler) dispatch(ctx context.Context, conn services.Conn, action string, payload json.RawMessage) error {
	switch action {
	case "join_player":
		var p namePayload
		if err := decodeScalar(payload, &p, func(s string) { p.Name = s }); err != nil {
			return errMalformed
		}
		externalID, ok := scalarText(p.ExternalID)
		if !ok {
			return services.ErrInvalidExternalID
		}
		return h.svc.Players.Join(ctx, conn, p.Name, externalID)

	case "resume":
		var p namePayload
		if err := decodeScalar(payload, &p, func(s string) { p.Name = s }); err != nil {
			return errMalformed
		}
		return h.svc.Players.Resume(ctx, conn, p.Name)

	case "create_team":
		var p namePayload
		if err := decodeScalar(payload, &p, func(s string) { p.Name = s }); err != nil {
			return errMalformed
		}
		return h.svc.Teams.CreateTeam(ctx, conn, p.Name)

	case "join_team":
		var p namePayload
		if err := decodeScalar(payload, &p, func(s string) { p.Name = s }); err != nil {
			return errMalformed
		}
		return h.svc.Teams.JoinTeam(ctx, conn, p.Name)

	case "leave_team":
		return h.svc.Teams.LeaveTeam(ctx, conn)

	case "request_join_team":
		var p teamNamePayload
		if err := decodeScalar(payload, &p, func(s string) { p.TeamName = s }); err != nil {
			return errMalformed
		}
		return h.svc.Joins.RequestJoin(ctx, conn, p.TeamName)

	case "captain_list_requests":
		return h.svc.Joins.ListRequests(ctx, conn)

	case "captain_decide_join":
		var p decisionPayload
		if err := decode(payload, &p); err != nil {
			return errMalformed
		}
		return h.svc.Joins.Decide(ctx, conn, p.PlayerName, p.Accept)

	case "submit_answer":
		var p answerPayload
		if err := decodeScalar(payload, &p, func(s string) { p.Text = s }); err != nil {
			return errMalformed
		}
		return h.svc.Progression.SubmitAnswer(ctx, conn, p.Text)

	case "request_hint":
		return h.svc.Hints.RequestHint(ctx, conn)

	case "player_get_questions":
		return h.svc.Players.Questions(ctx, conn)

	case "player_get_hints_state":
		return h.svc.Hints.SendState(ctx, conn)

	case "player_get_info":
		return h.svc.Players.Info(ctx, conn)

	case "admin_login":
		code, err := adminCode(payload)
		if err != nil {
			return err
		}
		return h.svc.Admin.Login(ctx, conn, code)

	case "admin_resume":
		var p tokenPayload
		if err := decodeScalar(payload, &p, func(s string) { p.Token = s }); err != nil {
			return errMalformed
		}
		return h.svc.Admin.Resume(ctx, conn, p.Token)

	case "start_game":
		return h.svc.Game.Start(ctx, conn)

	case "end_game":
		return h.svc.Game.End(ctx, conn)

	case "admin_set_max_hints":
		var p maxHintsPayload
		if err := decode(payload, &p); err != nil {
			if err := json.Unmarshal(payload, &p.N); err != nil {
				return errMalformed
			}
		}
		return h.svc.Admin.SetMaxHints(ctx, conn, p.N)

	case "admin_add_question":
		var p services.AddQuestionRequest
		if err := decode(payload, &p); err != nil {
			return errMalformed
		}
		return h.svc.Quiz.AddQuestion(ctx, conn, &p)

	case "admin_update_question":
		var p services.UpdateQuestionRequest
		if err := decode(payload, &p); err != nil {
			return errMalformed
		}
		return h.svc.Quiz.UpdateQuestion(ctx, conn, &p)

	case "admin_remove_question":
		var p idPayload
		if err := decode(payload, &p); err != nil {
			if err := json.Unmarshal(payload, &p.ID); err != nil {
				return errMalformed
			}
		}
		return h.svc.Quiz.RemoveQuestion(ctx, conn, p.ID)

	case "admin_move_question":
		var p movePayload
		if err := decode(payload, &p); err != nil {
			return errMalformed
		}
		return h.svc.Quiz.MoveQuestion(ctx, conn, p.ID, p.Direction)

	case "admin_delete_team":
		var p teamIDPayload
		if err := decode(payload, &p); err != nil {
			if err := json.Unmarshal(payload, &p.TeamID); err != nil {
				return errMalformed
			}
		}
		return h.svc.Teams.DeleteTeam(ctx, conn, p.TeamID)

	default:
		h.log.Debug("unknown action", zap.String("action", action), zap.String("conn", conn.ID()))
		return nil
	}
}

var errMalformed = errors.New("malformed payload")

// report turns an action error into the event the initiating connection receives, if any.
func (h *SocketHandler) report(conn services.Conn, action string, err error) {
	if services.IsSilent(err) {
		h.log.Debug("action ignored", zap.String("action", action), zap.String("conn", conn.ID()), zap.Error(err))
		return
	}
	for _, r := range reasonEvents {
		if errors.Is(err, r.err) {
			h.out.SendToConn(conn, r.event, nil)
			return
		}
	}
	if services.IsAdminError(err) {
		h.out.SendToConn(conn, "admin_error", AdminError{Message: err.Error()})
		return
	}
	if errors.Is(err, errMalformed) {
		h.log.Warn("malformed payload", zap.String("action", action), zap.String("conn", conn.ID()))
		return
	}

	h.log.Error("action failed", zap.String("action", action), zap.String("conn", conn.ID()), zap.Error(err))
	h.out.SendToConn(conn, "action_failed", ActionFailed{Action: action, Message: "action failed, please retry"})
}
