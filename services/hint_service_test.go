package services

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestRequestHintRevealsToTeamOnly(t *testing.T) {
	f, a := runningGame(t)
	b := f.player("B")
	assert.Equal(t, nil, f.teams.JoinTeam(f.ctx, b, "Red"))
	outsider := f.player("Z")
	f.createTeam(outsider, "Blue")
	f.out.reset()

	assert.Equal(t, nil, f.hints.RequestHint(f.ctx, a))

	revealed := f.out.find("hint_revealed")
	assert.Equal(t, 2, len(revealed))
	for _, s := range revealed {
		assert.Equal(t, "player", s.scope)
		assert.NotEqual(t, "Z", s.target)
	}
	got := revealed[0].payload.(*HintRevealed)
	assert.Equal(t, "hint one", got.Hint)
	assert.Equal(t, 1, got.Used)
	assert.Equal(t, 2, got.Left)
	assert.Equal(t, 3, got.Max)
}

func TestRequestHintTwiceIsIdempotent(t *testing.T) {
	f, a := runningGame(t)
	red := f.team("Red")

	assert.Equal(t, nil, f.hints.RequestHint(f.ctx, a))
	f.out.reset()
	assert.Equal(t, nil, f.hints.RequestHint(f.ctx, a))

	hints, err := f.session.Store().TeamHints(red.ID)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(hints))
	assert.Equal(t, 0, len(f.out.find("hint_revealed")))

	state, ok := f.out.last("hints_state")
	assert.T(t, ok)
	got := state.payload.(*HintsState)
	assert.Equal(t, 1, got.Used)
	assert.Equal(t, 2, got.Left)
	assert.Equal(t, []uint{hints[0].QuestionID}, got.HintedQuestionIDs)
}

func TestRequestHintBudgetExhausted(t *testing.T) {
	f, a := runningGame(t)
	assert.Equal(t, nil, f.admin.SetMaxHints(f.ctx, f.admins, 1))

	assert.Equal(t, nil, f.hints.RequestHint(f.ctx, a))
	assert.Equal(t, nil, f.progression.SubmitAnswer(f.ctx, a, "one"))
	f.out.reset()
	assert.Equal(t, nil, f.hints.RequestHint(f.ctx, a))

	assert.Equal(t, 0, len(f.out.find("hint_revealed")))
	hints, _ := f.session.Store().TeamHints(f.team("Red").ID)
	assert.Equal(t, 1, len(hints))
}

func TestRequestHintRequiresCaptainAndRunningGame(t *testing.T) {
	f := newFixture(t, Options{})
	f.addQuestion("Q", "H", "A")
	a := f.player("A")
	b := f.player("B")
	f.createTeam(a, "Red")
	assert.Equal(t, nil, f.teams.JoinTeam(f.ctx, b, "Red"))

	assert.Equal(t, ErrGameNotRunning, f.hints.RequestHint(f.ctx, a))
	f.start()
	assert.Equal(t, ErrNotPermitted, f.hints.RequestHint(f.ctx, b))
}

func TestHintStateResetsOnRestart(t *testing.T) {
	f, a := runningGame(t)
	assert.Equal(t, nil, f.hints.RequestHint(f.ctx, a))
	assert.Equal(t, nil, f.game.End(f.ctx, f.admins))
	f.start()

	assert.Equal(t, nil, f.hints.SendState(f.ctx, a))
	state, ok := f.out.last("hints_state")
	assert.T(t, ok)
	got := state.payload.(*HintsState)
	assert.Equal(t, 0, got.Used)
	assert.Equal(t, 3, got.Left)
}
