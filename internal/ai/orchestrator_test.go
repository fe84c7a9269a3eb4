package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"undercover-arena/internal/config"
	"undercover-arena/internal/game"
	"undercover-arena/internal/testutil"
)

// scriptedCompleter answers speech and vote prompts without HTTP. Vote
// replies name the first candidate mentioned in the prompt.
type scriptedCompleter struct {
	failAlways bool
	calls      int
}

func (s *scriptedCompleter) CompleteWithFallback(_ context.Context, _ game.ModelConfig, messages []Message) (string, error) {
	s.calls++
	if s.failAlways {
		return "", ErrAllModelsFailed
	}
	user := messages[len(messages)-1].Content
	if strings.Contains(user, "vote someone out") {
		line := user[strings.Index(user, "Candidates: ")+len("Candidates: "):]
		first := strings.TrimSpace(strings.Split(strings.Split(line, ",")[0], ".")[0])
		return first, nil
	}
	return "I find it useful nearly every day", nil
}

func orchestratorRig(t *testing.T, completer completer) (*Orchestrator, *game.Engine, *testutil.MemStore) {
	t.Helper()
	store := testutil.NewMemStore()
	engine := game.NewEngine(store, game.NewRegistry(), testutil.NewRecordingHub(),
		testutil.StaticWords{Majority: "coffee", Minority: "tea"}, &testutil.RecordingSettler{},
		rand.New(rand.NewSource(3)))
	cfg := config.AIConfig{MaxIterations: 20, RequestTimeout: time.Second}
	orch := NewOrchestrator(engine, completer, cfg, rand.New(rand.NewSource(3)))
	return orch, engine, store
}

func aiRoster(n int) []game.RosterEntry {
	out := make([]game.RosterEntry, n)
	for i := range out {
		out[i] = game.RosterEntry{
			ID:    fmt.Sprintf("bot%d", i),
			Name:  fmt.Sprintf("Bot %d", i),
			IsAI:  true,
			Model: game.ModelConfig{Model: "scripted"},
		}
	}
	return out
}

func TestRunTurnsPlaysFullAIGame(t *testing.T) {
	completer := &scriptedCompleter{}
	orch, engine, _ := orchestratorRig(t, completer)
	ctx := context.Background()

	sess, err := engine.CreateGame(ctx, game.CreateGameParams{RoomID: "r", Roster: aiRoster(3)})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if _, err := engine.StartGame(ctx, sess.ID, "bot0"); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	orch.RunTurns(ctx, sess.ID)

	final, err := engine.Load(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if final.Phase != game.PhaseFinished {
		t.Fatalf("phase = %s after AI game, want finished", final.Phase)
	}
	if final.WinnerRole == "" || len(final.WinnerIDs) == 0 {
		t.Fatalf("no winner recorded: %+v", final)
	}
	// 3 speeches + 3 votes
	if completer.calls != 6 {
		t.Fatalf("completer calls = %d, want 6", completer.calls)
	}
}

func TestRunTurnsStopsAtHumanTurn(t *testing.T) {
	completer := &scriptedCompleter{}
	orch, engine, _ := orchestratorRig(t, completer)
	ctx := context.Background()

	roster := aiRoster(3)
	roster[0].IsAI = false
	roster[0].Ready = true
	sess, err := engine.CreateGame(ctx, game.CreateGameParams{RoomID: "r", Roster: roster})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if _, err := engine.StartGame(ctx, sess.ID, "bot0"); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	// the human holds the first speaking turn
	orch.RunTurns(ctx, sess.ID)
	if completer.calls != 0 {
		t.Fatalf("completer called %d times while a human holds the turn", completer.calls)
	}

	if _, err := engine.SubmitSpeech(ctx, sess.ID, "bot0", "I had mine this morning"); err != nil {
		t.Fatalf("human speech: %v", err)
	}
	orch.RunTurns(ctx, sess.ID)

	cur, _ := engine.Load(ctx, sess.ID)
	if cur.Phase != game.PhaseVoting || cur.CurrentVoter != "bot0" {
		t.Fatalf("expected voting paused on human, got phase=%s voter=%s", cur.Phase, cur.CurrentVoter)
	}
	// the two AI speeches
	if completer.calls != 2 {
		t.Fatalf("completer calls = %d, want 2", completer.calls)
	}
}

func TestRunTurnsFallsBackWhenModelsFail(t *testing.T) {
	completer := &scriptedCompleter{failAlways: true}
	orch, engine, store := orchestratorRig(t, completer)
	ctx := context.Background()

	sess, err := engine.CreateGame(ctx, game.CreateGameParams{RoomID: "r", Roster: aiRoster(3)})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if _, err := engine.StartGame(ctx, sess.ID, "bot0"); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	orch.RunTurns(ctx, sess.ID)

	final, _ := engine.Load(ctx, sess.ID)
	if final.Phase != game.PhaseFinished {
		t.Fatalf("phase = %s, want finished despite model failures", final.Phase)
	}
	speeches, _ := store.ListSpeeches(ctx, sess.ID)
	for _, sp := range speeches {
		if sp.Content != neutralSpeech {
			t.Fatalf("expected filler speech, got %q", sp.Content)
		}
	}
}

func TestRunTurnsAbortsWhenSessionForceEnded(t *testing.T) {
	completer := &scriptedCompleter{}
	orch, engine, _ := orchestratorRig(t, completer)
	ctx := context.Background()

	sess, err := engine.CreateGame(ctx, game.CreateGameParams{RoomID: "r", Roster: aiRoster(3)})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if _, err := engine.StartGame(ctx, sess.ID, "bot0"); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if _, err := engine.ForceEnd(ctx, sess.ID, "test"); err != nil {
		t.Fatalf("ForceEnd: %v", err)
	}

	orch.RunTurns(ctx, sess.ID)
	if completer.calls != 0 {
		t.Fatalf("completer called %d times on a finished session", completer.calls)
	}
}

func TestScheduleDeduplicatesRuns(t *testing.T) {
	orch := NewOrchestrator(blockedEngine{}, &scriptedCompleter{}, config.AIConfig{MaxIterations: 1}, nil)

	orch.mu.Lock()
	orch.running["g1"] = true
	orch.mu.Unlock()

	// must return immediately without spawning a second run
	orch.Schedule("g1")
	orch.mu.Lock()
	defer orch.mu.Unlock()
	if !orch.running["g1"] {
		t.Fatal("running flag lost")
	}
}

type blockedEngine struct{}

func (blockedEngine) Load(context.Context, string) (*game.Session, error) {
	return nil, errors.New("must not be called")
}
func (blockedEngine) BuildTurnContext(context.Context, string) (*game.TurnContext, error) {
	return nil, errors.New("must not be called")
}
func (blockedEngine) SubmitSpeech(context.Context, string, string, string) (*game.Session, error) {
	return nil, errors.New("must not be called")
}
func (blockedEngine) SubmitVote(context.Context, string, string, string) (*game.Session, error) {
	return nil, errors.New("must not be called")
}
