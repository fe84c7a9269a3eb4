package game_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"undercover-arena/internal/game"
	"undercover-arena/internal/testutil"
)

type testRig struct {
	engine  *game.Engine
	store   *testutil.MemStore
	hub     *testutil.RecordingHub
	settler *testutil.RecordingSettler
}

func newTestRig(seed int64) *testRig {
	store := testutil.NewMemStore()
	hub := testutil.NewRecordingHub()
	settler := &testutil.RecordingSettler{}
	words := testutil.StaticWords{Majority: "coffee", Minority: "tea", Ref: "coffee/tea"}
	engine := game.NewEngine(store, game.NewRegistry(), hub, words, settler, rand.New(rand.NewSource(seed)))
	return &testRig{engine: engine, store: store, hub: hub, settler: settler}
}

func roster(n int) []game.RosterEntry {
	out := make([]game.RosterEntry, n)
	for i := range out {
		out[i] = game.RosterEntry{
			ID:    fmt.Sprintf("p%d", i),
			Name:  fmt.Sprintf("player %d", i),
			Ready: true,
		}
	}
	return out
}

func createStarted(t *testing.T, rig *testRig, n int) *game.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := rig.engine.CreateGame(ctx, game.CreateGameParams{RoomID: "room-1", Roster: roster(n)})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	sess, err = rig.engine.StartGame(ctx, sess.ID, sess.Participants[0].ID)
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return sess
}

// speakRound submits a speech for every alive participant in turn order,
// leaving the session in Voting.
func speakRound(t *testing.T, rig *testRig, sessionID string) *game.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := rig.engine.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for sess.Phase == game.PhaseSpeaking {
		sess, err = rig.engine.SubmitSpeech(ctx, sessionID, sess.CurrentSpeaker, "something plausibly vague about my word")
		if err != nil {
			t.Fatalf("SubmitSpeech(%s): %v", sess.CurrentSpeaker, err)
		}
	}
	return sess
}

// voteRoundFor has every alive voter vote for target (the target votes for
// the first other alive participant), leaving the session past the tally.
func voteRoundFor(t *testing.T, rig *testRig, sessionID, target string) *game.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := rig.engine.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for sess.Phase == game.PhaseVoting {
		voter := sess.CurrentVoter
		choice := target
		if voter == target {
			for _, p := range sess.Alive() {
				if p.ID != voter {
					choice = p.ID
					break
				}
			}
		}
		sess, err = rig.engine.SubmitVote(ctx, sessionID, voter, choice)
		if err != nil {
			t.Fatalf("SubmitVote(%s -> %s): %v", voter, choice, err)
		}
	}
	return sess
}

func pickByRole(sess *game.Session, role game.Role) *game.Participant {
	for _, p := range sess.Alive() {
		if p.Role == role {
			return p
		}
	}
	return nil
}

func TestCreateGameRosterBounds(t *testing.T) {
	rig := newTestRig(1)
	ctx := context.Background()
	for _, n := range []int{0, 1, 2, 11} {
		_, err := rig.engine.CreateGame(ctx, game.CreateGameParams{RoomID: "r", Roster: roster(n)})
		ia, ok := game.AsInvalidAction(err)
		if !ok || ia.Code != "invalid_player_count" {
			t.Fatalf("n=%d: err = %v, want invalid_player_count", n, err)
		}
	}
}

func TestCreateGameAssignsWordsAndNotifiesPrivately(t *testing.T) {
	rig := newTestRig(2)
	sess, err := rig.engine.CreateGame(context.Background(), game.CreateGameParams{RoomID: "room-1", Roster: roster(5)})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if sess.Phase != game.PhasePreparing || sess.Round != 1 {
		t.Fatalf("new session phase=%s round=%d", sess.Phase, sess.Round)
	}

	minority := 0
	for _, p := range sess.Participants {
		if p.Word == "" {
			t.Fatalf("%s has no word", p.ID)
		}
		if p.Role == game.RoleMinority {
			minority++
		}
		// each human gets exactly one private word delivery
		evs := rig.hub.Direct[p.ID]
		if len(evs) != 1 || evs[0].Data["word"] != p.Word {
			t.Fatalf("%s private events = %+v", p.ID, evs)
		}
	}
	if minority != 1 {
		t.Fatalf("minority count = %d, want 1", minority)
	}

	if got := rig.hub.RoomEvents(game.EventGameCreated); len(got) != 1 {
		t.Fatalf("game_created broadcasts = %d, want 1", len(got))
	}
}

func TestStartGameRequiresAllReady(t *testing.T) {
	rig := newTestRig(3)
	ctx := context.Background()
	entries := roster(4)
	entries[2].Ready = false
	sess, err := rig.engine.CreateGame(ctx, game.CreateGameParams{RoomID: "r", Roster: entries})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	_, err = rig.engine.StartGame(ctx, sess.ID, "p0")
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "not_ready" {
		t.Fatalf("err = %v, want not_ready", err)
	}

	// session untouched by the rejection
	cur, _ := rig.store.GetSession(ctx, sess.ID)
	if cur.Phase != game.PhasePreparing {
		t.Fatalf("phase = %s after rejected start", cur.Phase)
	}
}

func TestStartGameTwiceRejected(t *testing.T) {
	rig := newTestRig(4)
	sess := createStarted(t, rig, 4)
	_, err := rig.engine.StartGame(context.Background(), sess.ID, "p0")
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "wrong_phase" {
		t.Fatalf("err = %v, want wrong_phase", err)
	}
}

func TestSubmitSpeechValidation(t *testing.T) {
	rig := newTestRig(5)
	sess := createStarted(t, rig, 4)
	ctx := context.Background()

	// out of turn
	notCurrent := ""
	for _, p := range sess.Participants {
		if p.ID != sess.CurrentSpeaker {
			notCurrent = p.ID
			break
		}
	}
	_, err := rig.engine.SubmitSpeech(ctx, sess.ID, notCurrent, "hello there")
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "not_your_turn" {
		t.Fatalf("out of turn err = %v", err)
	}

	// content bounds
	_, err = rig.engine.SubmitSpeech(ctx, sess.ID, sess.CurrentSpeaker, "x")
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "invalid_content" {
		t.Fatalf("short content err = %v", err)
	}
	_, err = rig.engine.SubmitSpeech(ctx, sess.ID, sess.CurrentSpeaker, strings.Repeat("a", 501))
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "invalid_content" {
		t.Fatalf("long content err = %v", err)
	}

	// unknown actor
	_, err = rig.engine.SubmitSpeech(ctx, sess.ID, "stranger", "hello there")
	if !errors.Is(err, game.ErrNotFound) {
		t.Fatalf("unknown actor err = %v", err)
	}
}

func TestSpeechRotationEntersVoting(t *testing.T) {
	rig := newTestRig(6)
	sess := createStarted(t, rig, 3)
	sess = speakRound(t, rig, sess.ID)

	if sess.Phase != game.PhaseVoting {
		t.Fatalf("phase = %s, want voting", sess.Phase)
	}
	if sess.CurrentVoter == "" || sess.CurrentSpeaker != "" {
		t.Fatalf("turn fields: speaker=%q voter=%q", sess.CurrentSpeaker, sess.CurrentVoter)
	}
	if got := rig.hub.RoomEvents(game.EventPhaseChanged); len(got) != 1 {
		t.Fatalf("phase_changed broadcasts = %d, want 1", len(got))
	}

	speeches, _ := rig.store.ListSpeeches(context.Background(), sess.ID)
	if len(speeches) != 3 {
		t.Fatalf("recorded speeches = %d, want 3", len(speeches))
	}
	for i, sp := range speeches {
		if sp.Seq != i+1 {
			t.Fatalf("speech %d has seq %d", i, sp.Seq)
		}
	}
}

func TestSkipSpeechAdvancesWithoutRecord(t *testing.T) {
	rig := newTestRig(7)
	sess := createStarted(t, rig, 3)
	first := sess.CurrentSpeaker

	sess, err := rig.engine.SkipSpeech(context.Background(), sess.ID, first)
	if err != nil {
		t.Fatalf("SkipSpeech: %v", err)
	}
	if sess.CurrentSpeaker == first {
		t.Fatal("skip did not advance the turn")
	}
	speeches, _ := rig.store.ListSpeeches(context.Background(), sess.ID)
	if len(speeches) != 0 {
		t.Fatalf("skip recorded %d speeches", len(speeches))
	}
	evs := rig.hub.RoomEvents(game.EventSpeechSubmitted)
	if len(evs) != 1 || evs[0].Data["skipped"] != true {
		t.Fatalf("skip events = %+v", evs)
	}
}

func TestSubmitVoteValidation(t *testing.T) {
	rig := newTestRig(8)
	sess := createStarted(t, rig, 4)

	ctx := context.Background()
	// voting before the speaking cycle completes
	_, err := rig.engine.SubmitVote(ctx, sess.ID, sess.CurrentSpeaker, "p1")
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "wrong_phase" {
		t.Fatalf("early vote err = %v", err)
	}

	sess = speakRound(t, rig, sess.ID)
	voter := sess.CurrentVoter

	_, err = rig.engine.SubmitVote(ctx, sess.ID, voter, voter)
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "self_vote" {
		t.Fatalf("self vote err = %v", err)
	}
	_, err = rig.engine.SubmitVote(ctx, sess.ID, voter, "nobody")
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "invalid_target" {
		t.Fatalf("missing target err = %v", err)
	}
}

func TestVoteResubmissionOverwrites(t *testing.T) {
	rig := newTestRig(9)
	sess := createStarted(t, rig, 4)
	sess = speakRound(t, rig, sess.ID)

	ctx := context.Background()
	voter := sess.CurrentVoter
	var first, second string
	for _, p := range sess.Alive() {
		if p.ID == voter {
			continue
		}
		if first == "" {
			first = p.ID
		} else if second == "" {
			second = p.ID
		}
	}

	if _, err := rig.engine.SubmitVote(ctx, sess.ID, voter, first); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	// after advancing, a resubmission is out of turn; overwrite happens at
	// the store level for the same (round, voter)
	if err := rig.store.UpsertVote(ctx, &game.Vote{SessionID: sess.ID, Round: sess.Round, VoterID: voter, TargetID: second}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	votes, _ := rig.store.ListVotes(ctx, sess.ID, sess.Round)
	count := 0
	for _, v := range votes {
		if v.VoterID == voter {
			count++
			if v.TargetID != second {
				t.Fatalf("vote target = %s, want %s", v.TargetID, second)
			}
		}
	}
	if count != 1 {
		t.Fatalf("voter has %d votes recorded, want 1", count)
	}
}

func TestMajorityWinsWhenMinorityEliminated(t *testing.T) {
	rig := newTestRig(10)
	sess := createStarted(t, rig, 5)

	// round 1: eliminate a majority player, game continues
	sess = speakRound(t, rig, sess.ID)
	maj := pickByRole(sess, game.RoleMajority)
	sess = voteRoundFor(t, rig, sess.ID, maj.ID)

	if sess.Phase != game.PhaseSpeaking || sess.Round != 2 {
		t.Fatalf("after round 1: phase=%s round=%d", sess.Phase, sess.Round)
	}
	if len(sess.Alive()) != 4 {
		t.Fatalf("alive = %d, want 4", len(sess.Alive()))
	}
	if !sess.IsEliminated(maj.ID) {
		t.Fatalf("%s not recorded as eliminated", maj.ID)
	}

	// round 2: eliminate the minority, majority wins
	sess = speakRound(t, rig, sess.ID)
	min := pickByRole(sess, game.RoleMinority)
	sess = voteRoundFor(t, rig, sess.ID, min.ID)

	if sess.Phase != game.PhaseFinished {
		t.Fatalf("phase = %s, want finished", sess.Phase)
	}
	if sess.WinnerRole != game.RoleMajority {
		t.Fatalf("winner = %s, want majority", sess.WinnerRole)
	}
	if len(sess.WinnerIDs) != 4 {
		t.Fatalf("winner ids = %v", sess.WinnerIDs)
	}
	if sess.FinishedAt == nil {
		t.Fatal("FinishedAt not set")
	}

	ended := rig.hub.RoomEvents(game.EventGameEnded)
	if len(ended) != 1 || ended[0].Data["winner_role"] != "majority" {
		t.Fatalf("game_ended events = %+v", ended)
	}
	if len(rig.settler.Events) != 1 || rig.settler.Events[0].SessionID != sess.ID {
		t.Fatalf("settlement events = %+v", rig.settler.Events)
	}
}

func TestMinorityWinsOnParity(t *testing.T) {
	rig := newTestRig(11)
	sess := createStarted(t, rig, 5)

	// eliminate majority players until 1 minority vs 1 majority remain
	for round := 1; round <= 3; round++ {
		sess = speakRound(t, rig, sess.ID)
		maj := pickByRole(sess, game.RoleMajority)
		sess = voteRoundFor(t, rig, sess.ID, maj.ID)
		if sess.Phase == game.PhaseFinished {
			break
		}
	}

	if sess.Phase != game.PhaseFinished {
		t.Fatalf("phase = %s, want finished", sess.Phase)
	}
	if sess.WinnerRole != game.RoleMinority {
		t.Fatalf("winner = %s, want minority", sess.WinnerRole)
	}
	if len(sess.WinnerIDs) != 1 {
		t.Fatalf("winner ids = %v, want the single minority player", sess.WinnerIDs)
	}
}

func TestEliminationEventRevealsRole(t *testing.T) {
	rig := newTestRig(12)
	sess := createStarted(t, rig, 4)
	sess = speakRound(t, rig, sess.ID)
	maj := pickByRole(sess, game.RoleMajority)
	voteRoundFor(t, rig, sess.ID, maj.ID)

	evs := rig.hub.RoomEvents(game.EventPlayerEliminated)
	if len(evs) != 1 {
		t.Fatalf("player_eliminated events = %d", len(evs))
	}
	data := evs[0].Data
	if data["player_id"] != maj.ID || data["role"] != "majority" || data["round"] != 1 {
		t.Fatalf("elimination data = %+v", data)
	}
}

func TestForceEnd(t *testing.T) {
	rig := newTestRig(13)
	sess := createStarted(t, rig, 4)

	sess, err := rig.engine.ForceEnd(context.Background(), sess.ID, "room closed by admin")
	if err != nil {
		t.Fatalf("ForceEnd: %v", err)
	}
	if sess.Phase != game.PhaseFinished || sess.WinnerRole != "" {
		t.Fatalf("force end state: phase=%s winner=%q", sess.Phase, sess.WinnerRole)
	}
	if sess.ForceEndReason != "room closed by admin" {
		t.Fatalf("reason = %q", sess.ForceEndReason)
	}
	if len(rig.settler.Events) != 0 {
		t.Fatalf("force end must not settle, got %+v", rig.settler.Events)
	}

	_, err = rig.engine.ForceEnd(context.Background(), sess.ID, "again")
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "wrong_phase" {
		t.Fatalf("second force end err = %v", err)
	}
}

func TestFinishedSessionRejectsMoves(t *testing.T) {
	rig := newTestRig(14)
	sess := createStarted(t, rig, 4)
	if _, err := rig.engine.ForceEnd(context.Background(), sess.ID, "cleanup"); err != nil {
		t.Fatalf("ForceEnd: %v", err)
	}
	_, err := rig.engine.SubmitSpeech(context.Background(), sess.ID, "p0", "too late now")
	if ia, ok := game.AsInvalidAction(err); !ok || ia.Code != "wrong_phase" {
		t.Fatalf("err = %v, want wrong_phase", err)
	}
}

func TestSnapshotHidesRolesUntilFinished(t *testing.T) {
	rig := newTestRig(15)
	sess := createStarted(t, rig, 4)

	snap, err := rig.engine.GetState(context.Background(), sess.ID, "p0")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	for _, p := range snap.Players {
		if p.Role != "" {
			t.Fatalf("live snapshot leaked role for %s", p.ID)
		}
	}
	if snap.YourWord == "" {
		t.Fatal("viewer's own word missing from snapshot")
	}

	spectator, _ := rig.engine.GetState(context.Background(), sess.ID, "")
	if spectator.YourWord != "" {
		t.Fatalf("spectator snapshot has a word: %q", spectator.YourWord)
	}

	rig.engine.ForceEnd(context.Background(), sess.ID, "done")
	final, _ := rig.engine.GetState(context.Background(), sess.ID, "p0")
	for _, p := range final.Players {
		if p.Role == "" {
			t.Fatalf("finished snapshot hides role for %s", p.ID)
		}
	}
}

func TestUpdateConflictSurfaces(t *testing.T) {
	rig := newTestRig(16)
	sess := createStarted(t, rig, 4)
	rig.store.UpdateErr = game.ErrConflict

	_, err := rig.engine.SkipSpeech(context.Background(), sess.ID, sess.CurrentSpeaker)
	if !errors.Is(err, game.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestSchedulerFiresForAITurns(t *testing.T) {
	rig := newTestRig(17)
	var scheduled []string
	rig.engine.Scheduler = schedulerFunc(func(id string) { scheduled = append(scheduled, id) })

	entries := roster(3)
	for i := range entries {
		entries[i].IsAI = true
		entries[i].Model = game.ModelConfig{Model: "test-model"}
	}
	ctx := context.Background()
	sess, err := rig.engine.CreateGame(ctx, game.CreateGameParams{RoomID: "r", Roster: entries})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if _, err := rig.engine.StartGame(ctx, sess.ID, "p0"); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if len(scheduled) != 1 || scheduled[0] != sess.ID {
		t.Fatalf("scheduled = %v", scheduled)
	}
}

type schedulerFunc func(string)

func (f schedulerFunc) Schedule(sessionID string) { f(sessionID) }

func TestRoundTransitionEventOrder(t *testing.T) {
	rig := newTestRig(21)
	sess := createStarted(t, rig, 5)
	speakRound(t, rig, sess.ID)
	target := pickByRole(sess, game.RoleMajority)
	sess = voteRoundFor(t, rig, sess.ID, target.ID)
	if sess.Phase != game.PhaseSpeaking || sess.Round != 2 {
		t.Fatalf("phase=%s round=%d, want speaking round 2", sess.Phase, sess.Round)
	}

	// clients replaying the stream must see the elimination, then the phase
	// change back to speaking, then the new round announcement
	lastIdx := func(typ string) int {
		idx := -1
		for i, ev := range rig.hub.Room {
			if ev.Type == typ {
				idx = i
			}
		}
		return idx
	}
	elim := lastIdx(game.EventPlayerEliminated)
	phase := lastIdx(game.EventPhaseChanged)
	round := lastIdx(game.EventRoundStarted)
	if elim == -1 || phase == -1 || round == -1 {
		t.Fatalf("missing transition events: eliminated=%d phase_changed=%d round_started=%d", elim, phase, round)
	}
	if elim >= phase || phase >= round {
		t.Fatalf("event order eliminated=%d phase_changed=%d round_started=%d, want eliminated < phase_changed < round_started", elim, phase, round)
	}
}

func TestBuildTurnContext(t *testing.T) {
	rig := newTestRig(18)
	sess := createStarted(t, rig, 4)
	sess = speakRound(t, rig, sess.ID)

	tc, err := rig.engine.BuildTurnContext(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("BuildTurnContext: %v", err)
	}
	if tc.Round != 1 || tc.Phase != game.PhaseVoting {
		t.Fatalf("context round=%d phase=%s", tc.Round, tc.Phase)
	}
	if len(tc.Speeches) != 4 {
		t.Fatalf("speeches = %d, want 4", len(tc.Speeches))
	}
	if !tc.FinalRound {
		t.Fatal("4 alive should flag the final-round hint")
	}
}
