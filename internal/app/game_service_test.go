package app_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

func TestCreateAddsHostAsOnlyPlayer(t *testing.T) {
	h := newHarness(t)
	created, err := h.svc.Create(t.Context(), app.CreateRequest{HostNickname: "Host"})
	require.NoError(t, err)
	require.True(t, domain.ValidJoinCode(created.JoinCode))
	require.NotEmpty(t, created.HostToken)

	s := h.session(t, created.SessionID)
	require.Equal(t, domain.StatusWaiting, s.Status)
	require.Len(t, s.Players, 1)
	require.True(t, s.Players[0].IsHost)
	require.Equal(t, created.HostPlayerID, s.HostID)
	require.Len(t, s.Questions, 20)
	for _, q := range s.Questions {
		require.Equal(t, 30*time.Second, q.TimeLimit)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	_, err := h.svc.Create(ctx, app.CreateRequest{HostNickname: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidNickname)

	_, err = h.svc.Create(ctx, app.CreateRequest{HostNickname: "Host", Settings: domain.Settings{MaxPlayers: 1}})
	require.ErrorIs(t, err, domain.ErrInvalidSettings)

	_, err = h.svc.Create(ctx, app.CreateRequest{HostNickname: "Host", Settings: domain.Settings{QuestionCount: 30}})
	require.ErrorIs(t, err, domain.ErrNotEnoughQuestions)

	_, err = h.svc.Create(ctx, app.CreateRequest{HostNickname: "Host", Settings: domain.Settings{QuestionPack: "health"}})
	require.ErrorIs(t, err, domain.ErrNotEnoughQuestions)
}

func TestCreateRetriesJoinCodeCollisions(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "AAAAAA", "BBBBBB"}
	next := 0
	gen := func() string {
		c := codes[min(next, len(codes)-1)]
		next++
		return c
	}
	h := newHarness(t, app.WithCodeGenerator(gen))

	first, err := h.svc.Create(t.Context(), app.CreateRequest{HostNickname: "Host"})
	require.NoError(t, err)
	require.Equal(t, "AAAAAA", first.JoinCode)

	second, err := h.svc.Create(t.Context(), app.CreateRequest{HostNickname: "Host"})
	require.NoError(t, err)
	require.Equal(t, "BBBBBB", second.JoinCode)
	require.Equal(t, 4, next)
}

func TestCreateGivesUpAfterMaxJoinCodeAttempts(t *testing.T) {
	calls := 0
	h := newHarness(t, app.WithCodeGenerator(func() string { calls++; return "SAME00" }))

	_, err := h.svc.Create(t.Context(), app.CreateRequest{HostNickname: "Host"})
	require.NoError(t, err)
	calls = 0

	_, err = h.svc.Create(t.Context(), app.CreateRequest{HostNickname: "Host"})
	require.ErrorIs(t, err, domain.ErrJoinCodeExhausted)
	require.Equal(t, app.MaxJoinCodeAttempts, calls)
}

func TestJoinBroadcastsRoster(t *testing.T) {
	h := newHarness(t)
	l := h.lobby(t, domain.Settings{}, "Ann")
	id := l.created.SessionID

	require.Equal(t, []string{domain.EventPlayerJoined, domain.EventLobbyUpdated}, h.notifier.types(id))
	lobby := h.notifier.last(t, id, domain.EventLobbyUpdated).(domain.LobbyUpdated)
	require.Len(t, lobby.Players, 2)
	require.Equal(t, "Ann", lobby.Players[1].Nickname)
	require.Equal(t, 30, lobby.Settings.TimePerQuestion)
}

func TestJoinValidation(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{})

	_, err := h.svc.Join(ctx, "abc", "Ann")
	require.ErrorIs(t, err, domain.ErrInvalidJoinCode)
	_, err = h.svc.Join(ctx, l.created.JoinCode, "no spaces")
	require.ErrorIs(t, err, domain.ErrInvalidNickname)
	_, err = h.svc.Join(ctx, "ZZZZZZ", "Ann")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.Zero(t, h.svc.ActiveRooms(), "unknown code must not leave room bookkeeping")
}

// Nicknames collide case-insensitively.
func TestJoinRejectsTakenNickname(t *testing.T) {
	h := newHarness(t)
	l := h.lobby(t, domain.Settings{}, "Bob")

	_, err := h.svc.Join(t.Context(), l.created.JoinCode, "bob")
	require.ErrorIs(t, err, domain.ErrNameTaken)
	require.Len(t, h.session(t, l.created.SessionID).Players, 2)
}

func TestJoinRejectsFullRoom(t *testing.T) {
	h := newHarness(t)
	l := h.lobby(t, domain.Settings{MaxPlayers: 3}, "Ann", "Ben")

	_, err := h.svc.Join(t.Context(), l.created.JoinCode, "Cleo")
	require.ErrorIs(t, err, domain.ErrGameFull)
}

func TestStartRules(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{})
	id := l.created.SessionID

	require.ErrorIs(t, h.svc.Start(ctx, id, l.created.HostPlayerID), domain.ErrNotEnoughPlayers)

	joined, err := h.svc.Join(ctx, l.created.JoinCode, "Ann")
	require.NoError(t, err)
	require.ErrorIs(t, h.svc.Start(ctx, id, joined.PlayerID), domain.ErrNotHost)
	require.ErrorIs(t, h.svc.Start(ctx, "missing", l.created.HostPlayerID), domain.ErrSessionNotFound)

	require.NoError(t, h.svc.Start(ctx, id, l.created.HostPlayerID))
	require.ErrorIs(t, h.svc.Start(ctx, id, l.created.HostPlayerID), domain.ErrGameStarted)

	_, err = h.svc.Join(ctx, l.created.JoinCode, "Late")
	require.ErrorIs(t, err, domain.ErrGameStarted)

	s := h.session(t, id)
	require.Equal(t, domain.StatusInProgress, s.Status)
	require.NotNil(t, s.StartedAt)
	require.NotNil(t, s.QuestionStartedAt)

	shown := h.notifier.last(t, id, domain.EventQuestionDisplayed).(domain.QuestionDisplayed)
	require.Equal(t, 1, shown.QuestionNumber)
	require.Equal(t, 20, shown.TotalQuestions)
	require.Equal(t, 30, shown.TimeLimit)

	pending := h.sched.pending()
	require.Len(t, pending, 1)
	require.Equal(t, 32*time.Second, pending[0].d)
}

// Two fast correct answers and one timeout: only responders are scored.
func TestRoundTimerScoresRespondersOnly(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{}, "Ann", "Ben")
	id := l.created.SessionID
	host, ann, ben := l.players[0], l.players[1], l.players[2]
	require.NoError(t, h.svc.Start(ctx, id, host))

	require.NoError(t, h.answer(t, id, ann, 2, 26*time.Second))
	require.NoError(t, h.answer(t, id, ben, 2, 25*time.Second))
	require.Equal(t, 0, h.notifier.count(id, domain.EventQuestionResults), "round must wait for the host or the timer")

	require.Equal(t, 32*time.Second, h.sched.fireNext(t))

	s := h.session(t, id)
	require.Equal(t, 1, s.CurrentQuestionIndex)
	annP, _ := s.Player(ann)
	benP, _ := s.Player(ben)
	hostP, _ := s.Player(host)
	require.Equal(t, 716, annP.Score)
	require.Equal(t, 708, benP.Score)
	require.Len(t, annP.Answers, 1)
	require.True(t, annP.Answers[0].IsCorrect)
	require.Zero(t, hostP.Score)
	require.Empty(t, hostP.Answers)

	results := h.notifier.last(t, id, domain.EventQuestionResults).(domain.QuestionResults)
	require.Equal(t, 2, results.CorrectAnswer)
	require.Equal(t, "because", results.Explanation)
	require.Equal(t, "Org", results.Citation.Organization)
	require.Len(t, results.PlayerAnswers, 2)
	require.Equal(t, ann, results.Leaderboard[0].PlayerID)
	require.Equal(t, host, results.Leaderboard[2].PlayerID)

	// the results pause leads into the next question
	require.Equal(t, 5*time.Second, h.sched.fireNext(t))
	shown := h.notifier.last(t, id, domain.EventQuestionDisplayed).(domain.QuestionDisplayed)
	require.Equal(t, 2, shown.QuestionNumber)
}

// The host leaving ends the game for everyone.
func TestHostDisconnectEndsGame(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{}, "Ann", "Ben")
	id := l.created.SessionID
	require.NoError(t, h.svc.Start(ctx, id, l.players[0]))
	require.NoError(t, h.answer(t, id, l.players[1], 2, 20*time.Second))

	require.NoError(t, h.svc.Disconnect(ctx, id, l.players[0]))

	ended := h.notifier.last(t, id, domain.EventGameEnded).(domain.GameEnded)
	require.Equal(t, domain.StatusFinished, ended.Status)
	require.Equal(t, "host disconnected", ended.Reason)
	require.Len(t, ended.FinalResults.PlayerResults, 3)

	s := h.session(t, id)
	require.Equal(t, domain.StatusFinished, s.Status)
	require.NotNil(t, s.FinishedAt)
	require.Equal(t, "host disconnected", s.EndReason)

	// only the teardown remains; the round timer is gone
	pending := h.sched.pending()
	require.Len(t, pending, 1)
	require.Equal(t, 30*time.Second, h.sched.fireNext(t))
	require.Equal(t, []string{id}, h.notifier.released)

	types := h.notifier.types(id)
	endedAt := slices.Index(types, domain.EventGameEnded)
	require.NotContains(t, types[endedAt:], domain.EventQuestionDisplayed)
	require.Equal(t, 1, h.notifier.count(id, domain.EventGameEnded))

	require.NoError(t, h.svc.Disconnect(ctx, id, l.players[1]), "finished games ignore disconnects")
}

// A second answer is rejected and the first stands.
func TestDuplicateAnswerRejected(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{}, "Ann", "Ben")
	id := l.created.SessionID
	require.NoError(t, h.svc.Start(ctx, id, l.players[0]))

	require.NoError(t, h.answer(t, id, l.players[1], 1, 20*time.Second))
	require.ErrorIs(t, h.answer(t, id, l.players[1], 2, 19*time.Second), domain.ErrAlreadyAnswered)
	require.Equal(t, 1, h.notifier.count(id, domain.EventAnswerSubmitted))

	h.sched.fireNext(t)
	sess := h.session(t, id)
	ann, _ := sess.Player(l.players[1])
	require.Len(t, ann.Answers, 1)
	require.Equal(t, 1, ann.Answers[0].SelectedOption)
	require.False(t, ann.Answers[0].IsCorrect)
	require.Zero(t, ann.Score)
}

func TestCloseRoundIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{}, "Ann")
	id := l.created.SessionID
	require.NoError(t, h.svc.Start(ctx, id, l.players[0]))
	roundTimer := h.sched.pending()[0]

	require.NoError(t, h.answer(t, id, l.players[0], 2, 30*time.Second))
	require.NoError(t, h.answer(t, id, l.players[1], 2, 15*time.Second))
	require.Equal(t, 1, h.notifier.count(id, domain.EventQuestionResults), "all answered closes the round")
	require.True(t, roundTimer.stopped)

	before := h.session(t, id)

	// a timer callback that lost the race and a manual close both do nothing
	roundTimer.f()
	require.NoError(t, h.svc.CloseRound(ctx, id, 0))

	after := h.session(t, id)
	require.Equal(t, 1, h.notifier.count(id, domain.EventQuestionResults))
	require.Equal(t, before.CurrentQuestionIndex, after.CurrentQuestionIndex)
	for i := range after.Players {
		require.Len(t, after.Players[i].Answers, 1)
		require.Equal(t, before.Players[i].Score, after.Players[i].Score)
	}

	results := h.notifier.last(t, id, domain.EventQuestionResults).(domain.QuestionResults)
	require.Equal(t, 750, results.PlayerAnswers[0].PointsEarned)
	require.Equal(t, 625, results.PlayerAnswers[1].PointsEarned)
}

func TestSubmitAnswerValidation(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{}, "Ann", "Ben")
	id := l.created.SessionID
	ann := l.players[1]

	require.ErrorIs(t, h.svc.SubmitAnswer(ctx, id, domain.Submission{PlayerID: ann, QuestionID: "q01"}), domain.ErrNotInProgress)
	require.NoError(t, h.svc.Start(ctx, id, l.players[0]))

	q := h.currentQuestion(t, id)
	require.ErrorIs(t, h.svc.SubmitAnswer(ctx, id, domain.Submission{PlayerID: "ghost", QuestionID: q.ID}), domain.ErrPlayerNotFound)
	require.ErrorIs(t, h.svc.SubmitAnswer(ctx, id, domain.Submission{PlayerID: ann, QuestionID: q.ID, Option: 4}), domain.ErrInvalidAnswer)
	require.ErrorIs(t, h.svc.SubmitAnswer(ctx, id, domain.Submission{PlayerID: ann, QuestionID: "nope"}), domain.ErrWrongQuestion)
	require.Equal(t, 0, h.notifier.count(id, domain.EventAnswerSubmitted))

	// late answers after the timer closed the round are rejected
	h.sched.fireNext(t)
	require.ErrorIs(t, h.svc.SubmitAnswer(ctx, id, domain.Submission{PlayerID: ann, QuestionID: q.ID}), domain.ErrWrongQuestion)
	next := h.currentQuestion(t, id)
	require.ErrorIs(t, h.svc.SubmitAnswer(ctx, id, domain.Submission{PlayerID: ann, QuestionID: next.ID}), domain.ErrWrongQuestion,
		"the next round is not open during the results pause")
}

func TestGamePlaysToTheEnd(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{QuestionCount: 2}, "Ann")
	id := l.created.SessionID
	host, ann := l.players[0], l.players[1]
	require.NoError(t, h.svc.Start(ctx, id, host))

	for round := 0; round < 2; round++ {
		h.clock.Advance(10 * time.Second)
		require.NoError(t, h.answer(t, id, host, 2, 20*time.Second))
		require.NoError(t, h.answer(t, id, ann, 0, 10*time.Second))
		require.Equal(t, 5*time.Second, h.sched.fireNext(t))
	}

	s := h.session(t, id)
	require.Equal(t, domain.StatusFinished, s.Status)
	require.Equal(t, 2, s.CurrentQuestionIndex)
	require.Equal(t, 2, h.notifier.count(id, domain.EventQuestionDisplayed))

	ended := h.notifier.last(t, id, domain.EventGameEnded).(domain.GameEnded)
	require.Empty(t, ended.Reason)
	res := ended.FinalResults
	require.Equal(t, id, res.GameID)
	require.Equal(t, 2, res.GameStats.TotalQuestions)
	require.InDelta(t, 50.0, res.GameStats.AverageAccuracy, 0.001)
	require.InDelta(t, 10.0, res.GameStats.FastestAnswer, 0.001)
	require.InDelta(t, 20.0, res.GameStats.SlowestAnswer, 0.001)
	require.Equal(t, int64(20000), res.GameStats.TotalPlayTime)
	require.Equal(t, host, res.PlayerResults[0].PlayerID)
	require.Equal(t, 2, res.PlayerResults[0].CorrectAnswers)
	require.Equal(t, 2, res.PlayerResults[1].Rank)

	require.Equal(t, 30*time.Second, h.sched.fireNext(t))
	require.Equal(t, []string{id}, h.notifier.released)
	require.Empty(t, h.sched.pending())
}

func TestNonHostDisconnectKeepsRoundGoing(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{}, "Ann", "Ben")
	id := l.created.SessionID
	host, ann, ben := l.players[0], l.players[1], l.players[2]
	require.NoError(t, h.svc.Start(ctx, id, host))

	require.NoError(t, h.answer(t, id, ann, 2, 20*time.Second))
	require.NoError(t, h.svc.Disconnect(ctx, id, ann))

	left := h.notifier.last(t, id, domain.EventPlayerLeft).(domain.PlayerLeft)
	require.Equal(t, ann, left.PlayerID)
	require.Len(t, h.session(t, id).Players, 2)
	require.Len(t, h.sched.pending(), 1, "round timer stays armed")

	require.NoError(t, h.answer(t, id, host, 2, 20*time.Second))
	require.NoError(t, h.answer(t, id, ben, 2, 20*time.Second))

	results := h.notifier.last(t, id, domain.EventQuestionResults).(domain.QuestionResults)
	require.Len(t, results.PlayerAnswers, 2)
	for _, a := range results.PlayerAnswers {
		require.NotEqual(t, ann, a.PlayerID)
	}
}

func TestKick(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{}, "Ann", "Ben")
	id := l.created.SessionID
	host, ann, ben := l.players[0], l.players[1], l.players[2]

	require.ErrorIs(t, h.svc.Kick(ctx, id, ann, ben), domain.ErrNotHost)
	require.ErrorIs(t, h.svc.Kick(ctx, id, host, host), domain.ErrCannotKick)
	require.ErrorIs(t, h.svc.Kick(ctx, id, host, "ghost"), domain.ErrCannotKick)

	require.NoError(t, h.svc.Kick(ctx, id, host, ann))
	require.Len(t, h.notifier.detached, 1)
	require.Equal(t, ann, h.notifier.detached[0].player)
	require.Equal(t, domain.EventPlayerKicked, h.notifier.detached[0].event.Type)

	types := h.notifier.types(id)
	require.Equal(t, []string{domain.EventPlayerLeft, domain.EventLobbyUpdated}, types[len(types)-2:])

	s := h.session(t, id)
	require.Len(t, s.Players, 2)
	p, _ := s.Player(ann)
	require.Nil(t, p)
}

func TestAttachHostChecksToken(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{})
	id := l.created.SessionID

	bound := ""
	bind := func(playerID string) { bound = playerID }

	_, err := h.svc.AttachHost(ctx, id, "wrong", bind)
	require.ErrorIs(t, err, domain.ErrInvalidHostToken)
	require.Empty(t, bound)

	hostID, err := h.svc.AttachHost(ctx, id, l.created.HostToken, bind)
	require.NoError(t, err)
	require.Equal(t, l.created.HostPlayerID, hostID)
	require.Equal(t, hostID, bound)
	require.True(t, h.session(t, id).Players[0].Connected)
	require.Equal(t, []string{domain.EventLobbyUpdated}, h.notifier.types(id))

	require.ErrorIs(t, h.svc.AttachPlayer(ctx, id, "ghost", bind), domain.ErrPlayerNotFound)
}

func TestDeleteEndsAndRemovesSession(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	l := h.lobby(t, domain.Settings{}, "Ann")
	id := l.created.SessionID
	require.NoError(t, h.svc.Start(ctx, id, l.players[0]))

	require.ErrorIs(t, h.svc.Delete(ctx, id, "wrong"), domain.ErrInvalidHostToken)
	require.NoError(t, h.svc.Delete(ctx, id, l.created.HostToken))

	ended := h.notifier.last(t, id, domain.EventGameEnded).(domain.GameEnded)
	require.Equal(t, "session deleted", ended.Reason)
	require.Empty(t, h.sched.pending())
	require.Equal(t, []string{id}, h.notifier.released)
	require.Zero(t, h.svc.ActiveRooms())

	_, err := h.svc.Get(ctx, id)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = h.svc.Join(ctx, l.created.JoinCode, "Ben")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	old := h.lobby(t, domain.Settings{})
	h.clock.Advance(90 * time.Minute)
	fresh := h.lobby(t, domain.Settings{})

	n, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	h.clock.Advance(31 * time.Minute)
	n, err = h.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = h.svc.Get(ctx, old.created.SessionID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = h.svc.Get(ctx, fresh.created.SessionID)
	require.NoError(t, err)
	require.Equal(t, []string{old.created.SessionID}, h.notifier.released)
}

func TestRunSweeperToleratesZeroInterval(t *testing.T) {
	h := newHarness(t, app.WithTiming(app.Timing{}))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.svc.RunSweeper(ctx)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}

func TestListPublicWaiting(t *testing.T) {
	h := newHarness(t)
	open := h.lobby(t, domain.Settings{})
	h.lobby(t, domain.Settings{Visibility: domain.VisibilityPrivate})
	running := h.lobby(t, domain.Settings{}, "Ann")
	require.NoError(t, h.svc.Start(t.Context(), running.created.SessionID, running.players[0]))

	list, err := h.svc.ListPublicWaiting(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, open.created.SessionID, list[0].ID)
}
