package app_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

// manualScheduler fires timers only when a test asks it to.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *manualScheduler) pending() []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireNext runs the oldest pending timer and returns its delay.
func (s *manualScheduler) fireNext(t *testing.T) time.Duration {
	t.Helper()
	pending := s.pending()
	require.NotEmpty(t, pending, "no timer armed")
	timer := pending[0]
	s.mu.Lock()
	timer.fired = true
	s.mu.Unlock()
	timer.f()
	return timer.d
}

type sent struct {
	room  string
	event domain.Event
}

type detached struct {
	room, player string
	event        domain.Event
}

// recordingNotifier keeps every event the engine emits.
type recordingNotifier struct {
	mu       sync.Mutex
	events   []sent
	detached []detached
	released []string
}

func (n *recordingNotifier) Broadcast(room string, evt domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sent{room: room, event: evt})
}

func (n *recordingNotifier) Detach(room, player string, evt domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.detached = append(n.detached, detached{room: room, player: player, event: evt})
}

func (n *recordingNotifier) Release(room string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.released = append(n.released, room)
}

func (n *recordingNotifier) types(room string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.events {
		if s.room == room {
			out = append(out, s.event.Type)
		}
	}
	return out
}

func (n *recordingNotifier) count(room, typ string) int {
	c := 0
	for _, got := range n.types(room) {
		if got == typ {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) last(t *testing.T, room, typ string) any {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].room == room && n.events[i].event.Type == typ {
			return n.events[i].event.Payload
		}
	}
	t.Fatalf("no %s event for %s", typ, room)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      *app.GameService
	store    *memory.SessionStore
	sched    *manualScheduler
	notifier *recordingNotifier
	clock    *fakeClock
}

func newHarness(t *testing.T, opts ...app.Option) *harness {
	t.Helper()
	h := &harness{
		store:    memory.NewSessionStore(),
		sched:    &manualScheduler{},
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)},
	}
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(testQuestions(20)), time.Minute)
	all := append([]app.Option{app.WithScheduler(h.sched), app.WithClock(h.clock.Now)}, opts...)
	h.svc = app.NewGameService(h.store, bank, h.notifier, all...)
	return h
}

// lobby is a created session with the joined players' ids, host first.
type lobby struct {
	created app.CreateResult
	players []string
}

func (h *harness) lobby(t *testing.T, settings domain.Settings, nicknames ...string) lobby {
	t.Helper()
	ctx := t.Context()
	created, err := h.svc.Create(ctx, app.CreateRequest{HostNickname: "Host", Settings: settings})
	require.NoError(t, err)
	l := lobby{created: created, players: []string{created.HostPlayerID}}
	for _, nick := range nicknames {
		joined, err := h.svc.Join(ctx, created.JoinCode, nick)
		require.NoError(t, err)
		l.players = append(l.players, joined.PlayerID)
	}
	return l
}

func (h *harness) session(t *testing.T, id string) domain.Session {
	t.Helper()
	s, err := h.svc.Get(t.Context(), id)
	require.NoError(t, err)
	return s
}

func (h *harness) currentQuestion(t *testing.T, id string) domain.Question {
	t.Helper()
	s := h.session(t, id)
	q, ok := s.CurrentQuestion()
	require.True(t, ok, "no current question")
	return q
}

func (h *harness) answer(t *testing.T, sessionID, playerID string, option int, remaining time.Duration) error {
	t.Helper()
	q := h.currentQuestion(t, sessionID)
	return h.svc.SubmitAnswer(t.Context(), sessionID, domain.Submission{
		PlayerID:      playerID,
		QuestionID:    q.ID,
		Option:        option,
		TimeRemaining: remaining,
	})
}

func testQuestions(n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{
			ID:            fmt.Sprintf("q%02d", i+1),
			Text:          fmt.Sprintf("Question %d?", i+1),
			Options:       [domain.OptionCount]string{"a", "b", "c", "d"},
			CorrectAnswer: 2,
			Explanation:   "because",
			Source:        domain.Citation{Title: "Source", Organization: "Org"},
			Category:      "general",
			Difficulty:    domain.DifficultyEasy,
			TimeLimit:     10 * time.Second,
		}
	}
	return out
}
