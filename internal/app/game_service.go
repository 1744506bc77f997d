package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/scoring"
)

// SessionRepository abstracts how game sessions are stored (in-memory, Redis).
// Implementations copy records in and out; callers serialize per session.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	GetByJoinCode(ctx context.Context, code string) (domain.Session, error)
	Update(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context, id string) error
	ListPublicWaiting(ctx context.Context) ([]domain.Session, error)
	// Sweep deletes sessions older than maxAge or finished longer than
	// finishedGrace and returns their ids.
	Sweep(ctx context.Context, now time.Time, maxAge, finishedGrace time.Duration) ([]string, error)
}

// QuestionBank samples question content (from cache/backing store).
type QuestionBank interface {
	Sample(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error)
}

// Notifier delivers engine events to the connections of a room.
type Notifier interface {
	Broadcast(sessionID string, evt domain.Event)
	// Detach sends evt to the player's connection and unbinds it from the room.
	Detach(sessionID, playerID string, evt domain.Event)
	// Release unbinds every connection of the room.
	Release(sessionID string)
}

// MaxJoinCodeAttempts bounds join code generation on collisions.
const MaxJoinCodeAttempts = 10

const (
	reasonHostDisconnected = "host disconnected"
	reasonDeleted          = "session deleted"
)

// Timing holds the lifecycle delays of a room.
type Timing struct {
	// RoundBuffer is added to a question's time limit for network latency.
	RoundBuffer time.Duration
	// ResultsPause separates round results from the next question.
	ResultsPause time.Duration
	// ResultsWindow keeps room connections bound after the final results.
	ResultsWindow time.Duration
	SweepInterval time.Duration
	MaxAge        time.Duration
	FinishedGrace time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		RoundBuffer:   2 * time.Second,
		ResultsPause:  5 * time.Second,
		ResultsWindow: 30 * time.Second,
		SweepInterval: 10 * time.Minute,
		MaxAge:        2 * time.Hour,
		FinishedGrace: 30 * time.Minute,
	}
}

// GameService is the lifecycle engine of every game room.
type GameService struct {
	sessions  SessionRepository
	questions QuestionBank
	notifier  Notifier
	scheduler Scheduler
	timing    Timing
	now       func() time.Time
	newCode   func() string
	log       zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

// Option customizes a GameService.
type Option func(*GameService)

func WithScheduler(s Scheduler) Option { return func(g *GameService) { g.scheduler = s } }

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(g *GameService) { g.now = now } }

func WithTiming(t Timing) Option { return func(g *GameService) { g.timing = t } }

func WithLogger(l zerolog.Logger) Option { return func(g *GameService) { g.log = l } }

// WithCodeGenerator replaces the random join code source.
func WithCodeGenerator(gen func() string) Option { return func(g *GameService) { g.newCode = gen } }

func NewGameService(store SessionRepository, questions QuestionBank, notifier Notifier, opts ...Option) *GameService {
	g := &GameService{
		sessions:  store,
		questions: questions,
		notifier:  notifier,
		scheduler: RealScheduler(),
		timing:    DefaultTiming(),
		now:       time.Now,
		newCode:   GenerateJoinCode,
		log:       zerolog.Nop(),
		rooms:     make(map[string]*room),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With().Str("component", "engine").Logger()
	return g
}

const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateJoinCode returns a random six character code.
func GenerateJoinCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = joinCodeAlphabet[rand.IntN(len(joinCodeAlphabet))]
	}
	return string(b)
}

// CreateRequest carries the host's lobby choices; zero settings take defaults.
type CreateRequest struct {
	HostNickname string
	Settings     domain.Settings
}

type CreateResult struct {
	SessionID    string
	JoinCode     string
	HostToken    string
	HostPlayerID string
}

// Create opens a waiting room with the host as its only player.
func (g *GameService) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if !domain.ValidNickname(req.HostNickname) {
		return CreateResult{}, domain.ErrInvalidNickname
	}
	settings, err := normalizeSettings(req.Settings)
	if err != nil {
		return CreateResult{}, err
	}

	questions, err := g.questions.Sample(ctx, settings.Filter(), settings.QuestionCount)
	if err != nil {
		return CreateResult{}, err
	}
	if len(questions) < settings.QuestionCount {
		return CreateResult{}, domain.ErrNotEnoughQuestions
	}
	questions = questions[:settings.QuestionCount]
	for i := range questions {
		questions[i].TimeLimit = settings.TimePerQuestion
	}

	now := g.now()
	host := domain.Player{
		ID:       uuid.NewString(),
		Nickname: req.HostNickname,
		IsHost:   true,
		JoinedAt: now,
	}
	session := domain.Session{
		ID:        uuid.NewString(),
		HostID:    host.ID,
		HostToken: uuid.NewString(),
		Status:    domain.StatusWaiting,
		Questions: questions,
		Settings:  settings,
		Players:   []domain.Player{host},
		CreatedAt: now,
	}

	for attempt := 0; attempt < MaxJoinCodeAttempts; attempt++ {
		session.JoinCode = g.newCode()
		err := g.sessions.Create(ctx, session)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			g.log.Debug().Str("code", session.JoinCode).Int("attempt", attempt+1).Msg("join code collision")
			continue
		}
		if err != nil {
			return CreateResult{}, fmt.Errorf("create session: %w", err)
		}
		g.log.Info().Str("session", session.ID).Str("code", session.JoinCode).Str("host", host.Nickname).Msg("game created")
		return CreateResult{
			SessionID:    session.ID,
			JoinCode:     session.JoinCode,
			HostToken:    session.HostToken,
			HostPlayerID: host.ID,
		}, nil
	}
	return CreateResult{}, domain.ErrJoinCodeExhausted
}

func normalizeSettings(in domain.Settings) (domain.Settings, error) {
	def := domain.DefaultSettings()
	if in.QuestionPack == "" {
		in.QuestionPack = def.QuestionPack
	}
	if in.QuestionCount == 0 {
		in.QuestionCount = def.QuestionCount
	}
	if in.TimePerQuestion == 0 {
		in.TimePerQuestion = def.TimePerQuestion
	}
	if in.MaxPlayers == 0 {
		in.MaxPlayers = def.MaxPlayers
	}
	if in.Visibility == "" {
		in.Visibility = def.Visibility
	}
	switch {
	case in.QuestionCount < 1 || in.QuestionCount > 50,
		in.TimePerQuestion < time.Second || in.TimePerQuestion > 5*time.Minute,
		in.MaxPlayers < 2 || in.MaxPlayers > 50,
		in.Visibility != domain.VisibilityPublic && in.Visibility != domain.VisibilityPrivate:
		return in, domain.ErrInvalidSettings
	}
	return in, nil
}

type JoinResult struct {
	PlayerID string
	Session  domain.Session
}

// Join admits a player into a waiting room by join code.
func (g *GameService) Join(ctx context.Context, joinCode, nickname string) (JoinResult, error) {
	if !domain.ValidJoinCode(joinCode) {
		return JoinResult{}, domain.ErrInvalidJoinCode
	}
	if !domain.ValidNickname(nickname) {
		return JoinResult{}, domain.ErrInvalidNickname
	}
	found, err := g.sessions.GetByJoinCode(ctx, joinCode)
	if err != nil {
		return JoinResult{}, err
	}

	var result JoinResult
	err = g.withRoom(found.ID, func(r *room) error {
		session, err := g.sessions.Get(ctx, found.ID)
		if err != nil {
			return err
		}
		switch {
		case session.Status != domain.StatusWaiting:
			return domain.ErrGameStarted
		case session.IsFull():
			return domain.ErrGameFull
		case session.NicknameTaken(nickname):
			return domain.ErrNameTaken
		}

		player := domain.Player{
			ID:       uuid.NewString(),
			Nickname: nickname,
			JoinedAt: g.now(),
		}
		session.Players = append(session.Players, player)
		if err := g.sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("join session: %w", err)
		}

		g.notifier.Broadcast(session.ID, domain.Event{Type: domain.EventPlayerJoined, Payload: domain.PlayerJoined{Player: player.View()}})
		g.notifier.Broadcast(session.ID, domain.LobbyEvent(session))
		g.log.Info().Str("session", session.ID).Str("player", player.ID).Str("nickname", nickname).Msg("player joined")

		result = JoinResult{PlayerID: player.ID, Session: session}
		return nil
	})
	return result, err
}

// HostID resolves the host of a session from its bearer token.
func (g *GameService) HostID(ctx context.Context, sessionID, hostToken string) (string, error) {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !tokenMatches(session.HostToken, hostToken) {
		return "", domain.ErrInvalidHostToken
	}
	return session.HostID, nil
}

func tokenMatches(want, got string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// AttachHost binds the host's connection after checking the host token.
// bind runs under the room lock before the lobby broadcast, so the new
// connection receives it.
func (g *GameService) AttachHost(ctx context.Context, sessionID, hostToken string, bind func(playerID string)) (string, error) {
	var hostID string
	err := g.withRoom(sessionID, func(r *room) error {
		session, err := g.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if !tokenMatches(session.HostToken, hostToken) {
			return domain.ErrInvalidHostToken
		}
		host := session.Host()
		if host == nil {
			return domain.ErrPlayerNotFound
		}
		hostID = host.ID
		return g.attachLocked(ctx, session, host, bind)
	})
	return hostID, err
}

// AttachPlayer binds a player's connection to its room.
func (g *GameService) AttachPlayer(ctx context.Context, sessionID, playerID string, bind func(playerID string)) error {
	return g.withRoom(sessionID, func(r *room) error {
		session, err := g.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		player, _ := session.Player(playerID)
		if player == nil {
			return domain.ErrPlayerNotFound
		}
		return g.attachLocked(ctx, session, player, bind)
	})
}

func (g *GameService) attachLocked(ctx context.Context, session domain.Session, player *domain.Player, bind func(string)) error {
	bind(player.ID)
	if !player.Connected {
		player.Connected = true
		if err := g.sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("attach player: %w", err)
		}
	}
	g.notifier.Broadcast(session.ID, domain.LobbyEvent(session))
	g.log.Info().Str("session", session.ID).Str("player", player.ID).Bool("host", player.IsHost).Msg("connection attached")
	return nil
}

// Start moves a waiting room into its first round. Host only.
func (g *GameService) Start(ctx context.Context, sessionID, actorID string) error {
	return g.withRoom(sessionID, func(r *room) error {
		session, err := g.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		switch {
		case actorID != session.HostID:
			return domain.ErrNotHost
		case session.Status != domain.StatusWaiting:
			return domain.ErrGameStarted
		case len(session.Players) < 2:
			return domain.ErrNotEnoughPlayers
		}

		now := g.now()
		session.Status = domain.StatusInProgress
		session.StartedAt = &now
		session.CurrentQuestionIndex = 0
		g.log.Info().Str("session", sessionID).Int("players", len(session.Players)).Msg("game started")
		return g.beginRoundLocked(ctx, r, session)
	})
}

// beginRoundLocked displays the current question and arms the round timer,
// or finishes the game when no question remains.
func (g *GameService) beginRoundLocked(ctx context.Context, r *room, session domain.Session) error {
	q, ok := session.CurrentQuestion()
	if !ok {
		return g.finishLocked(ctx, r, session, "")
	}

	now := g.now()
	index := session.CurrentQuestionIndex
	session.QuestionStartedAt = &now
	if err := g.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("begin round: %w", err)
	}
	r.openRound(index)

	g.notifier.Broadcast(session.ID, domain.Event{Type: domain.EventQuestionDisplayed, Payload: domain.QuestionDisplayed{
		Question:       q.View(),
		QuestionNumber: index + 1,
		TotalQuestions: len(session.Questions),
		TimeLimit:      domain.Seconds(q.TimeLimit),
	}})
	g.arm(r, taskRound, q.TimeLimit+g.timing.RoundBuffer, func(ctx context.Context) error {
		return g.closeRoundLocked(ctx, r, index)
	})
	g.log.Debug().Str("session", session.ID).Int("question", index+1).Msg("round started")
	return nil
}

// SubmitAnswer buffers one answer for the open round. Scores are only
// computed when the round closes.
func (g *GameService) SubmitAnswer(ctx context.Context, sessionID string, sub domain.Submission) error {
	return g.withRoom(sessionID, func(r *room) error {
		session, err := g.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != domain.StatusInProgress {
			return domain.ErrNotInProgress
		}
		player, _ := session.Player(sub.PlayerID)
		if player == nil {
			return domain.ErrPlayerNotFound
		}
		if sub.Option < 0 || sub.Option >= domain.OptionCount {
			return domain.ErrInvalidAnswer
		}
		index := session.CurrentQuestionIndex
		q, ok := session.CurrentQuestion()
		if !ok || q.ID != sub.QuestionID || !r.roundOpen || r.roundIndex != index {
			return domain.ErrWrongQuestion
		}
		if _, dup := r.pending[player.ID]; dup || player.HasAnswered(q.ID) {
			return domain.ErrAlreadyAnswered
		}

		sub.ReceivedAt = g.now()
		r.pending[player.ID] = sub
		g.notifier.Broadcast(sessionID, domain.Event{Type: domain.EventAnswerSubmitted, Payload: domain.AnswerSubmitted{
			PlayerID: player.ID,
			Answer:   sub.Option,
		}})

		if r.allAnswered(session.Players) {
			return g.closeRoundLocked(ctx, r, index)
		}
		return nil
	})
}

// CloseRound scores the round at questionIndex. Closing an already closed
// round is a no-op.
func (g *GameService) CloseRound(ctx context.Context, sessionID string, questionIndex int) error {
	return g.withRoom(sessionID, func(r *room) error {
		return g.closeRoundLocked(ctx, r, questionIndex)
	})
}

func (g *GameService) closeRoundLocked(ctx context.Context, r *room, index int) error {
	if !r.roundOpen || r.roundIndex != index {
		return nil
	}
	subs := r.closeRound()

	session, err := g.sessions.Get(ctx, r.id)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusInProgress || session.CurrentQuestionIndex != index {
		return nil
	}

	q := session.Questions[index]
	players, outcomes := scoring.ScoreRound(session.Players, q, subs, g.now())
	session.Players = players
	session.CurrentQuestionIndex++
	session.QuestionStartedAt = nil
	if err := g.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("close round: %w", err)
	}

	g.notifier.Broadcast(session.ID, domain.Event{Type: domain.EventQuestionResults, Payload: domain.QuestionResults{
		QuestionID:    q.ID,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		Citation:      q.Source,
		Leaderboard:   scoring.Leaderboard(players),
		PlayerAnswers: outcomes,
	}})
	g.log.Debug().Str("session", session.ID).Int("question", index+1).Int("answers", len(outcomes)).Msg("round closed")

	g.arm(r, taskAdvance, g.timing.ResultsPause, func(ctx context.Context) error {
		return g.advanceLocked(ctx, r)
	})
	return nil
}

func (g *GameService) advanceLocked(ctx context.Context, r *room) error {
	session, err := g.sessions.Get(ctx, r.id)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusInProgress {
		return nil
	}
	return g.beginRoundLocked(ctx, r, session)
}

// finishLocked ends the game, broadcasts final results and schedules the
// room teardown. The session record stays until the sweeper removes it.
func (g *GameService) finishLocked(ctx context.Context, r *room, session domain.Session, reason string) error {
	r.closeRound()
	r.cancel(taskAdvance)
	if session.Status == domain.StatusFinished {
		return nil
	}

	now := g.now()
	session.Status = domain.StatusFinished
	session.FinishedAt = &now
	session.EndReason = reason
	session.QuestionStartedAt = nil
	if err := g.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}

	g.notifier.Broadcast(session.ID, domain.Event{Type: domain.EventGameEnded, Payload: domain.GameEnded{
		FinalResults: scoring.FinalizeResults(session),
		Status:       session.Status,
		Reason:       reason,
	}})
	g.arm(r, taskTeardown, g.timing.ResultsWindow, func(context.Context) error {
		g.notifier.Release(r.id)
		return nil
	})

	evt := g.log.Info().Str("session", session.ID)
	if reason != "" {
		evt = evt.Str("reason", reason)
	}
	evt.Msg("game ended")
	return nil
}

// Disconnect reacts to a lost connection. A host leaving ends the game; any
// other player is removed from the roster.
func (g *GameService) Disconnect(ctx context.Context, sessionID, playerID string) error {
	return g.withRoom(sessionID, func(r *room) error {
		session, err := g.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == domain.StatusFinished {
			return nil
		}
		player, _ := session.Player(playerID)
		if player == nil {
			return nil
		}
		if player.IsHost {
			return g.finishLocked(ctx, r, session, reasonHostDisconnected)
		}
		return g.removePlayerLocked(ctx, r, session, playerID)
	})
}

// Kick removes a non-host player on the host's request and detaches its connection.
func (g *GameService) Kick(ctx context.Context, sessionID, actorID, targetID string) error {
	return g.withRoom(sessionID, func(r *room) error {
		session, err := g.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if actorID != session.HostID {
			return domain.ErrNotHost
		}
		target, _ := session.Player(targetID)
		if target == nil || target.IsHost {
			return domain.ErrCannotKick
		}
		g.notifier.Detach(sessionID, targetID, domain.Event{Type: domain.EventPlayerKicked, Payload: domain.PlayerKicked{PlayerID: targetID}})
		g.log.Info().Str("session", sessionID).Str("player", targetID).Msg("player kicked")
		return g.removePlayerLocked(ctx, r, session, targetID)
	})
}

func (g *GameService) removePlayerLocked(ctx context.Context, r *room, session domain.Session, playerID string) error {
	if !session.RemovePlayer(playerID) {
		return nil
	}
	delete(r.pending, playerID)
	if err := g.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("remove player: %w", err)
	}
	g.notifier.Broadcast(session.ID, domain.Event{Type: domain.EventPlayerLeft, Payload: domain.PlayerLeft{PlayerID: playerID}})
	g.notifier.Broadcast(session.ID, domain.LobbyEvent(session))
	return nil
}

// Delete ends and removes a session on the host's request.
func (g *GameService) Delete(ctx context.Context, sessionID, hostToken string) error {
	err := g.withRoom(sessionID, func(r *room) error {
		session, err := g.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if !tokenMatches(session.HostToken, hostToken) {
			return domain.ErrInvalidHostToken
		}
		if err := g.finishLocked(ctx, r, session, reasonDeleted); err != nil {
			return err
		}
		r.cancelAll()
		if err := g.sessions.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		g.notifier.Release(sessionID)
		return nil
	})
	if err != nil {
		return err
	}
	g.forget(sessionID)
	g.log.Info().Str("session", sessionID).Msg("game deleted")
	return nil
}

// Get returns a copy of the session record.
func (g *GameService) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	return g.sessions.Get(ctx, sessionID)
}

func (g *GameService) ListPublicWaiting(ctx context.Context) ([]domain.Session, error) {
	return g.sessions.ListPublicWaiting(ctx)
}

// ActiveRooms counts rooms with engine bookkeeping.
func (g *GameService) ActiveRooms() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Sweep removes expired sessions and their room bookkeeping.
func (g *GameService) Sweep(ctx context.Context) (int, error) {
	ids, err := g.sessions.Sweep(ctx, g.now(), g.timing.MaxAge, g.timing.FinishedGrace)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		g.forget(id)
		g.notifier.Release(id)
	}
	return len(ids), nil
}

// RunSweeper sweeps on a fixed interval until ctx is done. A non-positive
// interval falls back to the default one.
func (g *GameService) RunSweeper(ctx context.Context) {
	log := g.log.With().Str("component", "sweeper").Logger()
	interval := g.timing.SweepInterval
	if interval <= 0 {
		interval = DefaultTiming().SweepInterval
		log.Warn().Dur("interval", interval).Msg("non-positive sweep interval, using default")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Msg("expired sessions swept")
			}
		}
	}
}

func (g *GameService) room(id string) *room {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	if !ok {
		r = newRoom(id)
		g.rooms[id] = r
	}
	return r
}

func (g *GameService) forget(id string) {
	g.mu.Lock()
	r, ok := g.rooms[id]
	delete(g.rooms, id)
	g.mu.Unlock()
	if ok {
		r.mu.Lock()
		r.cancelAll()
		r.mu.Unlock()
	}
}

// withRoom runs fn holding the room lock, so operations on one session never interleave.
func (g *GameService) withRoom(id string, fn func(r *room) error) error {
	r := g.room(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	err := fn(r)
	if errors.Is(err, domain.ErrSessionNotFound) && len(r.tasks) == 0 {
		g.dropIfIdle(r)
	}
	return err
}

// dropIfIdle removes bookkeeping created for an unknown session id. Called with r.mu held.
func (g *GameService) dropIfIdle(r *room) {
	g.mu.Lock()
	if g.rooms[r.id] == r {
		delete(g.rooms, r.id)
	}
	g.mu.Unlock()
}

// arm schedules fn for the room, replacing any task of the same kind.
func (g *GameService) arm(r *room, kind taskKind, d time.Duration, fn func(ctx context.Context) error) {
	r.cancel(kind)
	t := &task{}
	t.timer = g.scheduler.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.tasks[kind] != t {
			return
		}
		delete(r.tasks, kind)

		defer func() {
			if rec := recover(); rec != nil {
				g.log.Error().Str("session", r.id).Stringer("task", kind).Interface("panic", rec).Msg("scheduled task panicked")
			}
		}()
		if err := fn(context.Background()); err != nil {
			g.log.Error().Err(err).Str("session", r.id).Stringer("task", kind).Msg("scheduled task failed")
		}
	})
	r.tasks[kind] = t
}
