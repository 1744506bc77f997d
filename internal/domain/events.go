package domain

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"
)

// Real-time event names, inbound and outbound.
const (
	EventJoinHostLobby   = "join-host-lobby"
	EventJoinPlayerLobby = "join-player-lobby"
	EventStartGame       = "start-game"
	EventSubmitAnswer    = "submit-answer"
	EventKickPlayer      = "kick-player"

	EventLobbyUpdated      = "lobby-updated"
	EventPlayerJoined      = "player-joined"
	EventPlayerLeft        = "player-left"
	EventPlayerKicked      = "player-kicked"
	EventQuestionDisplayed = "question-displayed"
	EventAnswerSubmitted   = "answer-submitted"
	EventQuestionResults   = "question-results"
	EventGameEnded         = "game-ended"
	EventError             = "error"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is an outbound message addressed to one room or connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Inbound is one of the validated client event structs below.
type Inbound interface {
	EventType() string
}

type JoinHostLobby struct {
	SessionID string `json:"sessionId" validate:"required"`
	HostToken string `json:"hostToken" validate:"required"`
}

type JoinPlayerLobby struct {
	SessionID string `json:"sessionId" validate:"required"`
	PlayerID  string `json:"playerId" validate:"required"`
}

type StartGame struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// MaxTimeRemaining caps the client-reported remaining time, in seconds. It
// matches the longest allowed time per question.
const MaxTimeRemaining = 300

// SubmitAnswer carries the remaining time in seconds as measured by the client.
type SubmitAnswer struct {
	PlayerID      string  `json:"playerId" validate:"required"`
	QuestionID    string  `json:"questionId" validate:"required"`
	Answer        *int    `json:"answer" validate:"required,min=0,max=3"`
	TimeRemaining float64 `json:"timeRemaining" validate:"gte=0,lte=300"`
}

type KickPlayer struct {
	SessionID string `json:"sessionId" validate:"required"`
	PlayerID  string `json:"playerId" validate:"required"`
}

func (JoinHostLobby) EventType() string   { return EventJoinHostLobby }
func (JoinPlayerLobby) EventType() string { return EventJoinPlayerLobby }
func (StartGame) EventType() string       { return EventStartGame }
func (SubmitAnswer) EventType() string    { return EventSubmitAnswer }
func (KickPlayer) EventType() string      { return EventKickPlayer }

// Submission converts the wire payload into engine units.
func (s SubmitAnswer) Submission() Submission {
	return Submission{
		PlayerID:      s.PlayerID,
		QuestionID:    s.QuestionID,
		Option:        lo.FromPtr(s.Answer),
		TimeRemaining: time.Duration(lo.Clamp(s.TimeRemaining, 0, MaxTimeRemaining) * float64(time.Second)),
	}
}

// Submission is a buffered, not yet scored answer.
type Submission struct {
	PlayerID      string
	QuestionID    string
	Option        int
	TimeRemaining time.Duration
	ReceivedAt    time.Time
}

// DecodeInbound resolves the envelope into its event struct and validates it.
func DecodeInbound(env Envelope) (Inbound, error) {
	var in Inbound
	switch env.Type {
	case EventJoinHostLobby:
		in = &JoinHostLobby{}
	case EventJoinPlayerLobby:
		in = &JoinPlayerLobby{}
	case EventStartGame:
		in = &StartGame{}
	case EventSubmitAnswer:
		in = &SubmitAnswer{}
	case EventKickPlayer:
		in = &KickPlayer{}
	default:
		return nil, ErrUnknownEvent
	}
	if len(env.Payload) == 0 {
		return nil, ErrInvalidPayload
	}
	if err := json.Unmarshal(env.Payload, in); err != nil {
		return nil, ErrInvalidPayload
	}
	if err := Validate(in); err != nil {
		return nil, ErrInvalidPayload
	}
	return in, nil
}

// PlayerView is the roster projection of a player.
type PlayerView struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	Score     int       `json:"score"`
	IsHost    bool      `json:"isHost"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// SettingsView renders durations in seconds.
type SettingsView struct {
	QuestionPack    string     `json:"questionPack"`
	QuestionCount   int        `json:"questionCount"`
	TimePerQuestion int        `json:"timePerQuestion"`
	MaxPlayers      int        `json:"maxPlayers"`
	Visibility      Visibility `json:"visibility"`
	AllowLateJoin   bool       `json:"allowLateJoin"`
}

func (p Player) View() PlayerView {
	return PlayerView{
		ID:        p.ID,
		Nickname:  p.Nickname,
		Score:     p.Score,
		IsHost:    p.IsHost,
		Connected: p.Connected,
		JoinedAt:  p.JoinedAt,
	}
}

func (s Settings) View() SettingsView {
	return SettingsView{
		QuestionPack:    s.QuestionPack,
		QuestionCount:   s.QuestionCount,
		TimePerQuestion: Seconds(s.TimePerQuestion),
		MaxPlayers:      s.MaxPlayers,
		Visibility:      s.Visibility,
		AllowLateJoin:   s.AllowLateJoin,
	}
}

type LobbyUpdated struct {
	Players  []PlayerView `json:"players"`
	Settings SettingsView `json:"settings"`
}

type PlayerJoined struct {
	Player PlayerView `json:"player"`
}

type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

type PlayerKicked struct {
	PlayerID string `json:"playerId"`
}

type QuestionDisplayed struct {
	Question       QuestionView `json:"question"`
	QuestionNumber int          `json:"questionNumber"`
	TotalQuestions int          `json:"totalQuestions"`
	TimeLimit      int          `json:"timeLimit"`
}

type AnswerSubmitted struct {
	PlayerID string `json:"playerId"`
	Answer   int    `json:"answer"`
}

type QuestionResults struct {
	QuestionID    string             `json:"questionId"`
	CorrectAnswer int                `json:"correctAnswer"`
	Explanation   string             `json:"explanation"`
	Citation      Citation           `json:"factCheckSource"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	PlayerAnswers []RoundAnswer      `json:"playerAnswers"`
}

type GameEnded struct {
	FinalResults GameResults   `json:"finalResults"`
	Status       SessionStatus `json:"status"`
	Reason       string        `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// LobbyEvent snapshots the roster of a session.
func LobbyEvent(s Session) Event {
	return Event{Type: EventLobbyUpdated, Payload: LobbyUpdated{
		Players:  lo.Map(s.Players, func(p Player, _ int) PlayerView { return p.View() }),
		Settings: s.Settings.View(),
	}}
}

// ErrorEvent wraps a rejection for the originating connection.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Message: message}}
}
