package domain

import (
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a game room.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "waiting"
	StatusInProgress SessionStatus = "in-progress"
	StatusFinished   SessionStatus = "finished"
)

// Difficulty selects the base points of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Visibility controls whether a waiting lobby is listed publicly.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// OptionCount is the number of options every question carries.
const OptionCount = 4

// Citation is relayed to clients with round results; the engine never reads it.
type Citation struct {
	Title        string `json:"title" yaml:"title"`
	URL          string `json:"url" yaml:"url"`
	Organization string `json:"organization" yaml:"organization"`
}

// Question models a four-option question with exactly one correct option.
type Question struct {
	ID            string              `json:"id" yaml:"id"`
	Text          string              `json:"text" yaml:"text"`
	Options       [OptionCount]string `json:"options" yaml:"options"`
	CorrectAnswer int                 `json:"correctAnswer" yaml:"correctAnswer"`
	Explanation   string              `json:"explanation" yaml:"explanation"`
	Source        Citation            `json:"factCheckSource" yaml:"factCheckSource"`
	Category      string              `json:"category" yaml:"category"`
	Difficulty    Difficulty          `json:"difficulty" yaml:"difficulty"`
	Tags          []string            `json:"tags,omitempty" yaml:"tags"`
	TimeLimit     time.Duration       `json:"timeLimit" yaml:"timeLimit"`
}

// QuestionView is what clients see while a round is open.
type QuestionView struct {
	ID         string              `json:"id"`
	Text       string              `json:"text"`
	Options    [OptionCount]string `json:"options"`
	Category   string              `json:"category"`
	Difficulty Difficulty          `json:"difficulty"`
	TimeLimit  int                 `json:"timeLimit"`
}

// View strips correctness, explanation and citation.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:         q.ID,
		Text:       q.Text,
		Options:    q.Options,
		Category:   q.Category,
		Difficulty: q.Difficulty,
		TimeLimit:  Seconds(q.TimeLimit),
	}
}

// QuestionFilter narrows the pool a session samples from.
type QuestionFilter struct {
	Category   string
	Difficulty Difficulty
}

// Settings are fixed at creation.
type Settings struct {
	QuestionPack    string        `json:"questionPack"`
	QuestionCount   int           `json:"questionCount"`
	TimePerQuestion time.Duration `json:"timePerQuestion"`
	MaxPlayers      int           `json:"maxPlayers"`
	Visibility      Visibility    `json:"visibility"`
	AllowLateJoin   bool          `json:"allowLateJoin"`
}

// GeneralPack matches questions of every category.
const GeneralPack = "general"

// DefaultSettings mirrors the lobby defaults offered to hosts.
func DefaultSettings() Settings {
	return Settings{
		QuestionPack:    GeneralPack,
		QuestionCount:   20,
		TimePerQuestion: 30 * time.Second,
		MaxPlayers:      16,
		Visibility:      VisibilityPublic,
	}
}

// Filter converts the pack into a question filter.
func (s Settings) Filter() QuestionFilter {
	if s.QuestionPack == "" || s.QuestionPack == GeneralPack {
		return QuestionFilter{}
	}
	return QuestionFilter{Category: s.QuestionPack}
}

// Answer is one scored submission of a player for one question.
type Answer struct {
	QuestionID     string        `json:"questionId"`
	SelectedOption int           `json:"selectedAnswer"`
	TimeRemaining  time.Duration `json:"timeRemaining"`
	IsCorrect      bool          `json:"isCorrect"`
	PointsEarned   int           `json:"pointsEarned"`
	SubmittedAt    time.Time     `json:"submittedAt"`
}

// Player is pure data; the live connection is tracked by the transport registry.
type Player struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	Score     int       `json:"score"`
	IsHost    bool      `json:"isHost"`
	Answers   []Answer  `json:"answers"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// HasAnswered reports whether the player already holds an Answer for questionID.
func (p Player) HasAnswered(questionID string) bool {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Session is the full record of one game room.
type Session struct {
	ID                   string        `json:"id"`
	JoinCode             string        `json:"gameCode"`
	HostID               string        `json:"hostId"`
	HostToken            string        `json:"hostToken"`
	Status               SessionStatus `json:"status"`
	Questions            []Question    `json:"questions"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	Settings             Settings      `json:"settings"`
	Players              []Player      `json:"players"`
	CreatedAt            time.Time     `json:"createdAt"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	FinishedAt           *time.Time    `json:"finishedAt,omitempty"`
	QuestionStartedAt    *time.Time    `json:"currentQuestionStartTime,omitempty"`
	EndReason            string        `json:"endReason,omitempty"`
}

// Player returns the player with id and its index.
func (s *Session) Player(id string) (*Player, int) {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i], i
		}
	}
	return nil, -1
}

// Host returns the host player, if still present.
func (s *Session) Host() *Player {
	p, _ := s.Player(s.HostID)
	return p
}

// NicknameTaken compares nicknames case-insensitively.
func (s *Session) NicknameTaken(nickname string) bool {
	for _, p := range s.Players {
		if strings.EqualFold(p.Nickname, nickname) {
			return true
		}
	}
	return false
}

// IsFull reports whether no further players may join.
func (s *Session) IsFull() bool {
	return len(s.Players) >= s.Settings.MaxPlayers
}

// CurrentQuestion returns the question at the current index, if any remains.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// RemovePlayer drops a player, keeping join order of the rest.
func (s *Session) RemovePlayer(id string) bool {
	_, idx := s.Player(id)
	if idx < 0 {
		return false
	}
	s.Players = append(s.Players[:idx:idx], s.Players[idx+1:]...)
	return true
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s Session) Clone() Session {
	out := s
	out.Questions = append([]Question(nil), s.Questions...)
	for i := range out.Questions {
		out.Questions[i].Tags = append([]string(nil), s.Questions[i].Tags...)
	}
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		p.Answers = append([]Answer(nil), p.Answers...)
		out.Players[i] = p
	}
	out.StartedAt = cloneTime(s.StartedAt)
	out.FinishedAt = cloneTime(s.FinishedAt)
	out.QuestionStartedAt = cloneTime(s.QuestionStartedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Seconds renders a duration as whole seconds for clients.
func Seconds(d time.Duration) int {
	return int(d / time.Second)
}
