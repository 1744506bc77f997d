package domain

// ErrorKind classifies a rejection so transports can map it to a status.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindConflict      ErrorKind = "conflict"
	KindNotFound      ErrorKind = "not_found"
)

// Error is a rejected operation. Rejections never change session state.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func newError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

var (
	// ErrSessionNotFound is returned for unknown session ids or join codes.
	ErrSessionNotFound = newError(KindNotFound, "game not found")
	// ErrPlayerNotFound is returned when a player id is not part of the session.
	ErrPlayerNotFound = newError(KindNotFound, "player not found")
	// ErrNotEnoughQuestions indicates the question bank cannot fill the requested count.
	ErrNotEnoughQuestions = newError(KindNotFound, "not enough questions available for selected category")

	ErrInvalidNickname = newError(KindValidation, "invalid nickname")
	ErrInvalidJoinCode = newError(KindValidation, "invalid game code")
	ErrInvalidSettings = newError(KindValidation, "invalid game settings")
	ErrInvalidAnswer   = newError(KindValidation, "invalid answer")
	ErrInvalidPayload  = newError(KindValidation, "invalid payload")
	ErrUnknownEvent    = newError(KindValidation, "unsupported message type")

	// ErrNotHost is returned when a non-host starts, kicks or deletes.
	ErrNotHost = newError(KindAuthorization, "only the host can do this")
	// ErrInvalidHostToken is returned when a bearer token does not match.
	ErrInvalidHostToken = newError(KindAuthorization, "invalid host token")
	// ErrNotJoined is returned when a connection acts before joining a lobby.
	ErrNotJoined = newError(KindAuthorization, "join a lobby first")
	// ErrPlayerMismatch is returned when a connection acts for another player.
	ErrPlayerMismatch = newError(KindAuthorization, "invalid player")

	ErrGameStarted       = newError(KindConflict, "game has already started")
	ErrGameFull          = newError(KindConflict, "game is full")
	ErrNameTaken         = newError(KindConflict, "nickname already taken")
	ErrNotEnoughPlayers  = newError(KindConflict, "need at least 2 players to start")
	ErrNotInProgress     = newError(KindConflict, "game is not in progress")
	ErrWrongQuestion     = newError(KindConflict, "invalid question")
	ErrAlreadyAnswered   = newError(KindConflict, "already answered this question")
	ErrCannotKick        = newError(KindConflict, "cannot kick this player")
	ErrJoinCodeTaken     = newError(KindConflict, "game code already in use")
	ErrJoinCodeExhausted = newError(KindConflict, "could not allocate a unique game code")
	// ErrAlreadyJoined is returned when a bound connection tries to join as
	// someone else or in another lobby.
	ErrAlreadyJoined = newError(KindConflict, "already joined a lobby")
)
