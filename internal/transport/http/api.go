package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// QuestionPack describes a selectable question category.
type QuestionPack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultQuestionPacks is the catalogue offered to hosts.
func DefaultQuestionPacks() []QuestionPack {
	return []QuestionPack{
		{ID: domain.GeneralPack, Name: "General Knowledge", Description: "Mixed topics for general media literacy"},
		{ID: "health", Name: "Health Misinformation", Description: "Medical myths and health-related fake news"},
		{ID: "social-media", Name: "Social Media Myths", Description: "Common misinformation spread on social platforms"},
		{ID: "politics", Name: "Political Misinformation", Description: "Election fraud and political fake news"},
		{ID: "finance", Name: "Financial Scams", Description: "Investment fraud and financial misinformation"},
	}
}

// QuestionCatalog lists the question pool of a filter.
type QuestionCatalog interface {
	LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
}

// RateLimit allows Requests per client IP in each Window. A zero value
// disables the limit.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

type RateLimits struct {
	Create RateLimit
	Join   RateLimit
	Answer RateLimit
}

// API serves the REST surface and the websocket endpoint.
type API struct {
	engine   GameEngine
	registry *Registry
	ws       *WSHandler
	packs    []QuestionPack
	catalog  QuestionCatalog
	limits   RateLimits
	origins  []string
	sessions func(ctx context.Context) (int, error)
	checks   map[string]func(ctx context.Context) error
	log      zerolog.Logger
}

type APIOption func(*API)

// WithSessionCounter reports the stored session count on /healthz.
func WithSessionCounter(fn func(ctx context.Context) (int, error)) APIOption {
	return func(a *API) { a.sessions = fn }
}

// WithHealthCheck adds a dependency check to /healthz.
func WithHealthCheck(name string, fn func(ctx context.Context) error) APIOption {
	return func(a *API) { a.checks[name] = fn }
}

func WithQuestionPacks(packs []QuestionPack) APIOption {
	return func(a *API) { a.packs = packs }
}

// WithQuestionCatalog serves GET /api/questions from c.
func WithQuestionCatalog(c QuestionCatalog) APIOption {
	return func(a *API) { a.catalog = c }
}

func WithRateLimits(limits RateLimits) APIOption {
	return func(a *API) { a.limits = limits }
}

// WithAllowedOrigins restricts CORS and websocket upgrades to origins.
// An empty list or "*" allows every origin.
func WithAllowedOrigins(origins []string) APIOption {
	return func(a *API) { a.origins = origins }
}

func NewAPI(engine GameEngine, registry *Registry, log zerolog.Logger, opts ...APIOption) *API {
	a := &API{
		engine:   engine,
		registry: registry,
		packs:    DefaultQuestionPacks(),
		checks:   make(map[string]func(ctx context.Context) error),
		log:      log.With().Str("component", "http").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ws = NewWSHandler(engine, registry, log, a.origins)
	return a
}

// Routes builds the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog(a.log))
	r.Use(chimw.Recoverer)
	if len(a.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   a.origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", a.handleHealth)
	r.Get("/ws", a.ws.ServeWS)
	r.Get("/api/question-packs", a.handleQuestionPacks)
	if a.catalog != nil {
		r.Get("/api/questions", a.handleQuestions)
	}

	r.Route("/api/games", func(r chi.Router) {
		r.With(rateLimit(a.limits.Create, "Too many games created. Please try again later.")).Post("/", a.handleCreate)
		r.With(rateLimit(a.limits.Join, "Too many join attempts. Please try again later.")).Post("/join", a.handleJoin)
		r.Get("/public", a.handlePublic)
		r.Get("/{gameID}", a.handleGet)
		r.Post("/{gameID}/start", a.handleStart)
		r.With(rateLimit(a.limits.Answer, "Too many answers submitted. Please slow down.")).Post("/{gameID}/answer", a.handleAnswer)
		r.Delete("/{gameID}", a.handleDelete)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

type settingsRequest struct {
	QuestionPack    string `json:"questionPack" validate:"omitempty,max=32"`
	QuestionCount   int    `json:"questionCount" validate:"omitempty,min=1,max=50"`
	TimePerQuestion int    `json:"timePerQuestion" validate:"omitempty,min=1,max=300"`
	MaxPlayers      int    `json:"maxPlayers" validate:"omitempty,min=2,max=50"`
	Visibility      string `json:"visibility" validate:"omitempty,oneof=public private"`
	AllowLateJoin   bool   `json:"allowLateJoin"`
}

func (s settingsRequest) settings() domain.Settings {
	return domain.Settings{
		QuestionPack:    s.QuestionPack,
		QuestionCount:   s.QuestionCount,
		TimePerQuestion: time.Duration(s.TimePerQuestion) * time.Second,
		MaxPlayers:      s.MaxPlayers,
		Visibility:      domain.Visibility(s.Visibility),
		AllowLateJoin:   s.AllowLateJoin,
	}
}

type createRequest struct {
	HostNickname string          `json:"hostNickname" validate:"required,nickname"`
	Settings     settingsRequest `json:"settings"`
}

type createResponse struct {
	GameID    string `json:"gameId"`
	GameCode  string `json:"gameCode"`
	HostToken string `json:"hostToken"`
	PlayerID  string `json:"playerId"`
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !a.decode(w, r, &req) {
		return
	}
	created, err := a.engine.Create(r.Context(), app.CreateRequest{
		HostNickname: req.HostNickname,
		Settings:     req.Settings.settings(),
	})
	if err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{
		GameID:    created.SessionID,
		GameCode:  created.JoinCode,
		HostToken: created.HostToken,
		PlayerID:  created.HostPlayerID,
	})
}

type joinRequest struct {
	GameCode string `json:"gameCode" validate:"required,joincode"`
	Nickname string `json:"nickname" validate:"required,nickname"`
}

type joinResponse struct {
	PlayerID string      `json:"playerId"`
	Game     sessionView `json:"game"`
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !a.decode(w, r, &req) {
		return
	}
	joined, err := a.engine.Join(r.Context(), req.GameCode, req.Nickname)
	if err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{PlayerID: joined.PlayerID, Game: newSessionView(joined.Session)})
}

type publicGame struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	HostName     string               `json:"hostName"`
	QuestionPack string               `json:"questionPack"`
	PlayerCount  int                  `json:"playerCount"`
	MaxPlayers   int                  `json:"maxPlayers"`
	Status       domain.SessionStatus `json:"status"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// LobbyName is the public title of a room.
func LobbyName(hostNickname string) string {
	return hostNickname + "'s Battle Room"
}

func (a *API) handlePublic(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.engine.ListPublicWaiting(r.Context())
	if err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	games := lo.Map(sessions, func(s domain.Session, _ int) publicGame {
		host := "Unknown"
		if p := s.Host(); p != nil {
			host = p.Nickname
		}
		return publicGame{
			ID:           s.ID,
			Name:         LobbyName(host),
			HostName:     host,
			QuestionPack: s.Settings.QuestionPack,
			PlayerCount:  len(s.Players),
			MaxPlayers:   s.Settings.MaxPlayers,
			Status:       s.Status,
			CreatedAt:    s.CreatedAt,
		}
	})
	writeJSON(w, http.StatusOK, games)
}

// sessionView is the client projection of a session: no host token and no
// correctness of the open question.
type sessionView struct {
	ID                   string               `json:"id"`
	GameCode             string               `json:"gameCode"`
	HostID               string               `json:"hostId"`
	Status               domain.SessionStatus `json:"status"`
	Players              []domain.PlayerView  `json:"players"`
	Settings             domain.SettingsView  `json:"settings"`
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	TotalQuestions       int                  `json:"totalQuestions"`
	CurrentQuestion      *domain.QuestionView `json:"currentQuestion,omitempty"`
	CreatedAt            time.Time            `json:"createdAt"`
	StartedAt            *time.Time           `json:"startedAt,omitempty"`
	FinishedAt           *time.Time           `json:"finishedAt,omitempty"`
	EndReason            string               `json:"endReason,omitempty"`
}

func newSessionView(s domain.Session) sessionView {
	v := sessionView{
		ID:                   s.ID,
		GameCode:             s.JoinCode,
		HostID:               s.HostID,
		Status:               s.Status,
		Players:              lo.Map(s.Players, func(p domain.Player, _ int) domain.PlayerView { return p.View() }),
		Settings:             s.Settings.View(),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		TotalQuestions:       len(s.Questions),
		CreatedAt:            s.CreatedAt,
		StartedAt:            s.StartedAt,
		FinishedAt:           s.FinishedAt,
		EndReason:            s.EndReason,
	}
	if s.Status == domain.StatusInProgress && s.QuestionStartedAt != nil {
		if q, ok := s.CurrentQuestion(); ok {
			view := q.View()
			v.CurrentQuestion = &view
		}
	}
	return v
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	session, err := a.engine.Get(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "gameID")
	hostID, err := a.engine.HostID(r.Context(), id, bearerToken(r))
	if err == nil {
		err = a.engine.Start(r.Context(), id, hostID)
	}
	if err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	session, err := a.engine.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

type answerResponse struct {
	Accepted bool `json:"accepted"`
}

func (a *API) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitAnswer
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.engine.SubmitAnswer(r.Context(), chi.URLParam(r, "gameID"), req.Submission()); err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, answerResponse{Accepted: true})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusForbidden, domain.ErrInvalidHostToken.Reason)
		return
	}
	if err := a.engine.Delete(r.Context(), chi.URLParam(r, "gameID"), token); err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleQuestionPacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.packs)
}

const defaultQuestionLimit = 20

type questionQuery struct {
	Category   string `json:"category" validate:"omitempty,max=32"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Limit      int    `json:"limit" validate:"min=1,max=100"`
}

func (a *API) handleQuestions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := questionQuery{
		Category:   params.Get("category"),
		Difficulty: params.Get("difficulty"),
		Limit:      defaultQuestionLimit,
	}
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}
	if err := domain.Validate(q); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	filter := domain.QuestionFilter{Difficulty: domain.Difficulty(q.Difficulty)}
	if q.Category != domain.GeneralPack {
		filter.Category = q.Category
	}
	questions, err := a.catalog.LoadQuestions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, a.log, err)
		return
	}
	if len(questions) > q.Limit {
		questions = questions[:q.Limit]
	}
	writeJSON(w, http.StatusOK, lo.Map(questions, func(item domain.Question, _ int) domain.QuestionView { return item.View() }))
}

type healthResponse struct {
	Status      string            `json:"status"`
	Sessions    int               `json:"sessions"`
	Rooms       int               `json:"rooms"`
	Connections int               `json:"connections"`
	Checks      map[string]string `json:"checks,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Rooms:       a.engine.ActiveRooms(),
		Connections: a.registry.Connections(),
	}
	status := http.StatusOK
	if a.sessions != nil {
		n, err := a.sessions(ctx)
		if err != nil {
			a.log.Error().Err(err).Msg("count sessions")
		}
		resp.Sessions = n
	}
	if len(a.checks) > 0 {
		resp.Checks = make(map[string]string, len(a.checks))
		for name, check := range a.checks {
			resp.Checks[name] = "ok"
			if err := check(ctx); err != nil {
				a.log.Error().Err(err).Str("name", name).Msg("health check failed")
				resp.Checks[name] = "error"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
	}
	writeJSON(w, status, resp)
}

// decode reads and validates a JSON body, writing the 400 itself on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := readJSON(r, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := domain.Validate(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid " + verrs[0].Field()
	}
	return "invalid request"
}
