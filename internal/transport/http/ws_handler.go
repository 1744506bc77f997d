package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// GameEngine is the lifecycle engine as seen by the transports.
type GameEngine interface {
	Create(ctx context.Context, req app.CreateRequest) (app.CreateResult, error)
	Join(ctx context.Context, joinCode, nickname string) (app.JoinResult, error)
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	ListPublicWaiting(ctx context.Context) ([]domain.Session, error)
	HostID(ctx context.Context, sessionID, hostToken string) (string, error)
	AttachHost(ctx context.Context, sessionID, hostToken string, bind func(playerID string)) (string, error)
	AttachPlayer(ctx context.Context, sessionID, playerID string, bind func(playerID string)) error
	Start(ctx context.Context, sessionID, actorID string) error
	SubmitAnswer(ctx context.Context, sessionID string, sub domain.Submission) error
	Kick(ctx context.Context, sessionID, actorID, targetID string) error
	Disconnect(ctx context.Context, sessionID, playerID string) error
	Delete(ctx context.Context, sessionID, hostToken string) error
	ActiveRooms() int
}

var _ GameEngine = (*app.GameService)(nil)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type WSHandler struct {
	engine   GameEngine
	registry *Registry
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWSHandler accepts upgrades from allowedOrigins; an empty list accepts
// every origin.
func NewWSHandler(engine GameEngine, registry *Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:   engine,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

// ServeWS upgrades HTTP requests to websockets. Membership starts with a
// join-host-lobby or join-player-lobby message.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := newClient()
	h.registry.Register(c)
	log := h.log.With().Str("conn", c.id).Logger()
	log.Debug().Str("remote", r.RemoteAddr).Msg("connection opened")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, c, log)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("ws read error")
			}
			break
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.registry.Send(c, domain.ErrorEvent(domain.ErrInvalidPayload.Reason))
			continue
		}
		h.handle(r.Context(), c, env, log)
	}

	// Resolve the room before evicting the connection so the engine hears
	// about the player leaving, then purge the indexes.
	if b, ok := h.registry.Binding(c); ok {
		if err := h.engine.Disconnect(context.Background(), b.room, b.player); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			log.Error().Err(err).Str("session", b.room).Msg("disconnect failed")
		}
	}
	h.registry.Unregister(c)
	<-writerDone
	log.Debug().Msg("connection closed")
}

// writeLoop is the only writer of conn.
func (h *WSHandler) writeLoop(conn *websocket.Conn, c *client, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case evt := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				c.close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			h.drain(conn, c)
			return
		}
	}
}

// drain flushes events queued before the close, e.g. a final error.
func (h *WSHandler) drain(conn *websocket.Conn, c *client) {
	for {
		select {
		case evt := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		default:
			return
		}
	}
}

// handle decodes and dispatches one inbound message. Rejections and faults
// go back to the origin only.
func (h *WSHandler) handle(ctx context.Context, c *client, env domain.Envelope, log zerolog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("event", env.Type).Msg("message handler panicked")
			h.registry.Send(c, domain.ErrorEvent("internal error"))
		}
	}()

	in, err := domain.DecodeInbound(env)
	if err == nil {
		err = h.dispatch(ctx, c, in)
	}
	if err == nil {
		return
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		log.Debug().Str("event", env.Type).Str("reason", derr.Reason).Msg("message rejected")
		h.registry.Send(c, domain.ErrorEvent(derr.Reason))
		return
	}
	log.Error().Err(err).Str("event", env.Type).Msg("message failed")
	h.registry.Send(c, domain.ErrorEvent("internal error"))
}

func (h *WSHandler) dispatch(ctx context.Context, c *client, in domain.Inbound) error {
	bind := func(room string) func(string) {
		return func(playerID string) { h.registry.Bind(c, room, playerID) }
	}

	switch ev := in.(type) {
	case *domain.JoinHostLobby:
		if b, ok := h.registry.Binding(c); ok {
			if b.room != ev.SessionID {
				return domain.ErrAlreadyJoined
			}
			hostID, err := h.engine.HostID(ctx, ev.SessionID, ev.HostToken)
			if err != nil {
				return err
			}
			if hostID != b.player {
				return domain.ErrAlreadyJoined
			}
		}
		_, err := h.engine.AttachHost(ctx, ev.SessionID, ev.HostToken, bind(ev.SessionID))
		return err
	case *domain.JoinPlayerLobby:
		if b, ok := h.registry.Binding(c); ok && (b.room != ev.SessionID || b.player != ev.PlayerID) {
			return domain.ErrAlreadyJoined
		}
		return h.engine.AttachPlayer(ctx, ev.SessionID, ev.PlayerID, bind(ev.SessionID))
	case *domain.StartGame:
		b, err := h.member(c, ev.SessionID)
		if err != nil {
			return err
		}
		return h.engine.Start(ctx, b.room, b.player)
	case *domain.SubmitAnswer:
		b, ok := h.registry.Binding(c)
		if !ok {
			return domain.ErrNotJoined
		}
		if ev.PlayerID != b.player {
			return domain.ErrPlayerMismatch
		}
		return h.engine.SubmitAnswer(ctx, b.room, ev.Submission())
	case *domain.KickPlayer:
		b, err := h.member(c, ev.SessionID)
		if err != nil {
			return err
		}
		return h.engine.Kick(ctx, b.room, b.player, ev.PlayerID)
	}
	return domain.ErrUnknownEvent
}

// member returns the binding of c if it belongs to sessionID.
func (h *WSHandler) member(c *client, sessionID string) (binding, error) {
	b, ok := h.registry.Binding(c)
	if !ok || b.room != sessionID {
		return binding{}, domain.ErrNotJoined
	}
	return b, nil
}
