package http

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"trivia-room-service/internal/domain"
)

// sendQueueSize bounds the outbound backlog of one connection. A client that
// falls this far behind is dropped.
const sendQueueSize = 64

// client is the registry's handle of one real-time connection.
type client struct {
	id     string
	send   chan domain.Event
	closed chan struct{}
	once   sync.Once
}

func newClient() *client {
	return &client{
		id:     uuid.NewString(),
		send:   make(chan domain.Event, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// enqueue never blocks; it reports false when the client was dropped.
func (c *client) enqueue(evt domain.Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- evt:
		return true
	default:
		c.close()
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.closed) })
}

// binding ties a connection to a player of a room.
type binding struct {
	room   string
	player string
}

type playerKey struct {
	room   string
	player string
}

// Registry routes engine events to connections. It holds no game state:
// connection -> binding, player -> connection and room -> connections only.
// It never calls into the engine while holding its lock.
type Registry struct {
	mu      sync.RWMutex
	clients map[*client]binding
	players map[playerKey]*client
	rooms   map[string]map[*client]struct{}
	log     zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[*client]binding),
		players: make(map[playerKey]*client),
		rooms:   make(map[string]map[*client]struct{}),
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Register tracks a fresh connection without room membership.
func (r *Registry) Register(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = binding{}
}

// Bind attaches c to player of room, replacing any previous binding of c and
// any older connection of the same player.
func (r *Registry) Bind(c *client, room, player string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(c)
	key := playerKey{room: room, player: player}
	if old, ok := r.players[key]; ok && old != c {
		r.unbindLocked(old)
	}
	r.clients[c] = binding{room: room, player: player}
	r.players[key] = c
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	r.log.Debug().Str("session", room).Str("player", player).Str("conn", c.id).Msg("connection bound")
}

// Binding resolves the room and player of c.
func (r *Registry) Binding(c *client) (binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.clients[c]
	return b, ok && b.room != ""
}

// Unregister purges every index entry of c and returns its last binding.
func (r *Registry) Unregister(c *client) (binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.clients[c]
	r.unbindLocked(c)
	delete(r.clients, c)
	c.close()
	return b, ok && b.room != ""
}

func (r *Registry) unbindLocked(c *client) {
	b, ok := r.clients[c]
	if !ok || b.room == "" {
		return
	}
	key := playerKey{room: b.room, player: b.player}
	if r.players[key] == c {
		delete(r.players, key)
	}
	if members, ok := r.rooms[b.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, b.room)
		}
	}
	r.clients[c] = binding{}
}

// Send delivers evt to a single connection.
func (r *Registry) Send(c *client, evt domain.Event) {
	if !c.enqueue(evt) {
		r.log.Warn().Str("conn", c.id).Str("event", evt.Type).Msg("dropping slow connection")
	}
}

// Broadcast fans evt out to every connection of room.
func (r *Registry) Broadcast(room string, evt domain.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.rooms[room] {
		if !c.enqueue(evt) {
			r.log.Warn().Str("session", room).Str("conn", c.id).Str("event", evt.Type).Msg("dropping slow connection")
		}
	}
}

// Detach sends evt to the player's connection and removes it from the room.
// The connection itself stays open.
func (r *Registry) Detach(room, player string, evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.players[playerKey{room: room, player: player}]
	if !ok {
		return
	}
	c.enqueue(evt)
	r.unbindLocked(c)
}

// Release unbinds every connection of room.
func (r *Registry) Release(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := lo.Keys(r.rooms[room])
	for _, c := range members {
		r.unbindLocked(c)
	}
	if len(members) > 0 {
		r.log.Debug().Str("session", room).Int("connections", len(members)).Msg("room released")
	}
}

// Connections counts open connections, bound or not.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Rooms counts rooms with at least one bound connection.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
