package app

import (
	"sync"

	"trivia-room-service/internal/domain"
)

// room is the serialized unit of a session: every operation and timer
// callback for one session runs while holding mu.
type room struct {
	id string
	mu sync.Mutex

	// pending buffers answers of the open round keyed by player id.
	pending    map[string]domain.Submission
	roundOpen  bool
	roundIndex int

	tasks map[taskKind]*task
}

func newRoom(id string) *room {
	return &room{
		id:    id,
		tasks: make(map[taskKind]*task),
	}
}

// cancel invalidates the task of kind. A callback that already fired and is
// waiting on mu observes the missing entry and returns without effect.
func (r *room) cancel(kind taskKind) {
	if t, ok := r.tasks[kind]; ok {
		t.timer.Stop()
		delete(r.tasks, kind)
	}
}

func (r *room) cancelAll() {
	for kind := range r.tasks {
		r.cancel(kind)
	}
}

func (r *room) openRound(index int) {
	r.pending = make(map[string]domain.Submission)
	r.roundOpen = true
	r.roundIndex = index
}

func (r *room) closeRound() map[string]domain.Submission {
	subs := r.pending
	r.pending = nil
	r.roundOpen = false
	r.cancel(taskRound)
	return subs
}

// allAnswered reports whether every current player has a buffered answer.
func (r *room) allAnswered(players []domain.Player) bool {
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if _, ok := r.pending[p.ID]; !ok {
			return false
		}
	}
	return true
}
