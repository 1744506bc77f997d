package http

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

// heldScheduler records timers and never fires them.
type heldScheduler struct {
	mu     sync.Mutex
	timers int
}

type heldTimer struct{}

func (heldTimer) Stop() bool { return true }

func (s *heldScheduler) AfterFunc(time.Duration, func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers++
	return heldTimer{}
}

type testEnv struct {
	engine   *app.GameService
	registry *Registry
	server   *httptest.Server
}

func newTestEnv(t *testing.T, opts ...APIOption) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	registry := NewRegistry(log)
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(sampleQuestions(20)), time.Minute)
	engine := app.NewGameService(memory.NewSessionStore(), bank, registry, app.WithScheduler(&heldScheduler{}))
	api := NewAPI(engine, registry, log, opts...)
	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)
	return &testEnv{engine: engine, registry: registry, server: server}
}

// lobby creates a session through the engine and joins the given players.
func (e *testEnv) lobby(t *testing.T, nicknames ...string) (app.CreateResult, []string) {
	t.Helper()
	created, err := e.engine.Create(t.Context(), app.CreateRequest{HostNickname: "Host"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var ids []string
	for _, nick := range nicknames {
		joined, err := e.engine.Join(t.Context(), created.JoinCode, nick)
		if err != nil {
			t.Fatalf("join %s: %v", nick, err)
		}
		ids = append(ids, joined.PlayerID)
	}
	return created, ids
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readNext reads the next frame and, when expect is set, fails on any other type.
func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

// readUntil skips frames until one of type expect arrives.
func readUntil(conn *websocket.Conn, t *testing.T, expect string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == expect {
			return payload
		}
	}
	t.Fatalf("no %s frame", expect)
	return nil
}

func sampleQuestions(n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{
			ID:            fmt.Sprintf("q%02d", i+1),
			Text:          fmt.Sprintf("Question %d?", i+1),
			Options:       [domain.OptionCount]string{"a", "b", "c", "d"},
			CorrectAnswer: 1,
			Explanation:   "explained",
			Source:        domain.Citation{Title: "Fact check", Organization: "Desk"},
			Category:      "health",
			Difficulty:    domain.DifficultyMedium,
			TimeLimit:     20 * time.Second,
		}
	}
	return out
}
