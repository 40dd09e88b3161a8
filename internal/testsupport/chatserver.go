package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// ChatMessage mirrors one message of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatReply is what a ChatServer handler returns for one request. A non-zero
// Status short-circuits with that HTTP status.
type ChatReply struct {
	Content   string
	Reasoning string
	Status    int
}

// ChatServer is a fake OpenAI-compatible endpoint.
type ChatServer struct {
	*httptest.Server
	calls atomic.Int64
}

// Calls returns the number of requests served.
func (s *ChatServer) Calls() int64 {
	return s.calls.Load()
}

// NewChatServer starts a server that answers /chat/completions with whatever
// reply returns for the posted messages. It is closed on test cleanup.
func NewChatServer(t testing.TB, reply func(messages []ChatMessage) ChatReply) *ChatServer {
	t.Helper()
	srv := &ChatServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []ChatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := reply(req.Messages)
		if out.Status != 0 {
			http.Error(w, "scripted failure", out.Status)
			return
		}
		message := map[string]any{"role": "assistant", "content": out.Content}
		if out.Reasoning != "" {
			message["reasoning_content"] = out.Reasoning
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"finish_reason": "stop", "message": message}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// EchoReply answers with the last user message prefixed by "echo: ".
func EchoReply(messages []ChatMessage) ChatReply {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return ChatReply{Content: "echo: " + messages[i].Content}
		}
	}
	return ChatReply{Content: "echo"}
}
