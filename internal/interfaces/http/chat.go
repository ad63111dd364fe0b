package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"walletai/internal/ai/agent"
	"walletai/internal/ai/llm"
	"walletai/internal/shared/middleware"
)

const maxChatBodySize = 1 << 20 // 1 MiB

type ChatHandler struct {
	loop *agent.Loop
}

func NewChatHandler(loop *agent.Loop) *ChatHandler {
	return &ChatHandler{loop: loop}
}

type ChatMessage struct {
	Role    string     `json:"role"`
	Content string     `json:"content"`
	Parts   []ChatPart `json:"parts"`
}

type ChatPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// Text returns the message content, joining text parts when the client
// sends the parts form instead of a flat content string.
func (m ChatMessage) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// HandleChat runs the assistant over the conversation and streams the
// reply as server-sent events, one token per text-delta chunk.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(uuid.UUID)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "No messages provided", http.StatusBadRequest)
		return
	}

	last := req.Messages[len(req.Messages)-1]
	userMessage := last.Text()
	if strings.TrimSpace(userMessage) == "" {
		http.Error(w, "Message content is empty", http.StatusBadRequest)
		return
	}

	history := make([]llm.Message, 0, len(req.Messages)-1)
	for _, m := range req.Messages[:len(req.Messages)-1] {
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		history = append(history, llm.Message{Role: role, Content: m.Text()})
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Headers are already sent, so failures past this point can only be
	// reported in-stream.
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Chat stream panic for user %s: %v", userID, rec)
			writeEvent(w, flusher, map[string]any{"type": "error", "error": "An error occurred while processing your request."})
		}
	}()

	reply := h.loop.Run(r.Context(), userID, history, userMessage)
	streamText(w, flusher, reply)
}

// streamText writes a reply as a text-start/text-delta/text-end event
// sequence, emitting one word per delta.
func streamText(w http.ResponseWriter, flusher http.Flusher, text string) {
	messageID := uuid.NewString()

	writeEvent(w, flusher, map[string]any{"type": "text-start", "id": messageID})

	for i, word := range strings.Fields(text) {
		token := word
		if i > 0 {
			token = " " + word
		}
		writeEvent(w, flusher, map[string]any{"type": "text-delta", "delta": token, "id": messageID})
	}

	writeEvent(w, flusher, map[string]any{"type": "text-end", "id": messageID})
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
