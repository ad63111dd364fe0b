// Package agent implements the tool-calling conversation loop.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"walletai/internal/ai/llm"
	"walletai/internal/ai/tools"
)

const defaultMaxRounds = 10

const systemPrompt = `You are a knowledgeable and friendly financial analyst assistant for WalletAI,
a personal finance management application. You help users understand their spending patterns,
manage their budgets, and make informed financial decisions.

When responding:
1. Be direct and answer the user's question clearly
2. Provide specific numbers and insights when available, using the tools to look up real data
3. Offer actionable advice or next steps
4. Keep responses concise but informative (2-4 paragraphs max)
5. If the question is ambiguous, answer with a best guess and ask for clarification once

If the user asks a question unrelated to personal finance, politely decline and
suggest they ask a financial question instead.`

const errorReply = "I apologize, but I'm having trouble processing your request right now. " +
	"Please try again in a moment."

// Loop runs the chat completion cycle: the model answers directly or
// requests tool calls, tool results are fed back, and the cycle repeats
// until the model produces a final reply.
type Loop struct {
	client    llm.Client
	registry  *tools.Registry
	maxRounds int
}

// NewLoop creates an agent loop. maxRounds bounds how many tool-calling
// rounds a single message may trigger; values below 1 fall back to the
// default.
func NewLoop(client llm.Client, registry *tools.Registry, maxRounds int) *Loop {
	if maxRounds < 1 {
		maxRounds = defaultMaxRounds
	}
	return &Loop{
		client:    client,
		registry:  registry,
		maxRounds: maxRounds,
	}
}

// Run processes one user message on behalf of userID and returns the
// assistant's reply. history carries prior conversation turns, oldest
// first, without the system prompt.
//
// Failures never propagate as errors to the caller: the model not
// responding or runaway tool loops degrade to an apologetic reply so
// the conversation can continue.
func (l *Loop) Run(ctx context.Context, userID uuid.UUID, history []llm.Message, userMessage string) string {
	ctx = tools.WithUserID(ctx, userID)

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	toolList := l.registry.List()

	for round := 0; round < l.maxRounds; round++ {
		resp, err := l.client.Chat(ctx, messages, toolList)
		if err != nil {
			log.Printf("Agent: LLM call failed for user %s: %v", userID, err)
			return errorReply
		}

		if len(resp.Message.ToolCalls) == 0 {
			if resp.Message.Content == "" {
				log.Printf("Agent: empty response for user %s", userID)
				return errorReply
			}
			return resp.Message.Content
		}

		messages = append(messages, resp.Message)

		for _, call := range resp.Message.ToolCalls {
			messages = append(messages, l.executeCall(ctx, userID, call))
		}
	}

	log.Printf("Agent: tool round limit (%d) reached for user %s", l.maxRounds, userID)
	return errorReply
}

// executeCall runs one tool call and shapes the outcome as a tool
// message. Tool failures are reported back to the model rather than
// ending the turn.
func (l *Loop) executeCall(ctx context.Context, userID uuid.UUID, call llm.ToolCall) llm.Message {
	name := call.Function.Name
	log.Printf("Agent: executing tool %s for user %s", name, userID)

	result, err := l.registry.Execute(ctx, name, call.Function.Arguments)
	if err != nil {
		log.Printf("Agent: tool %s failed: %v", name, err)
		payload, merr := json.Marshal(map[string]string{
			"error": fmt.Sprintf("tool %s failed: %v", name, err),
		})
		if merr != nil {
			payload = []byte(`{"error":"tool execution failed"}`)
		}
		result = string(payload)
	}

	return llm.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: call.ID,
	}
}
