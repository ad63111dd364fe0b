// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"walletai/internal/models"
)

// TransactionStore is the transaction query surface the tools use.
type TransactionStore interface {
	ByCategory(ctx context.Context, userID uuid.UUID, category string, start, end time.Time, limit int) ([]*models.Transaction, error)
	ByMerchant(ctx context.Context, userID uuid.UUID, merchant string, start, end time.Time, limit int) ([]*models.Transaction, error)
	ByAccountIDs(ctx context.Context, userID uuid.UUID, accountIDs []uuid.UUID, start, end time.Time, limit int) ([]*models.Transaction, error)
	BetweenDates(ctx context.Context, userID uuid.UUID, start, end time.Time, limit int) ([]*models.Transaction, error)
}

// AccountStore resolves accounts for account-scoped queries.
type AccountStore interface {
	ListByType(ctx context.Context, userID uuid.UUID, accountType string) ([]*models.Account, error)
}

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools        map[string]*Tool
	transactions TransactionStore
	accounts     AccountStore
}

// NewRegistry creates a tool registry backed by the given stores.
func NewRegistry(transactions TransactionStore, accounts AccountStore) *Registry {
	r := &Registry{
		tools:        make(map[string]*Tool),
		transactions: transactions,
		accounts:     accounts,
	}
	r.registerBuiltins()
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools in the LLM wire format.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, t := range r.tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with given arguments.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	return tool.Handler(ctx, args)
}
