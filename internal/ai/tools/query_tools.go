package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"walletai/internal/models"
)

const toolDateLayout = "2006-01-02"

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name: "get_transactions_by_category",
		Description: "Get transactions for a specific spending category. " +
			"Use when the user asks about spending in a category like food, travel, " +
			"groceries, shopping, or entertainment. Returns matching transactions, " +
			"the total amount, and the top merchants in that category.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "The spending category to filter by (e.g., \"food\", \"travel\", \"groceries\")",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of transactions to return (default: 20)",
				},
				"days_back": map[string]any{
					"type":        "integer",
					"description": "Number of days to look back (default: 30)",
				},
			},
			"required": []string{"category"},
		},
		Handler: r.handleTransactionsByCategory,
	})

	r.Register(&Tool{
		Name: "get_transactions_by_merchant",
		Description: "Get transactions for a specific merchant or store. " +
			"Use when the user asks about spending at a particular place, like " +
			"\"How much have I spent at Starbucks?\". Returns matching transactions " +
			"with totals and the average purchase amount.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"merchant_name": map[string]any{
					"type":        "string",
					"description": "The merchant or store name to search for",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of transactions to return (default: 20)",
				},
				"days_back": map[string]any{
					"type":        "integer",
					"description": "Number of days to look back (default: 90)",
				},
			},
			"required": []string{"merchant_name"},
		},
		Handler: r.handleTransactionsByMerchant,
	})

	r.Register(&Tool{
		Name: "get_transactions_by_account",
		Description: "Get transactions for accounts of a specific type, such as " +
			"checking, savings, or credit. Use when the user asks about activity " +
			"on a particular kind of account.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"account_type": map[string]any{
					"type":        "string",
					"description": "The account type to filter by (e.g., \"checking\", \"savings\", \"credit\")",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of transactions to return (default: 20)",
				},
				"days_back": map[string]any{
					"type":        "integer",
					"description": "Number of days to look back (default: 30)",
				},
			},
			"required": []string{"account_type"},
		},
		Handler: r.handleTransactionsByAccount,
	})

	r.Register(&Tool{
		Name: "get_transactions_between_dates",
		Description: "Get transactions within a date range or on a single date. " +
			"Use for questions like \"What did I spend last week?\" or \"Show me " +
			"transactions from March 1 to March 15\". Dates must be in YYYY-MM-DD " +
			"format. If end_date is omitted it defaults to today.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start_date": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format",
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "End date in YYYY-MM-DD format (defaults to today)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of transactions to return (default: 50)",
				},
			},
			"required": []string{"start_date"},
		},
		Handler: r.handleTransactionsBetweenDates,
	})
}

func (r *Registry) handleTransactionsByCategory(ctx context.Context, args map[string]any) (string, error) {
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		return "", err
	}

	category := stringArg(args, "category")
	if category == "" {
		return "", fmt.Errorf("category is required")
	}
	limit := intArg(args, "limit", 20)
	daysBack := intArg(args, "days_back", 30)

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -daysBack)
	normalized := strings.ToLower(strings.TrimSpace(category))

	log.Printf("Tools: get_transactions_by_category(category=%s, limit=%d, days_back=%d) user=%s",
		normalized, limit, daysBack, userID)

	transactions, err := r.transactions.ByCategory(ctx, userID, normalized, start, end, limit)
	if err != nil {
		return errorResult("category", category, err)
	}

	if len(transactions) == 0 {
		return marshalResult(map[string]any{
			"category":          category,
			"transactions":      []any{},
			"transaction_count": 0,
			"total_amount":      0.0,
			"top_merchants":     []any{},
			"date_range":        dateRange(start, end),
			"message":           fmt.Sprintf("No transactions found in category '%s' for the specified period.", category),
		})
	}

	return marshalResult(map[string]any{
		"category":          category,
		"transactions":      formatTransactions(transactions, false),
		"transaction_count": len(transactions),
		"total_amount":      round2(sumAmounts(transactions)),
		"top_merchants":     topMerchants(transactions, 5),
		"date_range":        dateRange(start, end),
	})
}

func (r *Registry) handleTransactionsByMerchant(ctx context.Context, args map[string]any) (string, error) {
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		return "", err
	}

	merchant := stringArg(args, "merchant_name")
	if merchant == "" {
		return "", fmt.Errorf("merchant_name is required")
	}
	limit := intArg(args, "limit", 20)
	daysBack := intArg(args, "days_back", 90)

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -daysBack)
	normalized := strings.ToLower(strings.TrimSpace(merchant))

	log.Printf("Tools: get_transactions_by_merchant(merchant=%s, limit=%d, days_back=%d) user=%s",
		normalized, limit, daysBack, userID)

	transactions, err := r.transactions.ByMerchant(ctx, userID, normalized, start, end, limit)
	if err != nil {
		return errorResult("merchant_name", merchant, err)
	}

	if len(transactions) == 0 {
		return marshalResult(map[string]any{
			"merchant_name":     merchant,
			"transactions":      []any{},
			"transaction_count": 0,
			"total_amount":      0.0,
			"average_amount":    0.0,
			"categories":        []any{},
			"date_range":        dateRange(start, end),
			"message":           fmt.Sprintf("No transactions found for merchant '%s' in the specified period.", merchant),
		})
	}

	total := sumAmounts(transactions)
	return marshalResult(map[string]any{
		"merchant_name":     merchant,
		"transactions":      formatTransactions(transactions, false),
		"transaction_count": len(transactions),
		"total_amount":      round2(total),
		"average_amount":    round2(total / float64(len(transactions))),
		"categories":        uniqueCategories(transactions),
		"date_range":        dateRange(start, end),
	})
}

func (r *Registry) handleTransactionsByAccount(ctx context.Context, args map[string]any) (string, error) {
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		return "", err
	}

	accountType := stringArg(args, "account_type")
	if accountType == "" {
		return "", fmt.Errorf("account_type is required")
	}
	limit := intArg(args, "limit", 20)
	daysBack := intArg(args, "days_back", 30)

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -daysBack)
	normalized := strings.ToLower(strings.TrimSpace(accountType))

	log.Printf("Tools: get_transactions_by_account(account_type=%s, limit=%d, days_back=%d) user=%s",
		normalized, limit, daysBack, userID)

	accounts, err := r.accounts.ListByType(ctx, userID, normalized)
	if err != nil {
		return errorResult("account_type", accountType, err)
	}

	if len(accounts) == 0 {
		return marshalResult(map[string]any{
			"account_type":   accountType,
			"accounts_found": 0,
			"transactions":   []any{},
			"total_amount":   0.0,
			"date_range":     dateRange(start, end),
			"message":        fmt.Sprintf("No %s accounts found for this user.", accountType),
		})
	}

	accountIDs := make([]uuid.UUID, len(accounts))
	accountNames := make([]string, len(accounts))
	for i, account := range accounts {
		accountIDs[i] = account.ID
		accountNames[i] = account.Name
	}

	transactions, err := r.transactions.ByAccountIDs(ctx, userID, accountIDs, start, end, limit)
	if err != nil {
		return errorResult("account_type", accountType, err)
	}

	return marshalResult(map[string]any{
		"account_type":      accountType,
		"accounts_found":    len(accounts),
		"account_names":     accountNames,
		"transactions":      formatTransactions(transactions, true),
		"transaction_count": len(transactions),
		"total_amount":      round2(sumAmounts(transactions)),
		"date_range":        dateRange(start, end),
	})
}

func (r *Registry) handleTransactionsBetweenDates(ctx context.Context, args map[string]any) (string, error) {
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		return "", err
	}

	startArg := stringArg(args, "start_date")
	if startArg == "" {
		return "", fmt.Errorf("start_date is required")
	}
	limit := intArg(args, "limit", 50)

	start, err := parseDateArg(startArg)
	if err != nil {
		return marshalResult(map[string]any{
			"error":             "Invalid date format",
			"message":           fmt.Sprintf("Could not parse start_date '%s'. Please use YYYY-MM-DD format.", startArg),
			"transactions":      []any{},
			"transaction_count": 0,
			"total_amount":      0.0,
		})
	}

	end := time.Now().UTC()
	if endArg := stringArg(args, "end_date"); endArg != "" {
		end, err = parseDateArg(endArg)
		if err != nil {
			return marshalResult(map[string]any{
				"error":             "Invalid date format",
				"message":           fmt.Sprintf("Could not parse end_date '%s'. Please use YYYY-MM-DD format.", endArg),
				"transactions":      []any{},
				"transaction_count": 0,
				"total_amount":      0.0,
			})
		}
	}

	if start.After(end) {
		start, end = end, start
	}

	log.Printf("Tools: get_transactions_between_dates(start=%s, end=%s, limit=%d) user=%s",
		start.Format(toolDateLayout), end.Format(toolDateLayout), limit, userID)

	transactions, err := r.transactions.BetweenDates(ctx, userID, start, end, limit)
	if err != nil {
		return errorResult("start_date", startArg, err)
	}

	if len(transactions) == 0 {
		return marshalResult(map[string]any{
			"start_date":         start.Format(toolDateLayout),
			"end_date":           end.Format(toolDateLayout),
			"transactions":       []any{},
			"transaction_count":  0,
			"total_amount":       0.0,
			"category_breakdown": map[string]any{},
			"daily_average":      0.0,
			"message":            fmt.Sprintf("No transactions found between %s and %s.", start.Format(toolDateLayout), end.Format(toolDateLayout)),
		})
	}

	total := sumAmounts(transactions)
	daysInRange := int(end.Sub(start).Hours()/24) + 1

	return marshalResult(map[string]any{
		"start_date":         start.Format(toolDateLayout),
		"end_date":           end.Format(toolDateLayout),
		"days_in_range":      daysInRange,
		"transactions":       formatTransactions(transactions, false),
		"transaction_count":  len(transactions),
		"total_amount":       round2(total),
		"daily_average":      round2(total / float64(daysInRange)),
		"category_breakdown": categoryBreakdown(transactions),
	})
}

// Helpers

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// parseDateArg accepts a few common date layouts besides ISO.
func parseDateArg(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"01-02-2006",
		"20060102",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse date: %s", s)
}

func formatTransactions(transactions []*models.Transaction, withAccount bool) []map[string]any {
	formatted := make([]map[string]any, 0, len(transactions))
	for _, txn := range transactions {
		entry := map[string]any{
			"id":       txn.ID.String(),
			"amount":   txn.Amount,
			"date":     txn.Date.Format(toolDateLayout),
			"merchant": txn.MerchantName,
			"category": txn.Category,
		}
		if withAccount {
			entry["account_id"] = txn.AccountID.String()
		}
		formatted = append(formatted, entry)
	}
	return formatted
}

func sumAmounts(transactions []*models.Transaction) float64 {
	var total float64
	for _, txn := range transactions {
		total += txn.Amount
	}
	return total
}

func topMerchants(transactions []*models.Transaction, limit int) []map[string]any {
	type merchantStats struct {
		name  string
		total float64
		count int
	}

	byName := make(map[string]*merchantStats)
	for _, txn := range transactions {
		stats, ok := byName[txn.MerchantName]
		if !ok {
			stats = &merchantStats{name: txn.MerchantName}
			byName[txn.MerchantName] = stats
		}
		stats.total += txn.Amount
		stats.count++
	}

	ranked := make([]*merchantStats, 0, len(byName))
	for _, stats := range byName {
		ranked = append(ranked, stats)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].total > ranked[j].total
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result := make([]map[string]any, 0, len(ranked))
	for _, stats := range ranked {
		result = append(result, map[string]any{
			"merchant":          stats.name,
			"total_spent":       round2(stats.total),
			"transaction_count": stats.count,
		})
	}
	return result
}

func uniqueCategories(transactions []*models.Transaction) []string {
	seen := make(map[string]bool)
	var categories []string
	for _, txn := range transactions {
		if txn.Category == "" || seen[txn.Category] {
			continue
		}
		seen[txn.Category] = true
		categories = append(categories, txn.Category)
	}
	sort.Strings(categories)
	return categories
}

func categoryBreakdown(transactions []*models.Transaction) map[string]float64 {
	breakdown := make(map[string]float64)
	for _, txn := range transactions {
		category := txn.Category
		if category == "" {
			category = "Uncategorized"
		}
		breakdown[category] += txn.Amount
	}
	for category, total := range breakdown {
		breakdown[category] = round2(total)
	}
	return breakdown
}

func dateRange(start, end time.Time) map[string]string {
	return map[string]string{
		"start": start.Format(toolDateLayout),
		"end":   end.Format(toolDateLayout),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// errorResult shapes a store failure as a result the model can relay
// instead of aborting the whole conversation turn.
func errorResult(key, value string, err error) (string, error) {
	log.Printf("Tools: query failed (%s=%s): %v", key, value, err)
	return marshalResult(map[string]any{
		key:                 value,
		"transactions":      []any{},
		"transaction_count": 0,
		"total_amount":      0.0,
		"error":             err.Error(),
		"message":           "An error occurred while retrieving transactions.",
	})
}

func marshalResult(result map[string]any) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(data), nil
}
