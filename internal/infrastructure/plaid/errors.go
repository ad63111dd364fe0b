package plaid

import "fmt"

// APIError is returned when the provider rejects a request. ErrorCode
// carries the provider's machine-readable code (e.g. ITEM_LOGIN_REQUIRED)
// so callers can branch on it.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error (status %d, code %s): %s", e.StatusCode, e.ErrorCode, e.Message)
}
