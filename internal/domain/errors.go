package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSymbolNotFound is returned when a symbol is absent from the exchange
	// metadata snapshot even after a reload.
	ErrSymbolNotFound = errors.New("symbol not found in exchange info")

	// ErrNoFilters is returned when validation is attempted for a symbol with
	// no cached filters at all. Validation fails closed in that case.
	ErrNoFilters = errors.New("no trading filters cached for symbol")

	// ErrRateLimited is returned when the local admission gate denies a
	// request before any network call is made.
	ErrRateLimited = errors.New("local rate limit reached")
)

// Rejection is a local validation failure. No network call was made. The
// Reason always names the violated constraint and its bound so an operator can
// see exactly why the order never left the process.
type Rejection struct {
	Symbol string
	Field  string // "quantity", "price", "stopPrice", "notional", "type", ...
	Reason string
}

func (r *Rejection) Error() string {
	if r.Symbol == "" {
		return "order rejected: " + r.Reason
	}
	return fmt.Sprintf("order rejected (%s): %s", r.Symbol, r.Reason)
}

// Reject builds a Rejection with a formatted reason.
func Reject(symbol, field, format string, args ...any) *Rejection {
	return &Rejection{Symbol: symbol, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// APIError is a tagged error from the exchange. Code is the exchange-defined
// numeric code; HasCode distinguishes a genuine code 0 from a response that
// carried no code at all (e.g. an HTML error page from a proxy).
type APIError struct {
	HTTPStatus int
	Code       int
	HasCode    bool
	Message    string
}

func (e *APIError) Error() string {
	if e.HasCode {
		return fmt.Sprintf("exchange error %d (HTTP %d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("exchange error (HTTP %d): %s", e.HTTPStatus, e.Message)
}

// FatalError wraps a failure that retrying cannot fix: a business error from
// the exchange, or an error the executor could not classify.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("%s: fatal: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// RetryExhaustedError wraps the last cause after the full backoff schedule
// completed without success.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: retry exhausted after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
