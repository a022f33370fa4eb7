package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/quantfold/futbot/internal/domain"
)

// Class is the retry classification of a failed exchange call.
type Class int

const (
	// ClassFatal covers business errors and anything unclassifiable. Retrying
	// cannot change the outcome, and retrying an error we cannot classify
	// risks masking silent corruption.
	ClassFatal Class = iota
	// ClassRateLimited means the exchange signalled too many requests.
	ClassRateLimited
	// ClassTimestamp means the stamped timestamp fell outside the exchange's
	// acceptance window; the clock must be re-synced before retrying.
	ClassTimestamp
	// ClassTransient covers connection resets, timeouts, and 5xx responses.
	ClassTransient
)

// Retryable reports whether the class participates in the backoff schedule.
func (c Class) Retryable() bool { return c != ClassFatal }

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassTimestamp:
		return "timestamp_rejected"
	case ClassTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Exchange error codes that drive classification.
const (
	codeTooManyRequests  = -1003
	codeTimestampOutside = -1021
	codeInvalidSignature = -1022 // usually a stale timestamp inside the signed payload
)

// Classify maps a failed call to its retry class.
//
// Tagged API errors are classified by their numeric code: the rate-limit code
// retries with backoff, the timestamp codes retry after a clock re-sync, and
// every other code is a business error the exchange will keep rejecting.
// Untagged transport failures (resets, timeouts, 5xx) are transient. Anything
// else is fatal.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	// Caller-driven cancellation is not retryable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	if apiErr, ok := domain.AsAPIError(err); ok {
		if apiErr.HasCode {
			switch apiErr.Code {
			case codeTooManyRequests:
				return ClassRateLimited
			case codeTimestampOutside, codeInvalidSignature:
				return ClassTimestamp
			}
			return ClassFatal
		}
		switch {
		case apiErr.HTTPStatus == http.StatusTooManyRequests,
			apiErr.HTTPStatus == 418: // the exchange's IP-ban status
			return ClassRateLimited
		case apiErr.HTTPStatus >= 500:
			return ClassTransient
		}
		return ClassFatal
	}

	// Transport-level failures.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return ClassTransient
	}

	return ClassFatal
}
