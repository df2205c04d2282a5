// Package boterr defines the error taxonomy shared across the request
// pipeline. Callers classify failures with errors.Is against these sentinels.
package boterr

import "errors"

var (
	// ErrAuthentication means the webhook signature did not verify.
	// The request is rejected before any processing.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotFound means the grounding document does not exist or the
	// service credential cannot access it.
	ErrNotFound = errors.New("document not found")

	// ErrTransient marks a retryable failure: network errors, timeouts,
	// and 5xx/429 responses from an upstream service.
	ErrTransient = errors.New("transient failure")

	// ErrGroundingUnavailable means the cache holds no valid document text
	// and the refresh attempt failed too.
	ErrGroundingUnavailable = errors.New("grounding unavailable")

	// ErrInputTooLarge means the user text cannot fit the prompt ceiling
	// even with the grounding text fully truncated away.
	ErrInputTooLarge = errors.New("input too large")

	// ErrQuotaExceeded means the generation API rejected the call for
	// quota reasons; do not retry within the current cycle.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidRequest marks a fatal, non-retryable generation failure.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDelivery means the reply could not be handed to the platform.
	// No retry follows; delivery is at-most-once per reply.
	ErrDelivery = errors.New("delivery failed")
)

// Retryable reports whether err may be retried within the current cycle.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Kind returns the taxonomy label for err. Unclassified errors are reported
// as "internal"; nil yields "".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrGroundingUnavailable):
		return "grounding_unavailable"
	case errors.Is(err, ErrInputTooLarge):
		return "input_too_large"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrDelivery):
		return "delivery"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "internal"
	}
}
