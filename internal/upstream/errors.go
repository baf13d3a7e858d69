package upstream

import "errors"

// Failure classes returned (wrapped) by Client. Use errors.Is to test.
var (
	// ErrTimeout means the request did not complete within the client timeout.
	ErrTimeout = errors.New("upstream timeout")

	// ErrRateLimited means the provider answered 429, or the client is still
	// inside the cooldown that followed one. No request was sent in the latter case.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrAuthRejected means the provider refused the API key (401/403). Fatal.
	ErrAuthRejected = errors.New("upstream rejected credentials")

	// ErrUpstreamUnavailable covers every other transport, status or decode failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNoData means the provider returned no fixture: it is not live right now.
	ErrNoData = errors.New("no fixture data")
)

// Outcome labels, used for metrics and logs.
const (
	OutcomeOK           = "ok"
	OutcomeTimeout      = "timeout"
	OutcomeRateLimited  = "rate_limited"
	OutcomeAuthRejected = "auth_rejected"
	OutcomeUnavailable  = "unavailable"
	OutcomeNoData       = "no_data"
)

// IsFatal reports whether err should stop scanning until an operator intervenes.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}

// Outcome maps an error returned by Client to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, ErrAuthRejected):
		return OutcomeAuthRejected
	case errors.Is(err, ErrNoData):
		return OutcomeNoData
	default:
		return OutcomeUnavailable
	}
}
