// Package upstream is the HTTP client for the API-Football fixture provider.
//
// FetchFixture(ctx, id) fetches /fixtures?id= followed by
// /fixtures/statistics?fixture= and flattens both into a RawFixture.
// LiveFixtureIDs lists the fixtures currently in play.
//
// Every failure is wrapped around one of the sentinel errors in errors.go:
//
//	timeout            ErrTimeout              transient, skip this cycle
//	HTTP 429           ErrRateLimited          global cooldown (default 60s)
//	HTTP 401/403       ErrAuthRejected         fatal, stop scanning
//	other non-2xx      ErrUpstreamUnavailable  transient
//	empty/malformed    ErrNoData               fixture not live, not an error
//
// While a cooldown is running every call fails fast with ErrRateLimited
// without touching the network.
package upstream
