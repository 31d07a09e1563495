package fetcher

import "errors"

var (
	// ErrRateLimited reports rate-limit exhaustion: the registry was
	// still blocking after every allowed attempt. The batch should
	// stop; continuing would only record false failures.
	ErrRateLimited = errors.New("rate limited after exhausting proxy retries")

	// ErrNoProxies reports that a rotation was required but the pool
	// had nothing to offer. Equivalent to exhaustion for the caller.
	ErrNoProxies = errors.New("no proxies available for retry")

	// ErrSessionFatal reports that the browser session itself is
	// unusable. The whole checker, not just one identifier, is broken.
	ErrSessionFatal = errors.New("browser session unusable")
)

// IsStopSignal reports whether err must halt the entire batch rather
// than fail a single identifier.
func IsStopSignal(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNoProxies) ||
		errors.Is(err, ErrSessionFatal)
}
