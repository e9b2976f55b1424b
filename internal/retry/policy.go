// Package retry decides whether a publish attempt is currently allowed.
package retry

import "time"

// CanAttempt reports whether another attempt may start at now.
//
// No attempt is allowed once attempts reaches maxAttempts. A post that was
// never tried may always be attempted; otherwise retryDelay must have elapsed
// since lastAttempt.
func CanAttempt(attempts int, lastAttempt *time.Time, maxAttempts int, retryDelay time.Duration, now time.Time) bool {
	if attempts >= maxAttempts {
		return false
	}
	if lastAttempt == nil {
		return true
	}
	return now.Sub(*lastAttempt) >= retryDelay
}

// NextAttemptAt returns the earliest instant CanAttempt can become true, and
// false if the budget is exhausted.
func NextAttemptAt(attempts int, lastAttempt *time.Time, maxAttempts int, retryDelay time.Duration) (time.Time, bool) {
	if attempts >= maxAttempts {
		return time.Time{}, false
	}
	if lastAttempt == nil {
		return time.Time{}, true
	}
	return lastAttempt.Add(retryDelay), true
}
