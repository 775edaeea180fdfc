package token

import "time"

// DefaultExpiryBuffer is how far ahead of the exp claim a token is already
// considered due for refresh, so a request cannot race an actual expiry.
const DefaultExpiryBuffer = 120 * time.Second

// IsExpired reports whether the token's exp claim has passed. A token that
// cannot be decoded, or that carries no exp claim, counts as expired.
func IsExpired(raw string) bool {
	cs, err := Decode(raw)
	if err != nil || cs.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(cs.ExpiresAt)
}

// IsExpiringSoon reports whether the token expires within buffer. A
// non-positive buffer falls back to DefaultExpiryBuffer. Decode failures
// count as expiring.
func IsExpiringSoon(raw string, buffer time.Duration) bool {
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	cs, err := Decode(raw)
	if err != nil || cs.ExpiresAt.IsZero() {
		return true
	}
	return time.Until(cs.ExpiresAt) < buffer
}
