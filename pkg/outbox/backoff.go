package outbox

import (
	"math/rand"
	"time"
	"unicode/utf8"
)

// backoff doubles from one second per attempt and caps at maxBackoff.
func backoff(attempts int, maxBackoff time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if attempts > 31 {
		return maxBackoff
	}
	d := time.Second << (attempts - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// jitter returns a value in [0, maxJitter].
func jitter(r *rand.Rand, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 || r == nil {
		return 0
	}
	return time.Duration(r.Int63n(int64(maxJitter) + 1)) //nolint:gosec
}

// truncateError keeps at most maxBytes of the message without splitting a rune.
func truncateError(err error, maxBytes int) string {
	if err == nil || maxBytes <= 0 {
		return ""
	}
	s := err.Error()
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
