package ssh

import (
	"strings"
	"time"
)

// RetryPolicy governs how connection-class failures are retried. Retry is a
// property of the channel, never of the remote command's own exit status.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the pause between attempts.
	Delay time.Duration

	// Classify reports whether an error signature is retryable. When nil,
	// IsConnectionError is used.
	Classify func(error) bool
}

// DefaultRetryPolicy matches the behavior expected for flaky cloud networks:
// a few quick attempts with a short fixed delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
	}
}

func (p RetryPolicy) classify(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return IsConnectionError(err)
}

// connectionSignatures are the error substrings treated as connection-class.
// Authentication rejections are deliberately absent: retrying bad credentials
// only triggers lockouts.
var connectionSignatures = []string{
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"no route to host",
	"host is down",
	"network is unreachable",
	"handshake failed",
	"kex_exchange",
	"unexpected packet",
	"connection lost",
	"eof",
}

// IsConnectionError reports whether err looks like a channel-level failure
// (reset, timeout, refused, unreachable, handshake) rather than a remote
// command's own failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(*TransportError); ok {
		if te.IsAuthError {
			return false
		}
		if te.IsTemporary {
			return true
		}
	}
	sig := strings.ToLower(err.Error())
	for _, marker := range connectionSignatures {
		if strings.Contains(sig, marker) {
			return true
		}
	}
	return false
}

// IsAuthError reports whether err is an authentication rejection.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(*TransportError); ok && te.IsAuthError {
		return true
	}
	sig := strings.ToLower(err.Error())
	return strings.Contains(sig, "unable to authenticate") ||
		strings.Contains(sig, "permission denied") ||
		strings.Contains(sig, "authentication rejected")
}
