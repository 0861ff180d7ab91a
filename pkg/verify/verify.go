// Package verify polls a deployed endpoint until its content matches an
// expected signature.
package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// Runner is the slice of the transport the internal check needs.
type Runner interface {
	Execute(ctx context.Context, cmd ssh.Command) (*ssh.CommandResult, error)
}

// Result is the outcome of a verification poll.
type Result struct {
	// Success is true when a response matched the signature in budget.
	Success bool `json:"success"`

	// AttemptsUsed is the number of polls issued, including the matching
	// one.
	AttemptsUsed int `json:"attempts_used"`

	// LastStatus is the last observed HTTP status, 0 if unreachable.
	LastStatus int `json:"last_status,omitempty"`
}

// Verifier polls endpoints. The HTTP client is injected so tests can point
// it at a local server and production can set timeouts and proxies.
type Verifier struct {
	// Client issues the external checks. Required.
	Client *http.Client

	// InitialDelay waits before the first poll; services may still be
	// starting when configuration finishes.
	InitialDelay time.Duration

	// MaxAttempts bounds polling.
	MaxAttempts int

	// Interval is the wait after each failed attempt.
	Interval time.Duration
}

// Verify polls the endpoint until the body contains the signature. It only
// validates external reachability; call VerifyInternal first to distinguish
// a broken deployment from broken firewall or routing.
func (v *Verifier) Verify(ctx context.Context, endpoint string, signature string) (*Result, error) {
	if v.Client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if v.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive")
	}

	result := &Result{}

	if v.InitialDelay > 0 {
		select {
		case <-time.After(v.InitialDelay):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}

	for attempt := 1; attempt <= v.MaxAttempts; attempt++ {
		result.AttemptsUsed = attempt

		matched, status := v.pollOnce(ctx, endpoint, signature)
		result.LastStatus = status
		if matched {
			result.Success = true
			log.Info().
				Str("endpoint", endpoint).
				Int("attempts", attempt).
				Msg("verification succeeded")
			return result, nil
		}

		log.Debug().
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Int("status", status).
			Msg("verification attempt did not match")

		if attempt < v.MaxAttempts {
			select {
			case <-time.After(v.Interval):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, nil
}

// pollOnce issues one external check.
func (v *Verifier) pollOnce(ctx context.Context, endpoint string, signature string) (bool, int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, 0
	}

	resp, err := v.Client.Do(req)
	if err != nil {
		return false, 0
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, resp.StatusCode
	}

	return strings.Contains(string(body), signature), resp.StatusCode
}

// VerifyInternal checks reachability from the target itself, bypassing
// firewall and routing. It must succeed before the external check is
// attempted; an internal failure means the deployment itself is broken.
func VerifyInternal(ctx context.Context, runner Runner, endpoint string, signature string) (bool, error) {
	result, err := runner.Execute(ctx, ssh.Command{
		Body:      fmt.Sprintf("curl -fsS --max-time 30 %s", endpoint),
		Timeout:   time.Minute,
		SkipAudit: true,
	})
	if err != nil {
		return false, err
	}
	if !result.Success {
		return false, nil
	}
	return strings.Contains(result.Stdout, signature), nil
}
