package ssh

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/stackforge/stackforge/pkg/audit"
)

// CommandObserver receives the outcome of every executed command. Used to
// feed metrics without coupling the transport to a metrics registry.
type CommandObserver interface {
	ObserveCommand(success bool, duration time.Duration, retries int)
}

// SetObserver installs a command observer. Must be called before Execute.
func (c *SSHClient) SetObserver(o CommandObserver) {
	c.observer = o
}

// Execute runs a command on the remote host.
//
// The script body is base64-encoded locally and decoded-then-executed on the
// remote side, so arbitrary quoting, heredocs, and metacharacters survive
// byte-exact. This requires base64 and /bin/bash on the target; that minimal
// toolchain is a documented precondition of supported blueprints.
func (c *SSHClient) Execute(ctx context.Context, cmd Command) (*CommandResult, error) {
	if cmd.Body == "" {
		return nil, &TransportError{
			Op:  "execute",
			Err: fmt.Errorf("empty command body"),
		}
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = c.config.CommandTimeout
	}

	start := time.Now()

	// The audit entry is written before execution so the log reflects what
	// was issued even if the run never returns (e.g. a partition
	// mid-command). An audit failure never aborts the main command.
	if !cmd.SkipAudit && c.config.AuditLogPath != "" {
		if err := c.appendAudit(ctx, cmd.Body); err != nil {
			log.Warn().Err(err).Str("host", c.config.Host).Msg("failed to write remote audit entry")
		}
	}

	policy := c.config.Retry
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := c.runOnce(ctx, encodeForRemote(cmd.Body), timeout)
		if err == nil {
			result.Retries = attempt - 1
			result.Duration = time.Since(start)
			if c.observer != nil {
				c.observer.ObserveCommand(result.Success, result.Duration, result.Retries)
			}
			return result, nil
		}

		lastErr = err
		if !policy.classify(err) {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Str("host", c.config.Host).
			Msg("connection-class failure")

		if attempt < policy.MaxAttempts {
			select {
			case <-time.After(policy.Delay):
			case <-ctx.Done():
				if c.observer != nil {
					c.observer.ObserveCommand(false, time.Since(start), attempt-1)
				}
				return nil, &TransportError{Op: "execute", Err: ctx.Err(), IsTemporary: true}
			}

			// A connection-class failure usually means the underlying
			// connection is gone; Connect replaces a dead connection, so the
			// next attempt runs on a fresh one instead of failing identically.
			if cerr := c.Connect(ctx); cerr != nil {
				lastErr = cerr
				if !policy.classify(cerr) {
					break
				}
			}
		}
	}

	if c.observer != nil {
		c.observer.ObserveCommand(false, time.Since(start), policy.MaxAttempts-1)
	}
	return nil, lastErr
}

// runOnce performs a single execution attempt of an already-encoded remote
// command line.
func (c *SSHClient) runOnce(ctx context.Context, remoteCmd string, timeout time.Duration) (*CommandResult, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(remoteCmd)
	}()

	var execErr error
	select {
	case <-attemptCtx.Done():
		// A command already dispatched to the remote shell cannot be safely
		// interrupted; signal and report the attempt as a channel failure.
		_ = session.Signal(ssh.SIGTERM)
		execErr = &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("command timed out after %s", timeout),
			IsTemporary: true,
		}
	case execErr = <-doneChan:
	}

	duration := time.Since(started)
	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Int("stdout_len", len(stdout)).
		Int("stderr_len", len(stderr)).
		Dur("duration", duration).
		Err(execErr).
		Msg("command attempt completed")

	if execErr == nil {
		return &CommandResult{
			Success:  true,
			ExitCode: 0,
			Stdout:   stdout,
			Stderr:   stderr,
			Duration: duration,
		}, nil
	}

	// Application-class: the command ran and exited nonzero. Returned as a
	// structured result, never retried.
	if exitErr, ok := execErr.(*ssh.ExitError); ok {
		return &CommandResult{
			Success:  false,
			ExitCode: exitErr.ExitStatus(),
			Stdout:   stdout,
			Stderr:   stderr,
			Duration: duration,
		}, nil
	}

	if te, ok := execErr.(*TransportError); ok {
		return nil, te
	}

	return nil, &TransportError{
		Op:          "execute",
		Err:         execErr,
		IsTemporary: !IsAuthError(execErr),
		IsAuthError: IsAuthError(execErr),
	}
}

// encodeForRemote wraps a script body in the transport-safe decode-then-
// execute invocation. The payload alphabet is plain base64, so the outer
// command needs no quoting at all.
func encodeForRemote(body string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	return fmt.Sprintf("echo %s | base64 -d | /bin/bash", encoded)
}

// appendAudit appends a timestamped entry with the verbatim pre-encoding
// command text to the remote audit log. The entry travels through the same
// encoding path as command bodies, so log content is also byte-exact.
func (c *SSHClient) appendAudit(ctx context.Context, body string) error {
	entry := audit.FormatEntry(time.Now().UTC(), body)
	payload := base64.StdEncoding.EncodeToString([]byte(entry))

	remote := fmt.Sprintf("echo %s | base64 -d >> %s", payload, c.config.AuditLogPath)
	if !c.auditReady {
		remote = fmt.Sprintf("mkdir -p %s && %s", path.Dir(c.config.AuditLogPath), remote)
	}

	result, err := c.runOnce(ctx, remote, 30*time.Second)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("audit append exited %d: %s", result.ExitCode, result.Stderr)
	}

	c.auditReady = true
	return nil
}
