// Package ssh provides the SSH-based remote command transport.
package ssh

import (
	"context"
	"time"
)

// Runner is the interface the orchestration engine uses to act on a target.
// It executes one command at a time; callers must not interleave mutating
// commands against the same target.
type Runner interface {
	// Connect establishes an SSH connection to the remote host.
	// Returns an error if connection fails or authentication is rejected.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// HealthCheck verifies the connection is still alive and responsive.
	HealthCheck(ctx context.Context) error

	// Execute runs a command on the remote host and returns a structured
	// result. Connection-class failures are retried per the configured
	// RetryPolicy; a command that ran and exited nonzero is returned with
	// Success=false and is never retried.
	Execute(ctx context.Context, cmd Command) (*CommandResult, error)

	// UploadBytes writes in-memory content to a remote path via SFTP.
	UploadBytes(ctx context.Context, data []byte, remotePath string, mode uint32) error

	// UploadFile uploads a local file to the remote host via SFTP.
	UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error

	// DownloadFile downloads a remote file to a local path via SFTP.
	DownloadFile(ctx context.Context, remotePath string, localPath string) error

	// ReadFile reads a remote file into memory via SFTP.
	ReadFile(ctx context.Context, remotePath string) ([]byte, error)

	// ConnectionInfo returns information about the current connection.
	ConnectionInfo() ConnectionInfo
}

// Command is a self-contained script to run on the target. The body may
// contain arbitrary shell metacharacters, nested quoting, and heredocs; the
// transport guarantees byte-exact delivery regardless of content.
type Command struct {
	// Body is the script text. Multi-line bodies are allowed.
	Body string

	// Timeout bounds a single execution attempt. Zero means the transport's
	// default command timeout.
	Timeout time.Duration

	// RunFatal marks a command whose failure should abort the whole run
	// rather than only the affected phase.
	RunFatal bool

	// SkipAudit suppresses the remote audit log entry. Used for read-only
	// probes that would otherwise flood the log.
	SkipAudit bool
}

// CommandResult is the outcome of one Execute call.
type CommandResult struct {
	// Success is true when the remote command exited zero.
	Success bool

	// ExitCode is the remote exit status. -1 when the command never ran.
	ExitCode int

	// Stdout is the captured standard output, trimmed.
	Stdout string

	// Stderr is the captured standard error, trimmed.
	Stderr string

	// Duration is the wall-clock time spent, including retries.
	Duration time.Duration

	// Retries is the number of connection-class retry attempts consumed.
	Retries int
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	Host        string
	Port        int
	User        string
	ConnectedAt time.Time
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "execute", "upload").
	Op string

	// Err is the underlying error.
	Err error

	// IsTemporary indicates a connection-class failure eligible for retry.
	IsTemporary bool

	// IsAuthError indicates the failure is an authentication rejection.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
