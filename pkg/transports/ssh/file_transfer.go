package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// UploadBytes writes in-memory content to a remote path via SFTP. Parent
// directories are created as needed.
func (c *SSHClient) UploadBytes(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "upload", Err: err, IsTemporary: true}
	}

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer dst.Close()

	if _, err := dst.Write(data); err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to write remote file: %w", err),
			IsTemporary: true,
		}
	}

	if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to chmod remote file: %w", err)}
	}

	log.Debug().
		Str("remote_path", remotePath).
		Int("bytes", len(data)).
		Msg("uploaded content")

	return nil
}

// UploadFile uploads a local file to the remote host via SFTP.
func (c *SSHClient) UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to read local file: %w", err),
		}
	}
	return c.UploadBytes(ctx, data, remotePath, mode)
}

// DownloadFile downloads a remote file to a local path via SFTP.
func (c *SSHClient) DownloadFile(ctx context.Context, remotePath string, localPath string) error {
	data, err := c.ReadFile(ctx, remotePath)
	if err != nil {
		return err
	}

	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return &TransportError{
			Op:  "download",
			Err: fmt.Errorf("failed to write local file: %w", err),
		}
	}

	return nil
}

// ReadFile reads a remote file into memory via SFTP.
func (c *SSHClient) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "download", Err: err, IsTemporary: true}
	}

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	src, err := sftpClient.Open(remotePath)
	if err != nil {
		return nil, &TransportError{
			Op:  "download",
			Err: fmt.Errorf("failed to open remote file: %w", err),
		}
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, &TransportError{
			Op:          "download",
			Err:         fmt.Errorf("failed to read remote file: %w", err),
			IsTemporary: true,
		}
	}

	return data, nil
}

// createSFTPClient creates a new SFTP client over the SSH connection.
func (c *SSHClient) createSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}

	return sftpClient, nil
}
