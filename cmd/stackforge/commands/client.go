package commands

import (
	"context"
	"fmt"

	"github.com/stackforge/stackforge/pkg/config"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// buildTransportConfig maps the deployment document's target section onto the
// SSH transport configuration.
func buildTransportConfig(doc *config.Document) *ssh.Config {
	cfg := ssh.DefaultConfig(doc.Target.Host, doc.Target.User)

	if doc.Target.Port != 0 {
		cfg.Port = doc.Target.Port
	}
	if doc.Target.Password != "" {
		cfg.AuthMethod = ssh.AuthMethodPassword
		cfg.Password = doc.Target.Password
	}
	if doc.Target.PrivateKeyPath != "" {
		cfg.PrivateKeyPath = doc.Target.PrivateKeyPath
	}
	if doc.Target.KnownHostsPath != "" {
		cfg.KnownHostsPath = doc.Target.KnownHostsPath
	}
	if doc.Target.InsecureSkipHostKey {
		cfg.StrictHostKeyChecking = false
	}

	return cfg
}

// connect loads the document, builds the transport, and opens the connection.
// The caller owns the returned client and must Disconnect it.
func connect(ctx context.Context, path string) (*config.Document, *ssh.SSHClient, error) {
	doc, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load deployment document: %w", err)
	}

	client, err := ssh.NewSSHClient(buildTransportConfig(doc))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build transport: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", doc.Target.Host, err)
	}

	return doc, client, nil
}
