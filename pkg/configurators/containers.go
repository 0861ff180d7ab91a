package configurators

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// containerUnit uploads the compose document and starts the multi-service
// composition.
type containerUnit struct {
	deps Deps
}

func newContainerUnit(deps Deps) *containerUnit {
	return &containerUnit{deps: deps}
}

func (u *containerUnit) Name() string     { return "container-composition" }
func (u *containerUnit) Requires() string { return osmap.CapContainerRuntime }

func (u *containerUnit) Configure(ctx context.Context) error {
	compose := u.deps.App.Compose
	if compose.File == "" {
		// Container runtime installed but no composition to run.
		return nil
	}

	data, err := os.ReadFile(compose.File)
	if err != nil {
		return fmt.Errorf("failed to read compose file: %w", err)
	}

	remoteFile := path.Join(compose.ProjectDir, "docker-compose.yml")
	if err := u.deps.Runner.UploadBytes(ctx, data, remoteFile, 0644); err != nil {
		return fmt.Errorf("failed to upload compose file: %w", err)
	}

	// up -d is convergent: already-running services with unchanged
	// definitions are left alone.
	script := fmt.Sprintf(
		"cd %s\ndocker compose pull --quiet || true\ndocker compose up -d --build",
		compose.ProjectDir,
	)

	result, err := u.deps.Runner.Execute(ctx, ssh.Command{
		Body:    script,
		Timeout: 15 * time.Minute,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("compose startup exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}
