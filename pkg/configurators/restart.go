package configurators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// restartUnit performs the final service restarts so every configured
// service picks up the full set of changes. It runs last in the pipeline.
type restartUnit struct {
	deps      Deps
	installed map[string]bool
}

func newRestartUnit(deps Deps, installed map[string]bool) *restartUnit {
	return &restartUnit{deps: deps, installed: installed}
}

func (u *restartUnit) Name() string     { return "service-restarts" }
func (u *restartUnit) Requires() string { return osmap.CapWebServer }

// restartOrder lists capabilities whose services are restarted, dependencies
// first so the front end comes back against a ready backend.
var restartOrder = []string{
	osmap.CapDataStore,
	osmap.CapCache,
	osmap.CapRuntime,
	osmap.CapWebServer,
}

func (u *restartUnit) Configure(ctx context.Context) error {
	var b strings.Builder
	for _, capability := range restartOrder {
		if !u.installed[capability] {
			continue
		}
		mapping, err := osmap.Resolve(capability, u.deps.Family)
		if err != nil {
			return err
		}
		if mapping.Service == "" {
			continue
		}
		b.WriteString(osmap.ServiceRestartCommand(mapping.Service))
		b.WriteByte('\n')
	}

	if b.Len() == 0 {
		return nil
	}

	result, err := u.deps.Runner.Execute(ctx, ssh.Command{
		Body:    b.String(),
		Timeout: 5 * time.Minute,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("service restarts exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}
