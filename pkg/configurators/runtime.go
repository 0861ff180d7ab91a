package configurators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// overridesPath is where runtime tuning lives on the target. Keeping it in
// one place and linking it into the runtime's conf.d directories makes the
// unit safe to re-run and version-agnostic across PHP releases.
const overridesPath = "/etc/stackforge/php-overrides.ini"

// runtimeUnit tunes the language runtime's process manager: execution
// timeouts, upload limits, and worker counts.
type runtimeUnit struct {
	deps Deps
}

func newRuntimeUnit(deps Deps) *runtimeUnit {
	return &runtimeUnit{deps: deps}
}

func (u *runtimeUnit) Name() string     { return "runtime-tuning" }
func (u *runtimeUnit) Requires() string { return osmap.CapRuntime }

func (u *runtimeUnit) Configure(ctx context.Context) error {
	rt := u.deps.App.Runtime

	mapping, err := osmap.Resolve(osmap.CapRuntime, u.deps.Family)
	if err != nil {
		return err
	}

	overrides := renderRuntimeOverrides(rt.MaxExecutionSeconds, rt.UploadLimitMB, rt.Workers)
	if err := u.deps.Runner.UploadBytes(ctx, []byte(overrides), overridesPath, 0644); err != nil {
		return fmt.Errorf("failed to upload runtime overrides: %w", err)
	}

	var b strings.Builder
	b.WriteString("for d in /etc/php/*/fpm/conf.d /etc/php.d; do\n")
	fmt.Fprintf(&b, "  [ -d \"$d\" ] && ln -sf %s \"$d/99-stackforge.ini\"\n", overridesPath)
	b.WriteString("done\ntrue\n")
	b.WriteString(osmap.ServiceRestartCommand(mapping.Service))

	result, err := u.deps.Runner.Execute(ctx, ssh.Command{
		Body:    b.String(),
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("runtime tuning exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}

// renderRuntimeOverrides renders the ini override file from typed values.
// Zero values fall back to conservative defaults.
func renderRuntimeOverrides(maxExecSeconds, uploadLimitMB, workers int) string {
	if maxExecSeconds <= 0 {
		maxExecSeconds = 120
	}
	if uploadLimitMB <= 0 {
		uploadLimitMB = 64
	}
	if workers <= 0 {
		workers = 8
	}

	var b strings.Builder
	b.WriteString("; managed by stackforge\n")
	fmt.Fprintf(&b, "max_execution_time = %d\n", maxExecSeconds)
	fmt.Fprintf(&b, "upload_max_filesize = %dM\n", uploadLimitMB)
	fmt.Fprintf(&b, "post_max_size = %dM\n", uploadLimitMB+8)
	b.WriteString("memory_limit = 256M\n")
	fmt.Fprintf(&b, "pm.max_children = %d\n", workers)
	return b.String()
}
