package osmap

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// Runner is the slice of the transport that probing needs.
type Runner interface {
	Execute(ctx context.Context, cmd ssh.Command) (*ssh.CommandResult, error)
}

// probeTimeout bounds a single probe. Probes are lightweight queries; a slow
// answer means the channel is unhealthy, not that the package is large.
const probeTimeout = 30 * time.Second

// Probe checks whether a capability is installed on the target. It issues a
// side-effect-free presence query and is safe to call repeatedly and
// concurrently with other probes.
func Probe(ctx context.Context, runner Runner, capability string, family Family) (bool, error) {
	mapping, err := Resolve(capability, family)
	if err != nil {
		return false, err
	}

	result, err := runner.Execute(ctx, ssh.Command{
		Body:      ProbeCommand(family, mapping.Package),
		Timeout:   probeTimeout,
		SkipAudit: true,
	})
	if err != nil {
		return false, err
	}

	log.Debug().
		Str("capability", capability).
		Str("package", mapping.Package).
		Bool("present", result.Success).
		Msg("probed capability")

	return result.Success, nil
}

// ProbeInstalledState probes a set of capabilities and returns the subset
// confirmed present. The returned set is re-derivable at any time by probing
// again; no installed-state knowledge lives only in orchestrator memory.
func ProbeInstalledState(ctx context.Context, runner Runner, capabilities []string, family Family) (map[string]bool, error) {
	installed := make(map[string]bool, len(capabilities))
	for _, capability := range capabilities {
		present, err := Probe(ctx, runner, capability, family)
		if err != nil {
			return nil, err
		}
		installed[capability] = present
	}
	return installed, nil
}
