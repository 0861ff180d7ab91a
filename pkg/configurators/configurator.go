// Package configurators applies per-concern configuration after installation.
// Each unit is idempotent and bound to one concern; cross-unit ordering is
// expressed only through the pipeline order, never through direct references
// between units.
package configurators

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stackforge/stackforge/pkg/config"
	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// Runner is the slice of the transport configurators need.
type Runner interface {
	Execute(ctx context.Context, cmd ssh.Command) (*ssh.CommandResult, error)
	UploadBytes(ctx context.Context, data []byte, remotePath string, mode uint32) error
}

// Unit is one idempotent configuration step. Re-running a unit against an
// already-configured target must produce the same configuration and must not
// fail because a resource already exists.
type Unit interface {
	// Name identifies the unit in logs and summaries.
	Name() string

	// Requires names the capability that must be present for the unit to
	// run at all.
	Requires() string

	// Configure applies the unit's concern to the target.
	Configure(ctx context.Context) error
}

// UnitOutcome records one unit's result.
type UnitOutcome struct {
	// Unit is the unit name.
	Unit string `json:"unit"`

	// Requires is the capability the unit depends on.
	Requires string `json:"requires"`

	// Reason carries the failure reason for failed outcomes.
	Reason string `json:"reason,omitempty"`

	// Duration is the wall-clock time the unit took.
	Duration time.Duration `json:"duration"`
}

// Summary tallies per-unit outcomes for one pipeline run.
type Summary struct {
	Succeeded []UnitOutcome `json:"succeeded"`
	Failed    []UnitOutcome `json:"failed"`
}

// Deps is everything units share: the transport, the target's OS family, and
// the application configuration. Units hold no private cross-unit state.
type Deps struct {
	Runner Runner
	Family osmap.Family
	App    config.AppConfig
}

// BuildPipeline instantiates exactly the units whose prerequisite capability
// is present, in the same phase order used during installation. It is a pure
// function from installed set to ordered unit list, testable without I/O.
func BuildPipeline(deps Deps, installed map[string]bool) []Unit {
	candidates := []Unit{
		newWebServerUnit(deps),
		newRuntimeUnit(deps),
		newDatabaseUnit(deps),
		newCacheUnit(deps, installed[osmap.CapCache]),
		newContainerUnit(deps),
		newFirewallUnit(deps),
		newRestartUnit(deps, installed),
	}

	var units []Unit
	for _, u := range candidates {
		if installed[u.Requires()] {
			units = append(units, u)
		}
	}
	return units
}

// RunPipeline executes units in order. A failing unit is recorded and does
// not prevent subsequent independent units from running.
func RunPipeline(ctx context.Context, units []Unit) *Summary {
	summary := &Summary{
		Succeeded: []UnitOutcome{},
		Failed:    []UnitOutcome{},
	}

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			summary.Failed = append(summary.Failed, UnitOutcome{
				Unit:     unit.Name(),
				Requires: unit.Requires(),
				Reason:   "run aborted: " + err.Error(),
			})
			continue
		}

		start := time.Now()
		err := unit.Configure(ctx)
		duration := time.Since(start)

		outcome := UnitOutcome{
			Unit:     unit.Name(),
			Requires: unit.Requires(),
			Duration: duration,
		}

		if err != nil {
			outcome.Reason = err.Error()
			summary.Failed = append(summary.Failed, outcome)
			log.Error().Str("unit", unit.Name()).Err(err).Msg("configurator failed")
			continue
		}

		summary.Succeeded = append(summary.Succeeded, outcome)
		log.Info().Str("unit", unit.Name()).Dur("duration", duration).Msg("configurator applied")
	}

	return summary
}
