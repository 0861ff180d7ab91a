package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/telemetry"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// Runner is the slice of the transport the engine needs.
type Runner interface {
	Execute(ctx context.Context, cmd ssh.Command) (*ssh.CommandResult, error)
}

// InstallObserver receives per-capability install outcomes for metrics.
type InstallObserver interface {
	ObserveInstall(capability string, status string, duration time.Duration)
}

// defaultInstallTimeout bounds a single package install command.
const defaultInstallTimeout = 10 * time.Minute

// Installer converges enabled-but-missing capabilities onto a target. It is
// strictly sequential: one command in flight at a time, because later
// commands depend on the side effects of earlier ones.
type Installer struct {
	runner   Runner
	family   osmap.Family
	observer InstallObserver
	tracer   Tracer

	// refreshed is set after the package index refresh that precedes the
	// first install of a run.
	refreshed bool
}

// NewInstaller creates an installer for one target and OS family.
func NewInstaller(runner Runner, family osmap.Family) *Installer {
	return &Installer{runner: runner, family: family}
}

// SetObserver installs a metrics observer. Must be called before Install.
func (i *Installer) SetObserver(o InstallObserver) {
	i.observer = o
}

// SetTracer installs a tracing collector. Must be called before Install.
func (i *Installer) SetTracer(t Tracer) {
	i.tracer = t
}

// Install probes, orders, and installs the enabled capabilities. Already
// present capabilities are skipped; a failing capability is recorded and
// does not abort independent siblings or later phases. Only a failed
// system-tooling phase is run-fatal, because every later phase implicitly
// assumes it.
func (i *Installer) Install(ctx context.Context, specs []CapabilitySpec) (*InstallSummary, error) {
	summary := &InstallSummary{
		Installed: []CapabilityOutcome{},
		Skipped:   []CapabilityOutcome{},
		Failed:    []CapabilityOutcome{},
	}

	byPhase, err := i.groupEnabled(specs)
	if err != nil {
		return summary, err
	}

	for _, phase := range PhaseOrder {
		phaseSpecs := byPhase[phase]
		if len(phaseSpecs) == 0 {
			continue
		}

		installedThisPhase := i.runPhase(ctx, phase, phaseSpecs, summary)

		// Re-probe rather than trust install exit codes: a package that
		// installed but is not yet registered must not be mistaken for
		// ready by the next phase.
		i.reprobePhase(ctx, phase, installedThisPhase, summary)

		if phase == PhaseSystemTooling && len(summary.Failed) > 0 {
			return summary, NewApplicationError(
				"system tooling phase failed; later phases cannot proceed", nil,
			).WithCapability(summary.Failed[0].Capability).WithStderr(summary.Failed[0].Reason)
		}

		if err := ctx.Err(); err != nil {
			// Abort between commands only; work already recorded stands.
			return summary, NewConnectionError("run aborted", err)
		}
	}

	log.Info().
		Int("installed", len(summary.Installed)).
		Int("skipped", len(summary.Skipped)).
		Int("failed", len(summary.Failed)).
		Msg("install run complete")

	return summary, nil
}

// groupEnabled filters to enabled capabilities and groups them by phase.
// Unknown capability names are mapping-class errors.
func (i *Installer) groupEnabled(specs []CapabilitySpec) (map[Phase][]CapabilitySpec, error) {
	byPhase := make(map[Phase][]CapabilitySpec)
	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}
		phase, ok := PhaseFor(spec.Name)
		if !ok {
			return nil, NewMappingError(
				fmt.Sprintf("unsupported capability %q", spec.Name), nil,
			).WithCapability(spec.Name)
		}
		if _, err := osmap.Resolve(spec.Name, i.family); err != nil {
			return nil, NewMappingError("capability resolution failed", err).WithCapability(spec.Name)
		}
		byPhase[phase] = append(byPhase[phase], spec)
	}
	return byPhase, nil
}

// runPhase probes and installs one phase's capabilities, appending outcomes
// to the summary. Returns the specs it actually installed.
func (i *Installer) runPhase(ctx context.Context, phase Phase, specs []CapabilitySpec, summary *InstallSummary) []CapabilitySpec {
	var installed []CapabilitySpec

	for _, spec := range specs {
		if i.convergeOne(ctx, phase, spec, summary) {
			installed = append(installed, spec)
		}
	}

	return installed
}

// convergeOne probes and, when missing, installs a single capability. Returns
// true when an install actually happened.
func (i *Installer) convergeOne(ctx context.Context, phase Phase, spec CapabilitySpec, summary *InstallSummary) bool {
	start := time.Now()

	var span trace.Span
	if i.tracer != nil {
		ctx, span = i.tracer.StartCapabilitySpan(ctx, spec.Name)
		defer span.End()
	}

	present, err := osmap.Probe(ctx, i.runner, spec.Name, i.family)
	if err != nil {
		i.recordFailure(summary, spec.Name, phase, err.Error(), time.Since(start))
		if span != nil {
			telemetry.RecordError(span, err)
		}
		return false
	}

	if present {
		summary.Skipped = append(summary.Skipped, CapabilityOutcome{
			Capability: spec.Name,
			Phase:      phase,
			Duration:   time.Since(start),
		})
		i.observe(spec.Name, "skipped", time.Since(start))
		if span != nil {
			telemetry.RecordSuccess(span)
		}
		log.Debug().Str("capability", spec.Name).Msg("capability already present, skipping")
		return false
	}

	if reason, ok := i.installOne(ctx, spec); !ok {
		i.recordFailure(summary, spec.Name, phase, reason, time.Since(start))
		if span != nil {
			telemetry.RecordError(span, errors.New(reason))
		}
		return false
	}

	summary.Installed = append(summary.Installed, CapabilityOutcome{
		Capability: spec.Name,
		Phase:      phase,
		Duration:   time.Since(start),
	})
	i.observe(spec.Name, "installed", time.Since(start))
	if span != nil {
		telemetry.RecordSuccess(span)
	}
	log.Info().Str("capability", spec.Name).Str("phase", string(phase)).Msg("capability installed")
	return true
}

// installOne refreshes the package index once per run, then installs and
// enables a single capability. Returns a failure reason when unsuccessful.
func (i *Installer) installOne(ctx context.Context, spec CapabilitySpec) (string, bool) {
	mapping, err := osmap.Resolve(spec.Name, i.family)
	if err != nil {
		return err.Error(), false
	}

	if !i.refreshed {
		result, err := i.runner.Execute(ctx, ssh.Command{
			Body:    osmap.RefreshIndexCommand(i.family),
			Timeout: defaultInstallTimeout,
		})
		if err != nil {
			return fmt.Sprintf("package index refresh failed: %v", err), false
		}
		if !result.Success {
			log.Warn().Str("stderr", result.Stderr).Msg("package index refresh failed, attempting install anyway")
		}
		i.refreshed = true
	}

	body := osmap.InstallCommand(i.family, mapping.Package, spec.Version)
	if mapping.Service != "" {
		body = body + "\n" + osmap.ServiceEnableCommand(mapping.Service)
	}

	result, err := i.runner.Execute(ctx, ssh.Command{
		Body:    body,
		Timeout: defaultInstallTimeout,
	})
	if err != nil {
		return err.Error(), false
	}
	if !result.Success {
		reason := result.Stderr
		if reason == "" {
			reason = fmt.Sprintf("install exited %d", result.ExitCode)
		}
		return reason, false
	}

	return "", true
}

// reprobePhase confirms the phase's installs are actually present. Anything
// that fails the re-probe is demoted from installed to failed.
func (i *Installer) reprobePhase(ctx context.Context, phase Phase, installed []CapabilitySpec, summary *InstallSummary) {
	for _, spec := range installed {
		present, err := osmap.Probe(ctx, i.runner, spec.Name, i.family)
		if err == nil && present {
			continue
		}

		reason := "package not present after install"
		if err != nil {
			reason = fmt.Sprintf("post-install probe failed: %v", err)
		}

		for idx, outcome := range summary.Installed {
			if outcome.Capability == spec.Name {
				summary.Installed = append(summary.Installed[:idx], summary.Installed[idx+1:]...)
				break
			}
		}
		i.recordFailure(summary, spec.Name, phase, reason, 0)
	}
}

func (i *Installer) recordFailure(summary *InstallSummary, capability string, phase Phase, reason string, duration time.Duration) {
	summary.Failed = append(summary.Failed, CapabilityOutcome{
		Capability: capability,
		Phase:      phase,
		Reason:     reason,
		Duration:   duration,
	})
	i.observe(capability, "failed", duration)
	log.Error().Str("capability", capability).Str("reason", reason).Msg("capability install failed")
}

func (i *Installer) observe(capability, status string, duration time.Duration) {
	if i.observer != nil {
		i.observer.ObserveInstall(capability, status, duration)
	}
}
