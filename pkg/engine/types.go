package engine

import (
	"time"

	"github.com/stackforge/stackforge/pkg/osmap"
)

// CapabilitySpec is one caller-supplied desired capability. Read-only to the
// engine.
type CapabilitySpec struct {
	// Name is the abstract capability name (e.g. "web-server").
	Name string `json:"name"`

	// Enabled toggles whether the capability should be converged at all.
	Enabled bool `json:"enabled"`

	// Version is a free-form version hint passed to the package manager.
	Version string `json:"version,omitempty"`

	// Params is a free-form parameter bag consumed by configurators.
	Params map[string]any `json:"params,omitempty"`
}

// Phase orders capability installation. Later phases assume earlier ones are
// available: runtime extensions assume the data store package exists, and
// firewall rules assume the full set of listening ports is known.
type Phase string

const (
	PhaseSystemTooling Phase = "system-tooling"
	PhaseWebServer     Phase = "web-server"
	PhaseDataStore     Phase = "data-store"
	PhaseRuntime       Phase = "runtime"
	PhaseAuxiliary     Phase = "auxiliary"
	PhaseFirewall      Phase = "firewall"
)

// PhaseOrder is the fixed execution sequence. It is identical for every run
// regardless of the order capabilities arrive in.
var PhaseOrder = []Phase{
	PhaseSystemTooling,
	PhaseWebServer,
	PhaseDataStore,
	PhaseRuntime,
	PhaseAuxiliary,
	PhaseFirewall,
}

// phaseByCapability assigns each supported capability to its phase.
var phaseByCapability = map[string]Phase{
	osmap.CapSystemTooling:    PhaseSystemTooling,
	osmap.CapWebServer:        PhaseWebServer,
	osmap.CapDataStore:        PhaseDataStore,
	osmap.CapRuntime:          PhaseRuntime,
	osmap.CapCache:            PhaseAuxiliary,
	osmap.CapContainerRuntime: PhaseAuxiliary,
	osmap.CapFirewall:         PhaseFirewall,
}

// PhaseFor returns the installation phase of a capability.
func PhaseFor(capability string) (Phase, bool) {
	phase, ok := phaseByCapability[capability]
	return phase, ok
}

// CapabilityOutcome records the per-capability result of an install run.
type CapabilityOutcome struct {
	// Capability is the abstract capability name.
	Capability string `json:"capability"`

	// Phase is the installation phase the capability belongs to.
	Phase Phase `json:"phase"`

	// Reason carries the failure reason (last captured stderr) for failed
	// outcomes, empty otherwise.
	Reason string `json:"reason,omitempty"`

	// Duration is the wall-clock time spent on this capability.
	Duration time.Duration `json:"duration"`
}

// InstallSummary is the sole contract the installer surfaces to its caller.
type InstallSummary struct {
	// Installed lists capabilities installed during this run, in the order
	// they were installed.
	Installed []CapabilityOutcome `json:"installed"`

	// Skipped lists enabled capabilities already present on the target.
	Skipped []CapabilityOutcome `json:"skipped"`

	// Failed lists capabilities whose install command failed, with reasons.
	Failed []CapabilityOutcome `json:"failed"`
}

// InstalledState returns the capability names confirmed present after the
// run: everything installed plus everything already present.
func (s *InstallSummary) InstalledState() []string {
	state := make([]string, 0, len(s.Installed)+len(s.Skipped))
	for _, o := range s.Installed {
		state = append(state, o.Capability)
	}
	for _, o := range s.Skipped {
		state = append(state, o.Capability)
	}
	return state
}

// RunStatus summarizes how a whole run ended.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusDegraded  RunStatus = "degraded"
	RunStatusFailed    RunStatus = "failed"
)
