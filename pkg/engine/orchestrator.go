package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackforge/stackforge/pkg/config"
	"github.com/stackforge/stackforge/pkg/configurators"
	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/stores"
	"github.com/stackforge/stackforge/pkg/telemetry"
	"github.com/stackforge/stackforge/pkg/verify"
)

// Tracer is the slice of the tracing collector the engine uses. Satisfied by
// telemetry.Tracer.
type Tracer interface {
	StartDeploymentSpan(ctx context.Context, runID, host string) (context.Context, trace.Span)
	StartCapabilitySpan(ctx context.Context, capability string) (context.Context, trace.Span)
}

// Recorder persists completed deployment runs. Satisfied by stores.Store.
type Recorder interface {
	CreateDeployment(ctx context.Context, d *stores.Deployment) error
}

// DeploymentMetrics is the slice of the metrics collector the orchestrator
// uses directly.
type DeploymentMetrics interface {
	RecordConfigurator(unit string, success bool)
	RecordDeployment(status string, duration time.Duration)
}

// RunSummary is the full outcome of one deployment run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Host      string        `json:"host"`
	Blueprint string        `json:"blueprint"`
	Family    string        `json:"family"`
	Status    RunStatus     `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Install   *InstallSummary        `json:"install,omitempty"`
	Configure *configurators.Summary `json:"configure,omitempty"`
	Verify    *verify.Result         `json:"verify,omitempty"`

	// Error carries the run-fatal failure when Status is failed.
	Error string `json:"error,omitempty"`
}

// Orchestrator drives a full deployment run: classify, install, configure,
// verify, persist. One orchestrator serves one run against one target.
type Orchestrator struct {
	runner   configurators.Runner
	doc      *config.Document
	recorder Recorder
	metrics  DeploymentMetrics
	tracer   Tracer
	verifier *verify.Verifier

	// span is the run span, open from the start of Run until finish.
	span trace.Span
}

// NewOrchestrator creates an orchestrator for one deployment document.
func NewOrchestrator(runner configurators.Runner, doc *config.Document) *Orchestrator {
	return &Orchestrator{
		runner: runner,
		doc:    doc,
	}
}

// SetRecorder installs a run-history recorder. Optional.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// SetMetrics installs a metrics collector. Optional.
func (o *Orchestrator) SetMetrics(m DeploymentMetrics) {
	o.metrics = m
}

// SetTracer installs a tracing collector. Optional.
func (o *Orchestrator) SetTracer(t Tracer) {
	o.tracer = t
}

// SetVerifier overrides the default verifier. Used by tests to inject a
// short-interval verifier against a local server.
func (o *Orchestrator) SetVerifier(v *verify.Verifier) {
	o.verifier = v
}

// Run executes the full deployment. Mapping failures surface before any
// remote command is issued; after that, per-capability and per-unit failures
// degrade the run rather than aborting it. Only an unreachable target or a
// failed system-tooling phase is run-fatal.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		Host:      o.doc.Target.Host,
		Blueprint: o.doc.Target.Blueprint,
		StartedAt: time.Now(),
	}

	if o.tracer != nil {
		ctx, o.span = o.tracer.StartDeploymentSpan(ctx, summary.RunID, summary.Host)
	}

	family := osmap.Classify(o.doc.Target.Blueprint)
	if family == osmap.FamilyUnknown {
		return o.finish(ctx, summary, NewMappingError(
			fmt.Sprintf("unrecognized blueprint %q", o.doc.Target.Blueprint), nil,
		))
	}
	summary.Family = string(family)

	// Total mapping check before the first command: an unresolvable
	// capability must never surface mid-run as a partial deployment.
	if err := osmap.ValidateCatalog(family, o.doc.EnabledCapabilities()); err != nil {
		return o.finish(ctx, summary, NewMappingError("capability resolution failed", err))
	}

	log.Info().
		Str("run_id", summary.RunID).
		Str("host", summary.Host).
		Str("family", summary.Family).
		Msg("deployment run starting")

	// Install phase.
	installer := NewInstaller(o.runner, family)
	if om, ok := o.metrics.(InstallObserver); ok {
		installer.SetObserver(om)
	}
	if o.tracer != nil {
		installer.SetTracer(o.tracer)
	}

	install, err := installer.Install(ctx, o.capabilitySpecs())
	summary.Install = install
	if err != nil {
		return o.finish(ctx, summary, err)
	}

	// Configure phase, driven by the set actually present on the target.
	installed := make(map[string]bool, len(install.InstalledState()))
	for _, capability := range install.InstalledState() {
		installed[capability] = true
	}

	deps := configurators.Deps{
		Runner: o.runner,
		Family: family,
		App:    o.doc.App,
	}
	configure := configurators.RunPipeline(ctx, configurators.BuildPipeline(deps, installed))
	summary.Configure = configure

	if o.metrics != nil {
		for _, outcome := range configure.Succeeded {
			o.metrics.RecordConfigurator(outcome.Unit, true)
		}
		for _, outcome := range configure.Failed {
			o.metrics.RecordConfigurator(outcome.Unit, false)
		}
	}

	// Verify phase: the internal check runs first so a firewall or routing
	// problem is never misreported as a broken deployment.
	if o.doc.Verify.URL != "" {
		verifyResult, verr := o.runVerify(ctx)
		summary.Verify = verifyResult
		if verr != nil {
			return o.finish(ctx, summary, verr)
		}
	}

	return o.finish(ctx, summary, nil)
}

// capabilitySpecs converts the document's capability list into engine specs.
func (o *Orchestrator) capabilitySpecs() []CapabilitySpec {
	specs := make([]CapabilitySpec, 0, len(o.doc.Capabilities))
	for _, c := range o.doc.Capabilities {
		specs = append(specs, CapabilitySpec{
			Name:    c.Name,
			Enabled: c.Enabled,
			Version: c.Version,
			Params:  c.Params,
		})
	}
	return specs
}

// runVerify performs the internal then external verification checks.
func (o *Orchestrator) runVerify(ctx context.Context) (*verify.Result, error) {
	v := o.verifier
	if v == nil {
		v = &verify.Verifier{
			Client:       &http.Client{Timeout: 30 * time.Second},
			InitialDelay: time.Duration(o.doc.Verify.InitialDelaySeconds) * time.Second,
			MaxAttempts:  o.doc.Verify.MaxAttempts,
			Interval:     time.Duration(o.doc.Verify.IntervalSeconds) * time.Second,
		}
	}

	internal, err := verify.VerifyInternal(ctx, o.runner, "http://localhost/", o.doc.Verify.Signature)
	if err != nil {
		return nil, NewConnectionError("internal verification check failed", err)
	}
	if !internal {
		// Deployment itself is broken; skip the external poll.
		return &verify.Result{Success: false}, nil
	}

	result, err := v.Verify(ctx, o.doc.Verify.URL, o.doc.Verify.Signature)
	if err != nil {
		return result, NewVerificationError("external verification aborted", err)
	}
	return result, nil
}

// finish computes the terminal status, persists the run, and records run
// metrics. It always returns the summary, with runErr attached when fatal.
func (o *Orchestrator) finish(ctx context.Context, summary *RunSummary, runErr error) (*RunSummary, error) {
	summary.Duration = time.Since(summary.StartedAt)
	summary.Status = o.status(summary, runErr)
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	log.Info().
		Str("run_id", summary.RunID).
		Str("status", string(summary.Status)).
		Dur("duration", summary.Duration).
		Msg("deployment run finished")

	if o.metrics != nil {
		o.metrics.RecordDeployment(string(summary.Status), summary.Duration)
	}

	if o.span != nil {
		o.span.SetAttributes(telemetry.AttrRunStatus.String(string(summary.Status)))
		if runErr != nil {
			telemetry.RecordError(o.span, runErr)
		} else {
			telemetry.RecordSuccess(o.span)
		}
		o.span.End()
		o.span = nil
	}

	if o.recorder != nil {
		if err := o.persist(ctx, summary); err != nil {
			// History is advisory; a failed write never changes the outcome.
			log.Warn().Err(err).Msg("failed to persist deployment run")
		}
	}

	return summary, runErr
}

// status derives the terminal run status from the summary and fatal error.
func (o *Orchestrator) status(summary *RunSummary, runErr error) RunStatus {
	if runErr != nil {
		return RunStatusFailed
	}

	degraded := false
	if summary.Install != nil && len(summary.Install.Failed) > 0 {
		degraded = true
	}
	if summary.Configure != nil && len(summary.Configure.Failed) > 0 {
		degraded = true
	}
	if summary.Verify != nil && !summary.Verify.Success {
		degraded = true
	}

	if degraded {
		return RunStatusDegraded
	}
	return RunStatusSucceeded
}

// persist writes the run to the history store.
func (o *Orchestrator) persist(ctx context.Context, summary *RunSummary) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	completed := summary.StartedAt.Add(summary.Duration)
	d := &stores.Deployment{
		ID:          summary.RunID,
		Host:        summary.Host,
		Blueprint:   summary.Blueprint,
		Family:      summary.Family,
		Status:      stores.DeploymentStatus(summary.Status),
		Summary:     string(blob),
		StartedAt:   summary.StartedAt,
		CompletedAt: &completed,
		CreatedAt:   time.Now(),
	}
	if summary.Error != "" {
		msg := summary.Error
		d.Error = &msg
	}
	if summary.Install != nil {
		d.Installed = len(summary.Install.Installed)
		d.Skipped = len(summary.Install.Skipped)
		d.Failed = len(summary.Install.Failed)
	}
	if summary.Configure != nil {
		d.Configured = len(summary.Configure.Succeeded)
		d.ConfigFailed = len(summary.Configure.Failed)
	}
	if summary.Verify != nil {
		d.Verified = summary.Verify.Success
		d.VerifyAttempts = summary.Verify.AttemptsUsed
	}

	return o.recorder.CreateDeployment(ctx, d)
}
