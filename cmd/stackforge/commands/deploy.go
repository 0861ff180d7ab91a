package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stackforge/stackforge/pkg/engine"
	"github.com/stackforge/stackforge/pkg/stores"
	"github.com/stackforge/stackforge/pkg/telemetry"
)

func newDeployCommand() *cobra.Command {
	var (
		historyDB     string
		noHistory     bool
		metricsListen string
		trace         bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run a full deployment against the target",
		Long: `Run a full deployment: classify the target's OS family, install the
enabled capabilities in phase order, apply the configurators, then verify
the deployed application.

The run is recorded in the local history database unless --no-history is
given. Every mutating remote command is appended to the target's audit log
before it executes.`,
		Example: `  # Deploy from the default document
  stackforge deploy

  # Deploy a specific document with metrics exposed
  stackforge deploy -c prod.yaml --metrics-listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			doc, client, err := connect(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() {
				if derr := client.Disconnect(); derr != nil {
					log.Warn().Err(derr).Msg("failed to close transport")
				}
			}()

			orch := engine.NewOrchestrator(client, doc)

			if metricsListen != "" {
				metrics, merr := setupMetrics(metricsListen)
				if merr != nil {
					return merr
				}
				client.SetObserver(metrics)
				orch.SetMetrics(metrics)
			}

			if trace {
				tracer, terr := setupTracer(cmd.Root().Version)
				if terr != nil {
					return terr
				}
				defer func() {
					if serr := tracer.Shutdown(context.Background()); serr != nil {
						log.Warn().Err(serr).Msg("failed to shut down tracer")
					}
				}()
				orch.SetTracer(tracer)
			}

			if !noHistory {
				store, serr := openHistoryStore(ctx, historyDB)
				if serr != nil {
					return serr
				}
				defer store.Close()
				orch.SetRecorder(store)
			}

			summary, runErr := orch.Run(ctx)

			if err := printSummary(summary); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&historyDB, "history-db", "", "history database path (default ~/.stackforge/history.db)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "skip recording the run in the history database")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&trace, "trace", false, "emit trace spans to stdout")

	return cmd
}

// setupMetrics builds an enabled metrics collector and starts its listener.
func setupMetrics(listen string) (*telemetry.Metrics, error) {
	cfg := telemetry.DefaultConfig().Metrics
	cfg.Enabled = true
	cfg.ListenAddress = listen

	metrics, err := telemetry.NewMetrics(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics collector: %w", err)
	}
	if err := metrics.StartMetricsServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics listener: %w", err)
	}
	return metrics, nil
}

// setupTracer starts a stdout tracer for the deployment.
func setupTracer(version string) (*telemetry.Tracer, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.ServiceVersion = version

	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to start tracer: %w", err)
	}
	return tracer, nil
}

// openHistoryStore opens (and migrates) the local deployment history.
func openHistoryStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".stackforge", "history.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return store, nil
}

// printSummary renders a run summary as text or JSON.
func printSummary(summary *engine.RunSummary) error {
	if summary == nil {
		return nil
	}

	if jsonOutput {
		blob, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}

	fmt.Printf("Run %s against %s (%s): %s\n", summary.RunID, summary.Host, summary.Family, summary.Status)
	if summary.Install != nil {
		fmt.Printf("  installed=%d skipped=%d failed=%d\n",
			len(summary.Install.Installed), len(summary.Install.Skipped), len(summary.Install.Failed))
		for _, outcome := range summary.Install.Failed {
			fmt.Printf("  failed capability %s: %s\n", outcome.Capability, outcome.Reason)
		}
	}
	if summary.Configure != nil {
		fmt.Printf("  configured=%d config_failed=%d\n",
			len(summary.Configure.Succeeded), len(summary.Configure.Failed))
		for _, outcome := range summary.Configure.Failed {
			fmt.Printf("  failed unit %s: %s\n", outcome.Unit, outcome.Reason)
		}
	}
	if summary.Verify != nil {
		fmt.Printf("  verified=%v attempts=%d\n", summary.Verify.Success, summary.Verify.AttemptsUsed)
	}
	if summary.Error != "" {
		fmt.Printf("  error: %s\n", summary.Error)
	}

	return nil
}
