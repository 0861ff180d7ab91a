package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackforge/stackforge/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		historyDB string
		host      string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deployment runs",
		Long: `List deployment runs from the local history database, newest first.
Filter to one host with --host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistoryStore(ctx, historyDB)
			if err != nil {
				return err
			}
			defer store.Close()

			var deployments []*stores.Deployment
			if host != "" {
				deployments, err = store.ListDeploymentsByHost(ctx, host, limit, 0)
			} else {
				deployments, err = store.ListDeployments(ctx, limit, 0)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				blob, jerr := json.MarshalIndent(deployments, "", "  ")
				if jerr != nil {
					return jerr
				}
				fmt.Println(string(blob))
				return nil
			}

			if len(deployments) == 0 {
				fmt.Println("no recorded deployments")
				return nil
			}

			fmt.Printf("%-36s  %-20s  %-9s  %-19s  %s\n", "RUN", "HOST", "STATUS", "STARTED", "RESULT")
			for _, d := range deployments {
				fmt.Printf("%-36s  %-20s  %-9s  %-19s  installed=%d failed=%d verified=%v\n",
					d.ID, d.Host, d.Status, d.StartedAt.Format("2006-01-02 15:04:05"),
					d.Installed, d.Failed+d.ConfigFailed, d.Verified)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&historyDB, "history-db", "", "history database path (default ~/.stackforge/history.db)")
	cmd.Flags().StringVar(&host, "host", "", "only show runs against this host")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}
