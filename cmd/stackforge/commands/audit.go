package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackforge/stackforge/pkg/audit"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

func newAuditCommand() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the target's remote audit log",
		Long: `Read the append-only audit log from the target and print the most
recent entries. Every mutating command a deploy issued is recorded there
before it ran.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, client, err := connect(ctx, configPath)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			data, err := client.ReadFile(ctx, ssh.DefaultAuditLogPath)
			if err != nil {
				return fmt.Errorf("failed to read audit log: %w", err)
			}

			entries, err := audit.ParseLog(string(data))
			if err != nil {
				return fmt.Errorf("failed to parse audit log: %w", err)
			}

			for _, entry := range audit.Tail(entries, tail) {
				fmt.Printf("%s\n%s\n", entry.Timestamp.Format("2006-01-02 15:04:05.000"), entry.Command)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 20, "number of most recent entries to show")

	return cmd
}
