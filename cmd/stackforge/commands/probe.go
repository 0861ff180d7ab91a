package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackforge/stackforge/pkg/osmap"
)

func newProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Report which capabilities are present on the target",
		Long: `Connect to the target and probe each enabled capability without
installing anything. Useful to preview what a deploy would skip.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			doc, client, err := connect(ctx, configPath)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			family := osmap.Classify(doc.Target.Blueprint)
			if family == osmap.FamilyUnknown {
				return fmt.Errorf("unrecognized blueprint %q", doc.Target.Blueprint)
			}

			present := make(map[string]bool)
			for _, capability := range doc.Capabilities {
				if !capability.Enabled {
					continue
				}
				ok, perr := osmap.Probe(ctx, client, capability.Name, family)
				if perr != nil {
					return fmt.Errorf("probe of %s failed: %w", capability.Name, perr)
				}
				present[capability.Name] = ok
			}

			if jsonOutput {
				blob, jerr := json.MarshalIndent(present, "", "  ")
				if jerr != nil {
					return jerr
				}
				fmt.Println(string(blob))
				return nil
			}

			for _, capability := range doc.Capabilities {
				if !capability.Enabled {
					continue
				}
				state := "missing"
				if present[capability.Name] {
					state = "present"
				}
				fmt.Printf("%-20s %s\n", capability.Name, state)
			}

			return nil
		},
	}

	return cmd
}
