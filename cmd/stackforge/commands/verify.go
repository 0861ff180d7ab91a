package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackforge/stackforge/pkg/verify"
)

func newVerifyCommand() *cobra.Command {
	var externalOnly bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a deployed application without redeploying",
		Long: `Run the verification checks from the deployment document against an
already-deployed target. The internal check runs from the target itself so a
firewall problem is distinguishable from a broken deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			doc, client, err := connect(ctx, configPath)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			if doc.Verify.URL == "" {
				return fmt.Errorf("the deployment document has no verify section")
			}

			if !externalOnly {
				internal, ierr := verify.VerifyInternal(ctx, client, "http://localhost/", doc.Verify.Signature)
				if ierr != nil {
					return fmt.Errorf("internal check failed: %w", ierr)
				}
				if !internal {
					return fmt.Errorf("internal check did not match; the deployment itself is broken")
				}
				fmt.Println("internal check: ok")
			}

			v := &verify.Verifier{
				Client:      &http.Client{Timeout: 30 * time.Second},
				MaxAttempts: doc.Verify.MaxAttempts,
				Interval:    time.Duration(doc.Verify.IntervalSeconds) * time.Second,
			}

			result, verr := v.Verify(ctx, doc.Verify.URL, doc.Verify.Signature)
			if verr != nil {
				return verr
			}

			if !result.Success {
				return fmt.Errorf("external check did not match after %d attempts (last status %d)",
					result.AttemptsUsed, result.LastStatus)
			}

			fmt.Printf("external check: ok after %d attempt(s)\n", result.AttemptsUsed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&externalOnly, "external-only", false, "skip the internal on-target check")

	return cmd
}
