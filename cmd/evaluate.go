package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgdnvk/shopfloor/internal/expectation"
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <equipment-id>",
	Short: "Check runtime state against profile expectations without a model",
	Long: `Evaluate the deterministic expectation rules for a line or station. No
knowledge index or language model is used, so the command works offline with
captured snapshot and signal files.

Examples:
  shopfloor evaluate ST18 --snapshot-file snap.json --signals-file sig.json
  shopfloor evaluate ST18 --profile aerospace_defence --output json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeFlag, _ := cmd.Flags().GetString("scope")
		profileName, _ := cmd.Flags().GetString("profile")
		snapshotFile, _ := cmd.Flags().GetString("snapshot-file")
		signalsFile, _ := cmd.Flags().GetString("signals-file")
		output, _ := cmd.Flags().GetString("output")

		scope, err := telemetry.ParseScope(scopeFlag)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := loadProfiles(ctx)
		if err != nil {
			return err
		}
		p := store.Active()
		if profileName != "" {
			var ok bool
			if p, ok = store.Get(profileName); !ok {
				return fmt.Errorf("%w: unknown profile %q", profile.ErrConfig, profileName)
			}
		}

		snaps := snapshotSource(snapshotFile, signalsFile)
		snap, err := snaps.FetchSnapshot(ctx)
		if err != nil {
			return err
		}
		signals, err := snaps.FetchSemanticSignals(ctx, snap, scope, args[0])
		if err != nil {
			return err
		}

		result := expectation.Evaluate(snap, signals, p)

		out := cmd.OutOrStdout()
		if handled, err := writeStructured(out, output, result); handled {
			return err
		}
		renderResult(out, p.Name, result)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().String("scope", "station", "scope of the request: line or station")
	evaluateCmd.Flags().String("profile", "", "domain profile to evaluate against (default: active profile)")
	evaluateCmd.Flags().String("snapshot-file", "", "read the plant snapshot from a JSON file instead of the runtime service")
	evaluateCmd.Flags().String("signals-file", "", "semantic signals JSON file used with --snapshot-file")
	evaluateCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(evaluateCmd)
}
