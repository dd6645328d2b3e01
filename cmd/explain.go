package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgdnvk/shopfloor/internal/diagnostic"
)

var explainCmd = &cobra.Command{
	Use:   "explain <equipment-id>",
	Short: "Explain the current state of a line or station",
	Long: `Run the full diagnostic pipeline for one line or station: fetch the runtime
snapshot, evaluate the profile's expectations, retrieve procedures and ask the
configured model for an explanation in four sections.

Examples:
  shopfloor explain ST18
  shopfloor explain A01 --scope line --profile pharma_process
  shopfloor explain ST18 --snapshot-file snap.json --signals-file sig.json --output json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		profileName, _ := cmd.Flags().GetString("profile")
		provider, _ := cmd.Flags().GetString("provider")
		snapshotFile, _ := cmd.Flags().GetString("snapshot-file")
		signalsFile, _ := cmd.Flags().GetString("signals-file")
		output, _ := cmd.Flags().GetString("output")

		ctx := context.Background()
		p, err := newPipeline(ctx, provider, snapshotFile, signalsFile)
		if err != nil {
			return err
		}
		defer p.close()

		resp := p.composer.Explain(ctx, diagnostic.Request{
			Scope:       scope,
			EquipmentID: args[0],
			Profile:     profileName,
		})

		out := cmd.OutOrStdout()
		if handled, err := writeStructured(out, output, resp); handled {
			return err
		}
		renderResponse(out, resp)
		if resp.Metadata.Error {
			return fmt.Errorf("diagnostic failed: %s", resp.Metadata.ErrorCode)
		}
		return nil
	},
}

func init() {
	explainCmd.Flags().String("scope", "station", "scope of the request: line or station")
	explainCmd.Flags().String("profile", "", "domain profile for this request (default: active profile)")
	explainCmd.Flags().String("provider", "", "AI provider override (default: ai.default_provider)")
	explainCmd.Flags().String("snapshot-file", "", "read the plant snapshot from a JSON file instead of the runtime service")
	explainCmd.Flags().String("signals-file", "", "semantic signals JSON file used with --snapshot-file")
	explainCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(explainCmd)
}
