package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bgdnvk/shopfloor/internal/mcpserver"
)

// version is stamped at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the diagnostic tools over MCP (stdio)",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing the tools
explain, evaluate_expectations, list_profiles and switch_profile. Logs go to
stderr so they do not corrupt the protocol stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		snapshotFile, _ := cmd.Flags().GetString("snapshot-file")
		signalsFile, _ := cmd.Flags().GetString("signals-file")

		p, err := newPipeline(context.Background(), provider, snapshotFile, signalsFile)
		if err != nil {
			return err
		}
		defer p.close()

		log.Printf("[mcp] serving %d profiles over stdio (active=%s)", len(p.profiles.Names()), p.profiles.Active().Name)
		srv := mcpserver.New(p.composer, p.profiles, p.snapshots, version, viper.GetBool("debug"))
		return srv.ServeStdio()
	},
}

func init() {
	serveCmd.Flags().String("provider", "", "AI provider override (default: ai.default_provider)")
	serveCmd.Flags().String("snapshot-file", "", "serve a captured snapshot JSON file instead of the runtime service")
	serveCmd.Flags().String("signals-file", "", "semantic signals JSON file used with --snapshot-file")

	rootCmd.AddCommand(serveCmd)
}
