package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shopfloor",
	Short: "Profile-aware diagnostic copilot for manufacturing lines",
	Long: `Shopfloor explains what is happening on a production line or station.
It reads the live runtime snapshot, checks it against the expectations of the
active domain profile (aerospace, pharma, automotive), retrieves relevant
procedures and asks a language model for a four-part explanation.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.shopfloor.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug output (shows progress + internal diagnostics)")
	rootCmd.PersistentFlags().String("profiles", "", "profile document: local path, s3://bucket/key or gs://bucket/object")
	rootCmd.PersistentFlags().String("runtime-url", "", "runtime service base URL (or set runtime.base_url)")

	// TODO: add error return here
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("profiles.source", rootCmd.PersistentFlags().Lookup("profiles"))
	viper.BindPFlag("runtime.base_url", rootCmd.PersistentFlags().Lookup("runtime-url"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("profiles.source", "configs/profiles.yaml")

	viper.SetDefault("runtime.base_url", "http://localhost:8010")
	viper.SetDefault("runtime.snapshot_path", "/api/runtime/snapshot")
	viper.SetDefault("runtime.signals_path", "/api/semantic/signals")
	viper.SetDefault("runtime.timeout", "10s")
	viper.SetDefault("runtime.retries", 2)

	viper.SetDefault("knowledge.backend", "none")
	viper.SetDefault("knowledge.chroma.collection", "shopfloor_knowledge")
	viper.SetDefault("knowledge.sqlite.path", "shopfloor-knowledge.db")
	viper.SetDefault("knowledge.postgres.table", "knowledge_documents")
	viper.SetDefault("knowledge.embedder", "hash")
	viper.SetDefault("knowledge.oversample", 10)
	viper.SetDefault("knowledge.max_distance", 1.5)
	viper.SetDefault("knowledge.top_k", 5)

	viper.SetDefault("ai.default_provider", "openai")
	viper.SetDefault("ai.temperature", 0.3)

	viper.SetDefault("diagnostic.timeout", "120s")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".shopfloor")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("debug") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
