package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bgdnvk/shopfloor/internal/knowledge"
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the procedure knowledge index",
	Long: `Ingest work instructions, SOPs, batch records and maintenance logs into the
configured vector index (knowledge.backend) and query it the way the
diagnostic pipeline does.`,
}

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Load .md and .txt documents from a directory into the index",
	Long: `Walk a directory for markdown and text documents and upsert them into the
index. Documents may start with YAML frontmatter (doc_type, source,
equipment, profile). Without doc_type the parent directory decides it, so
docs/work_instructions/wi-07.md is stored as a work_instruction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		docs, err := knowledge.LoadDocuments(args[0])
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No documents found under %s\n", args[0])
			return nil
		}

		embedder, err := newEmbedder(ctx)
		if err != nil {
			return err
		}
		cfg := knowledgeConfig()
		index, closeIndex, err := knowledge.OpenIndex(ctx, cfg, embedder)
		if err != nil {
			return err
		}
		defer closeIndex()

		if err := knowledge.Ingest(ctx, index, embedder, docs); err != nil {
			return err
		}

		counts := map[string]int{}
		for _, d := range docs {
			counts[d.Metadata.DocType]++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d documents into %s backend\n", len(docs), cfg.Backend)
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-18s %d\n", t, counts[t])
		}
		return nil
	},
}

var knowledgeQueryCmd = &cobra.Command{
	Use:   "query <equipment-id>",
	Short: "Run the profile-weighted retrieval for an equipment and loss categories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		scopeFlag, _ := cmd.Flags().GetString("scope")
		losses, _ := cmd.Flags().GetStringSlice("loss")
		profileName, _ := cmd.Flags().GetString("profile")
		output, _ := cmd.Flags().GetString("output")

		scope, err := telemetry.ParseScope(scopeFlag)
		if err != nil {
			return err
		}
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

		retriever, closeIndex := openRetriever(ctx)
		defer closeIndex()

		hits, err := retriever.Query(ctx, args[0], losses, scope, p)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if handled, err := writeStructured(out, output, hits); handled {
			return err
		}
		fmt.Fprintf(out, "%s %s\n\n", headerStyle.Render("Query:"), knowledge.QueryText(args[0], losses))
		if len(hits) == 0 {
			fmt.Fprintln(out, "No procedures found.")
			return nil
		}
		for i, h := range hits {
			fmt.Fprintf(out, "[%d] %s  %s\n", i+1, h.ID, mutedStyle.Render(fmt.Sprintf("type=%s base=%.3f weight=%.2f score=%.3f", h.SourceType, h.BaseScore, h.Weight, h.WeightedScore)))
			text := strings.Join(strings.Fields(h.DocumentText), " ")
			if len(text) > 160 {
				text = text[:160] + "..."
			}
			fmt.Fprintf(out, "    %s\n", text)
		}
		return nil
	},
}

func init() {
	knowledgeQueryCmd.Flags().String("scope", "station", "scope of the request: line or station")
	knowledgeQueryCmd.Flags().StringSlice("loss", nil, "loss category (repeatable), e.g. availability.equipment_failure")
	knowledgeQueryCmd.Flags().String("profile", "", "domain profile for weighting (default: active profile)")
	knowledgeQueryCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")

	knowledgeCmd.PersistentFlags().String("backend", "", "index backend override: chroma, sqlite or postgres")
	viper.BindPFlag("knowledge.backend", knowledgeCmd.PersistentFlags().Lookup("backend"))

	knowledgeCmd.AddCommand(knowledgeIngestCmd)
	knowledgeCmd.AddCommand(knowledgeQueryCmd)
	rootCmd.AddCommand(knowledgeCmd)
}
