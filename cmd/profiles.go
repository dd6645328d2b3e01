package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bgdnvk/shopfloor/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List, inspect and switch domain profiles",
	Long:  `Manage the domain profiles defined in the profile document (profiles.source).`,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available domain profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfiles(context.Background())
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		out := cmd.OutOrStdout()
		if handled, err := writeStructured(out, output, store.List()); handled {
			return err
		}
		fmt.Fprintf(out, "Available profiles (source: %s):\n\n", viper.GetString("profiles.source"))
		renderProfiles(out, store.List())
		fmt.Fprintln(out, "Usage: shopfloor explain --profile <profile-name> <equipment-id>")
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a profile in full (default: the active profile)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfiles(context.Background())
		if err != nil {
			return err
		}
		p := store.Active()
		if len(args) == 1 {
			var ok bool
			if p, ok = store.Get(args[0]); !ok {
				return fmt.Errorf("%w: unknown profile %q", profile.ErrConfig, args[0])
			}
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" || output == "text" {
			output = "yaml"
		}
		_, err = writeStructured(cmd.OutOrStdout(), output, p)
		return err
	},
}

var profilesSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Make a profile the active one",
	Long: `Switch the active profile. The choice is saved as profiles.active in the
shopfloor configuration file so later commands use it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadProfiles(context.Background())
		if err != nil {
			return err
		}
		name := args[0]
		if !store.Switch(name) {
			return fmt.Errorf("%w: unknown profile %q (available: %v)", profile.ErrConfig, name, store.Names())
		}

		viper.Set("profiles.active", name)
		path := viper.ConfigFileUsed()
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("error finding home directory: %w", err)
			}
			path = filepath.Join(home, ".shopfloor.yaml")
		}
		if err := saveActiveProfile(path, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Active profile: %s (saved to %s)\n", name, path)
		return nil
	},
}

// saveActiveProfile sets profiles.active in the YAML config at path and
// leaves every other key, and the file's comments, as they were.
func saveActiveProfile(path, name string) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("read %s: %w", path, err)
	}

	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}
	profiles := mappingChild(root, "profiles")
	active := mappingChild(profiles, "active")
	active.Kind, active.Tag, active.Value = yaml.ScalarNode, "!!str", name

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// mappingChild returns the value node for key, adding an empty mapping when
// the key is absent. A non-mapping m is replaced by an empty mapping.
func mappingChild(m *yaml.Node, key string) *yaml.Node {
	if m.Kind != yaml.MappingNode {
		*m = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	v := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, k, v)
	return v
}

func init() {
	profilesListCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
	profilesShowCmd.Flags().StringP("output", "o", "yaml", "output format: json or yaml")

	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	profilesCmd.AddCommand(profilesSwitchCmd)
	rootCmd.AddCommand(profilesCmd)
}
