package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/teammate/pkg/config"
)

func NewConfigGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Commands for manipulating the configuration",
	}

	cmd.AddCommand(NewConfigInitCommand())
	cmd.AddCommand(NewConfigShowCommand())
	cmd.AddCommand(NewConfigSetCommand())

	return cmd
}

func defaultConfigPath() string {
	return filepath.Join(config.DefaultDir(), "config.yaml")
}

func NewConfigInitCommand() *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DefaultSettings().WriteFile(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", defaultConfigPath(), "Config file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func NewConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings (file, environment and flags merged)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			b, err := s.ToYAML()
			if err != nil {
				return err
			}
			if used := viper.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func NewConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a key in the config file, for example transport.ping-interval 10s",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := viper.ConfigFileUsed()
			if configFile == "" {
				return errors.New("no config file found, run `teammate config init` first")
			}

			root, err := readAndParseConfig(configFile)
			if err != nil {
				return err
			}

			node := findOrCreateNode(root, strings.Split(args[0], "."))
			*node = yaml.Node{Kind: yaml.ScalarNode, Value: args[1]}

			// decode the result before writing so a bad value never lands on disk
			b, err := yaml.Marshal(root)
			if err != nil {
				return err
			}
			s := config.DefaultSettings()
			if err := yaml.Unmarshal(b, s); err != nil {
				return errors.Wrapf(err, "invalid value for %s", args[0])
			}
			if err := s.Validate(); err != nil {
				return err
			}

			if err := writeConfig(configFile, root); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

// findOrCreateNode walks the mapping nodes along path, creating missing ones,
// and returns the value node of the last key.
func findOrCreateNode(root *yaml.Node, path []string) *yaml.Node {
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		root.Kind = yaml.DocumentNode
		root.Content = []*yaml.Node{{Kind: yaml.MappingNode}}
	}

	node := root.Content[0]
	for _, key := range path {
		if node.Kind != yaml.MappingNode {
			*node = yaml.Node{Kind: yaml.MappingNode}
		}

		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == key {
				next = node.Content[i+1]
				break
			}
		}
		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: key},
				next,
			)
		}
		node = next
	}
	return node
}

func readAndParseConfig(configFile string) (*yaml.Node, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var root yaml.Node
	err = yaml.Unmarshal(data, &root)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &root, nil
}

func writeConfig(configFile string, root *yaml.Node) error {
	f, err := os.Create(configFile)
	if err != nil {
		return fmt.Errorf("error opening config file for writing: %w", err)
	}
	defer f.Close()

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	err = encoder.Encode(root)
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
