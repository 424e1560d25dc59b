package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helioscrm/agentgate/pkg/contract"
	"github.com/helioscrm/agentgate/pkg/registry"
)

var toolsFormat string

var toolsCmd = &cobra.Command{
	Use:   "tools <contracts.json>",
	Short: "Validate tool contracts and print their provider schemas",
	Long: `Load tool contracts from a JSON file, validate them, and print the
schema documents that would be advertised to the model provider.
Fails if any contract is invalid or untranslatable.`,
	Args: cobra.ExactArgs(1),
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsFormat, "format", "generic", "output format (generic, anthropic, openai)")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(args[0])
	if err != nil {
		return err
	}

	var out interface{}
	switch toolsFormat {
	case "generic":
		out = reg.AllExternalSchemas()
	case "anthropic":
		out = registry.AnthropicTools(reg)
	case "openai":
		out = registry.OpenAITools(reg)
	default:
		return fmt.Errorf("unknown format %q (must be: generic, anthropic, openai)", toolsFormat)
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schemas: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

// loadRegistry reads contract definitions from a JSON file and builds
// a frozen registry from them.
func loadRegistry(path string) (*registry.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contracts file: %w", err)
	}

	var contracts []*contract.ToolContract
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("failed to parse contracts file: %w", err)
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("contracts file %s defines no tools", path)
	}

	reg := registry.New()
	for _, tc := range contracts {
		if err := reg.Register(tc); err != nil {
			return nil, fmt.Errorf("contract %q: %w", tc.Name, err)
		}
	}
	reg.Freeze()

	return reg, nil
}
