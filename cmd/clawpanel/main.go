package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createGatewayCommand(),
		createConfigCommand(globalFlags),
		createHashPasswordCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "clawpanel",
		Short: "Control panel for the openclaw agent tool",
		Long: `clawpanel supervises the openclaw gateway, edits openclaw.json and runs
openclaw commands on behalf of a JSON HTTP API.

Examples:
  clawpanel serve --config clawpanel.yaml
  clawpanel gateway start --port 18789
  clawpanel gateway logs --lines 50
  clawpanel config set agent model anthropic/claude-opus-4-6`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to clawpanel config file (TOML, YAML or JSON; optional)")
	return root
}
