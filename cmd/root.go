package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/universal-adapter/hubctl/internal"
	"github.com/universal-adapter/hubctl/internal/api"
	"github.com/universal-adapter/hubctl/internal/session"
)

var (
	verbose    bool
	configPath string
	apiURL     string
	cfg        *internal.Config
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hubctl",
	Short: "Terminal client for the Universal Adapter MCP hub",
	Long: `A terminal client for the Universal Adapter MCP hub.

Ask the hub agent a question and watch it discover, reuse or forge an
integration tool live over the discovery stream, then browse the tool
marketplace, the action feed and the governance ledger.

Features:
  • Live discovery stream correlated with the agent's answer
  • Forged tool source with syntax highlighting
  • Marketplace browsing, search and tool execution
  • Transcript export (JSONL, Markdown, YAML, JSON)

Quick Start:
  hubctl ask "what is the weather in Tokyo"   # One request cycle
  hubctl chat                                 # Interactive session
  hubctl tools list                           # Browse the marketplace
  hubctl health                               # Check the backend

The backend address comes from --api-url, HUBCTL_API_URL, NEXT_PUBLIC_API_URL
or ~/.hubctl.yaml (api.url), defaulting to ` + internal.DefaultAPIURL + `.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := internal.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if apiURL != "" {
			loaded.API.URL = apiURL
		}
		cfg = loaded

		level, _ := internal.ParseLogLevel(cfg.Log.Level)
		internal.SetLogLevel(level)
		if verbose {
			internal.SetVerbose(true)
		}
		internal.LogDebug("Using hub at %s", cfg.API.URL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *api.Client {
	return api.NewClient(cfg.API.URL, api.WithTimeout(cfg.API.Timeout))
}

func sessionOptions() session.Options {
	return session.Options{
		MaxEvents:   cfg.Session.MaxEvents,
		Watchdog:    cfg.Session.Watchdog,
		SearchLimit: cfg.Session.SearchLimit,
		View:        cfg.Session.View,
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $HOME/.hubctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Hub base URL (overrides config)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
