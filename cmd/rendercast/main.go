// Rendercast discovers UPnP media renderers on the local network.
//
// It searches over SSDP (and optionally validates mDNS announcements),
// deduplicates devices by friendly name, and can publish them over HTTP
// and WebSocket. It also exposes the port allocator used for its own
// responder sockets.
//
// Usage:
//
//	rendercast [command] [flags]
//
// See 'rendercast --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/rendercast/internal/config"
	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.Sync()
}

// Global flags
var (
	configPath string
	logLevel   string
)

// settings is loaded before any subcommand runs.
var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:   "rendercast",
	Short: "UPnP media renderer discovery",
	Long: `Discover UPnP media renderers on the local network.

Devices are found with SSDP searches, resolved through their description
documents and reported once per friendly name. A device first seen over
IPv6 is reported again when an IPv4 address for it arrives.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load(configPath)
		if err != nil {
			return err
		}
		settings = s

		level := logLevel
		if level == "" {
			level = s.LogLevel
		}
		return logging.Initialize(level)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the OS config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config and "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rendercast %s\n", version.Full())
	},
}
