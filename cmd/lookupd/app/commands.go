// Package app provides the entry point for the lookupd application.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/refdatahq/lookupd/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "lookupd",
	DisableAutoGenTag: true,
	Short:             "Lookup table registry server",
	Long: `lookupd serves externally-loaded lookup tables over a REST API.
Table definitions are loaded from directories or Git repositories and
refreshed in the background; declarative tables can be registered at
runtime and persisted across restarts.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			slog.Error("Error displaying help", "error", err)
		}
	},
}

var registerRootOnce sync.Once

// NewRootCmd returns the root command for lookupd.
func NewRootCmd() *cobra.Command {
	registerRootOnce.Do(func() {
		rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
		err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
		if err != nil {
			slog.Error("Error binding debug flag", "error", err)
		}

		rootCmd.AddCommand(serveCmd)
		rootCmd.AddCommand(versionCmd)
		rootCmd.AddCommand(migrateCmd)
	})

	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			slog.Error("Error retrieving format flag", "error", err)
			return
		}

		if format == "json" {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				slog.Error("Error formatting version info as JSON", "error", err)
				return
			}
			fmt.Println(string(output))
		} else {
			slog.Info("lookupd version",
				"version", info.Version,
				"commit", info.Commit,
				"built", info.BuildDate,
				"go", info.GoVersion,
				"platform", info.Platform)
		}
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}
