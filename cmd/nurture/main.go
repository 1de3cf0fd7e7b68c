package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "nurture",
	Short: "Nurture - email marketing funnel backend",
	Long:  `Nurture captures leads, syncs them to email service providers, and drives timed email sequences through a persistent queue.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Optional; provider credentials usually arrive via environment.
		godotenv.Load()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nurture %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "/etc/nurture/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(providerCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(subscriberCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
