// Package cli provides command-line interface functionality for ocpkg.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set by main.go
var Version = "dev"

// rootCmd is the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "ocpkg",
	Short: "Secure archival container tool",
	Long: `ocpkg bundles one or more files into a single archive, encrypted and
authenticated under a layered cryptographic pipeline:
  - A manifest cataloguing every bundled item, itself encrypted and
    authenticated under a key established from a shared secret or an
    ECC key agreement (UM1-hybrid).
  - Per-item Encrypt-then-MAC ciphertext, multiplexed into the payload
    region under a deterministic PRNG schedule (Simple, Frameshift, or
    Fabric layout).`,
	Version: Version,
}

// Global reporter for signal handling
var globalReporter *Reporter

// Execute runs the CLI application.
func Execute(version string) {
	Version = version
	rootCmd.Version = version

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if globalReporter != nil {
			globalReporter.Cancel()
			fmt.Fprintln(os.Stderr, "\nCancelling operation...")
		} else {
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
