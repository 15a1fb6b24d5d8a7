// Package main provides catalogctl, the operator tool for the dual-store
// catalog: backfills, drift reports, the sync outbox and the relational schema.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/Lydia02/E-Library-sub000/internal/config"
	"github.com/Lydia02/E-Library-sub000/internal/di"
	"github.com/Lydia02/E-Library-sub000/internal/domain"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var (
	envFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "catalogctl",
	Short:         "catalogctl - operate the catalog stores",
	Long:          "Backfill the secondary store, report drift, manage the sync outbox and apply the relational schema.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"Path to .env file; configuration is otherwise read from the environment")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newContainer builds the DI container from the environment. Services are
// created lazily, so a command only connects to the stores it uses.
func newContainer() (*do.RootScope, *config.Config, error) {
	injector := di.NewContainer([]string{"-env-file=" + envFile})
	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return injector, cfg, nil
}

// parseKinds resolves a kind argument; "all" selects every kind.
func parseKinds(arg string) ([]domain.Kind, error) {
	if arg == "all" {
		return domain.Kinds, nil
	}
	k, err := domain.ParseKind(arg)
	if err != nil {
		return nil, err
	}
	return []domain.Kind{k}, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
