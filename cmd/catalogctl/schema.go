package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lydia02/E-Library-sub000/internal/config"
	"github.com/Lydia02/E-Library-sub000/internal/di/providers"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the relational schema",
}

var schemaUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending schema migrations to the secondary store",
	Args:  cobra.NoArgs,
	RunE:  runSchemaUp,
}

func init() {
	schemaCmd.AddCommand(schemaUpCmd)
}

func runSchemaUp(cmd *cobra.Command, args []string) error {
	injector, cfg, err := newContainer()
	if err != nil {
		return err
	}
	defer func() { _ = injector.Shutdown() }()

	if cfg.Secondary.Driver != config.DriverPostgres {
		fmt.Fprintf(cmd.OutOrStdout(), "Secondary driver %q has no schema; nothing to do.\n", cfg.Secondary.Driver)
		return nil
	}
	if err := providers.MigrateSecondary(cmd.Context(), cfg); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
	return nil
}
