package main

import (
	"fmt"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/Lydia02/E-Library-sub000/internal/migration"
)

var (
	migrateStrategy string
	migrateWorkers  int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <books|favorites|user_books|all>",
	Short: "Copy primary records into the secondary store",
	Long: `Copy every primary record of a kind into the secondary store.

The upsert strategy overwrites rows that are not newer than the primary record.
The skip-existing strategy leaves rows that already exist untouched. Both are
safe to rerun.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateStrategy, "strategy", "",
		"Migration strategy: upsert or skip-existing (default from MIGRATION_STRATEGY)")
	migrateCmd.Flags().IntVar(&migrateWorkers, "workers", 0,
		"Concurrent workers (default from MIGRATION_WORKERS)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(args[0])
	if err != nil {
		return err
	}

	injector, cfg, err := newContainer()
	if err != nil {
		return err
	}
	defer func() { _ = injector.Shutdown() }()

	name := migrateStrategy
	if name == "" {
		name = cfg.Migration.Strategy
	}
	strategy, err := migration.ParseStrategy(name)
	if err != nil {
		return err
	}
	workers := migrateWorkers
	if workers <= 0 {
		workers = cfg.Migration.Workers
	}

	processor, err := do.Invoke[*migration.Processor](injector)
	if err != nil {
		return err
	}

	opts := migration.Options{Strategy: strategy, Workers: workers}
	results := make([]migration.Result, 0, len(kinds))
	var failed int64
	for _, k := range kinds {
		res, err := processor.Run(cmd.Context(), k, opts)
		if err != nil {
			return fmt.Errorf("migrate %s: %w", k, err)
		}
		results = append(results, res)
		failed += res.Errors
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), map[string]any{"results": results}); err != nil {
			return err
		}
	} else {
		w := newTabWriter(cmd.OutOrStdout())
		fmt.Fprintln(w, "KIND\tSTRATEGY\tMIGRATED\tSKIPPED\tERRORS\tTOTAL\tDURATION")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				r.Kind, r.Strategy, r.Migrated, r.Skipped, r.Errors, r.Total, r.Duration.Round(time.Millisecond))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d records failed to migrate; see the log for details", failed)
	}
	return nil
}
