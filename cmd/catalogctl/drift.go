package main

import (
	"fmt"
	"strings"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/Lydia02/E-Library-sub000/internal/migration"
)

// driftSample caps how many ids the table output lists per column.
const driftSample = 10

var driftCmd = &cobra.Command{
	Use:   "drift <books|favorites|user_books|all>",
	Short: "Compare the primary and secondary stores",
	Long:  "Report primary records missing from the secondary store and secondary rows whose primary record is gone.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrift,
}

func runDrift(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(args[0])
	if err != nil {
		return err
	}

	injector, _, err := newContainer()
	if err != nil {
		return err
	}
	defer func() { _ = injector.Shutdown() }()

	processor, err := do.Invoke[*migration.Processor](injector)
	if err != nil {
		return err
	}

	reports := make([]migration.DriftReport, 0, len(kinds))
	for _, k := range kinds {
		r, err := processor.Drift(cmd.Context(), k)
		if err != nil {
			return fmt.Errorf("drift %s: %w", k, err)
		}
		reports = append(reports, r)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"reports": reports})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "KIND\tPRIMARY\tSECONDARY\tMISSING\tORPHANED")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			r.Kind, r.Primary, r.Secondary, sample(r.MissingInSecondary), sample(r.Orphaned))
	}
	return w.Flush()
}

func sample(ids []string) string {
	switch {
	case len(ids) == 0:
		return "-"
	case len(ids) > driftSample:
		return fmt.Sprintf("%s (+%d more)", strings.Join(ids[:driftSample], ","), len(ids)-driftSample)
	}
	return strings.Join(ids, ",")
}
