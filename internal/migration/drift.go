package migration

import (
	"context"
	"fmt"
	"slices"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
)

// DriftReport compares the ids held by both stores for one kind.
type DriftReport struct {
	Kind domain.Kind `json:"kind"`
	// Primary and Secondary are the row counts of each store.
	Primary   int `json:"primary"`
	Secondary int `json:"secondary"`
	// MissingInSecondary are primary ids without a secondary row.
	MissingInSecondary []string `json:"missingInSecondary"`
	// Orphaned are secondary rows whose primary document is gone.
	Orphaned []string `json:"orphaned"`
}

// InSync reports whether both stores hold the same ids.
func (r DriftReport) InSync() bool {
	return len(r.MissingInSecondary) == 0 && len(r.Orphaned) == 0
}

// Drift reports the ids that differ between the stores. Both id lists are
// sorted.
func (p *Processor) Drift(ctx context.Context, kind domain.Kind) (DriftReport, error) {
	if !kind.Valid() {
		return DriftReport{}, fmt.Errorf("unknown entity kind %q", kind)
	}

	primary := make(map[string]struct{})
	for doc, err := range p.primary.Scan(ctx, string(kind)) {
		if err != nil {
			return DriftReport{}, fmt.Errorf("scan %s: %w", kind, err)
		}
		primary[doc.ID] = struct{}{}
	}

	ids, err := p.secondary.PrimaryIDs(ctx, kind)
	if err != nil {
		return DriftReport{}, fmt.Errorf("list secondary %s: %w", kind, err)
	}

	report := DriftReport{
		Kind:               kind,
		Primary:            len(primary),
		Secondary:          len(ids),
		MissingInSecondary: []string{},
		Orphaned:           []string{},
	}
	secondary := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		secondary[id] = struct{}{}
		if _, ok := primary[id]; !ok {
			report.Orphaned = append(report.Orphaned, id)
		}
	}
	for id := range primary {
		if _, ok := secondary[id]; !ok {
			report.MissingInSecondary = append(report.MissingInSecondary, id)
		}
	}
	slices.Sort(report.MissingInSecondary)
	slices.Sort(report.Orphaned)
	return report, nil
}
