// Package relations persists main model to encoder edges.
package relations

import (
	"context"
	"fmt"

	"github.com/ianscrivener/draw-things-companion/internal/manifest"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
)

// EdgeStore is the part of the catalog the resolver writes to
type EdgeStore interface {
	AddRelationship(ctx context.Context, parent, child string) (models.EdgeResult, error)
}

type Report struct {
	Inserted int `json:"inserted"`
	Existing int `json:"existing"`
	Skipped  int `json:"skipped"`
}

// Resolve inserts each edge whose endpoints are both catalog rows. Edges with a
// missing endpoint are counted as skipped; store errors abort the run.
func Resolve(ctx context.Context, store EdgeStore, edges []manifest.Edge) (Report, error) {
	report := Report{}

	for _, edge := range edges {
		if edge.Parent == edge.Child {
			report.Skipped++
			continue
		}

		result, err := store.AddRelationship(ctx, edge.Parent, edge.Child)
		if err != nil {
			return report, fmt.Errorf("failed to add relationship %s -> %s: %w", edge.Parent, edge.Child, err)
		}

		switch result {
		case models.EdgeInserted:
			report.Inserted++
		case models.EdgeExists:
			report.Existing++
		default:
			report.Skipped++
		}
	}

	return report, nil
}
