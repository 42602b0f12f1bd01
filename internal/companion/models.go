package companion

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
)

// ListModels returns catalog entries ordered by host display order, optionally
// narrowed to one kind.
func (a *App) ListModels(ctx context.Context, kind *models.Kind) ([]models.ModelView, error) {
	entries, err := a.catalog.ListModels(ctx, models.ModelFilter{Kind: kind})
	if err != nil {
		return nil, err
	}

	views := make([]models.ModelView, 0, len(entries))
	for _, e := range entries {
		views = append(views, models.ModelView{ModelEntry: e, IsOnHost: e.VisibleOnHost()})
	}
	return views, nil
}

func (a *App) GetModel(ctx context.Context, filename string) (*models.ModelView, error) {
	entry, err := a.catalog.GetModel(ctx, filename)
	if err != nil {
		return nil, err
	}
	return &models.ModelView{ModelEntry: *entry, IsOnHost: entry.VisibleOnHost()}, nil
}

// SetHostVisibility shows or hides an entry on the host. A hidden entry stays
// hidden when later scans find its file.
func (a *App) SetHostVisibility(ctx context.Context, filename string, visible bool, order *int) error {
	return a.catalog.SetHostVisibility(ctx, filename, visible, order)
}

// Reorder applies every display order or none.
func (a *App) Reorder(ctx context.Context, orders []models.DisplayOrder) error {
	return a.catalog.UpdateDisplayOrders(ctx, orders)
}

// Rename sets the display name. An empty name clears it, and the next scan
// fills it again from the manifest when one names the file.
func (a *App) Rename(ctx context.Context, filename, name string) error {
	return a.catalog.SetDisplayName(ctx, filename, name)
}

// SetStrength stores a lora strength given as the ×10 integer; nil clears it.
func (a *App) SetStrength(ctx context.Context, filename string, strength *int) error {
	return a.catalog.SetStrength(ctx, filename, strength)
}

// SetKind pins the kind of an entry so later scans keep it.
func (a *App) SetKind(ctx context.Context, filename string, kind models.Kind) error {
	return a.catalog.SetKind(ctx, filename, kind)
}

func (a *App) Relationships(ctx context.Context, parent string) ([]models.DependencyEdge, error) {
	return a.catalog.ListRelationships(ctx, parent)
}

func (a *App) RemoveRelationship(ctx context.Context, parent, child string) error {
	return a.catalog.DeleteRelationship(ctx, parent, child)
}

// Delete removes the catalog entry. With deleteFiles the host and stash copies are
// removed first, and the entry is kept if any removal fails.
func (a *App) Delete(ctx context.Context, filename string, deleteFiles bool) error {
	if _, err := a.catalog.GetModel(ctx, filename); err != nil {
		return err
	}

	if deleteFiles {
		host, stash, err := a.modelsDirs(ctx)
		if err != nil {
			return err
		}

		for _, dir := range []string{host, stash} {
			if dir == "" {
				continue
			}

			path := filepath.Join(dir, filename)
			if err := a.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return &errdefs.IOError{Op: "remove", Path: path, Err: err}
			}
			a.log.Info("Removed '%s'", path)
		}
	}

	if err := a.catalog.DeleteModel(ctx, filename); err != nil {
		return err
	}
	a.log.Info("Deleted '%s' from catalog", filename)
	return nil
}
