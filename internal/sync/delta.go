package sync

import (
	"context"
	"fmt"
	"time"

	"clinicbase.org/internal/obs"
)

// RowSource reads per-entity change sets from storage. The three queries
// share one cutoff; implementations must keep created and updated disjoint
// (rows created after the cutoff belong to created only).
type RowSource interface {
	CreatedSince(ctx context.Context, serverTable string, cutoff time.Time) ([]Record, error)
	UpdatedSince(ctx context.Context, serverTable string, cutoff time.Time) ([]Record, error)
	DeletedSince(ctx context.Context, serverTable string, cutoff time.Time) ([]string, error)
}

// DeltaComputer assembles pull responses from the catalog, the retention
// window and a row source.
type DeltaComputer struct {
	catalog *Catalog
	window  *HistoryWindow
	rows    RowSource
	now     func() time.Time
}

// NewDeltaComputer wires a computer. now is overridable for tests.
func NewDeltaComputer(catalog *Catalog, window *HistoryWindow, rows RowSource) *DeltaComputer {
	return &DeltaComputer{
		catalog: catalog,
		window:  window,
		rows:    rows,
		now:     time.Now,
	}
}

// Pull computes one DeltaSet per pullable entity since the client watermark.
//
// A bootstrap pull (watermark zero) never returns deletions: a client with no
// prior state has nothing to reconcile them against. Any per-entity query
// failure fails the whole pull; a partial response would leave the client
// watermark ambiguous.
func (d *DeltaComputer) Pull(ctx context.Context, req PullRequest) (PullResponse, error) {
	now := d.now().UTC()
	watermark := time.UnixMilli(req.LastPulledAt).UTC()
	bootstrap := req.LastPulledAt == 0

	changes := make(map[string]DeltaSet)
	for _, desc := range d.catalog.Pullable() {
		cutoff := d.window.EffectiveCutoff(now, watermark, desc)

		created, err := d.rows.CreatedSince(ctx, desc.ServerTable, cutoff)
		if err != nil {
			return PullResponse{}, fmt.Errorf("pull %s created: %w", desc.ServerTable, err)
		}
		updated, err := d.rows.UpdatedSince(ctx, desc.ServerTable, cutoff)
		if err != nil {
			return PullResponse{}, fmt.Errorf("pull %s updated: %w", desc.ServerTable, err)
		}
		var deleted []string
		if !bootstrap {
			deleted, err = d.rows.DeletedSince(ctx, desc.ServerTable, cutoff)
			if err != nil {
				return PullResponse{}, fmt.Errorf("pull %s deleted: %w", desc.ServerTable, err)
			}
		}

		obs.AddPullRows(desc.ServerTable, "created", len(created))
		obs.AddPullRows(desc.ServerTable, "updated", len(updated))
		obs.AddPullRows(desc.ServerTable, "deleted", len(deleted))

		changes[desc.ClientTable] = DeltaSet{
			Created: emptyIfNil(created),
			Updated: emptyIfNil(updated),
			Deleted: emptyStringsIfNil(deleted),
		}
	}

	return PullResponse{
		Changes:   changes,
		Timestamp: now.UnixMilli(),
	}, nil
}

func emptyIfNil(in []Record) []Record {
	if in == nil {
		return []Record{}
	}
	return in
}

func emptyStringsIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
