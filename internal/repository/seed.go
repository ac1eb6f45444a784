package repository

import (
	"context"
	"errors"
	"time"

	"lifescore_backend/internal/catalog"
	"lifescore_backend/internal/storage"
)

// CatalogRows returns the seed catalog in stored form, keyed by collection.
func CatalogRows(now time.Time) map[string][]storage.Row {
	out := map[string][]storage.Row{}
	for _, m := range catalog.Missions() {
		m.CreatedAt = now.UTC()
		out[colMissions] = append(out[colMissions], MissionRow(m))
	}
	for _, r := range catalog.Rewards() {
		r.CreatedAt = now.UTC()
		out[colRewards] = append(out[colRewards], RewardRow(r))
	}
	return out
}

// SeedCatalog inserts every seed mission and reward that is not stored yet
// and returns how many rows were written.
func SeedCatalog(ctx context.Context, db storage.Backend) (int, error) {
	written := 0
	rows := CatalogRows(time.Now())
	for _, collection := range []string{colMissions, colRewards} {
		for _, row := range rows[collection] {
			_, err := db.Query(ctx, storage.Query{
				Collection: collection,
				Op:         storage.OpInsert,
				Data:       row,
			})
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			if err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}
