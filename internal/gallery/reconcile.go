package gallery

import (
	"sort"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
)

// Reconcile merges a freshly fetched server page into the local list.
//
// Rules:
//   - identifiers are unique; a server-confirmed item replaces an optimistic
//     entry with the same id
//   - tombstoned ids never enter the result, regardless of the page content
//   - the result is sorted by descending created_at; the timestamps are
//     fixed-width RFC3339, so lexicographic order matches chronological order
//
// The function is pure: inputs are not mutated, and reconciling the same page
// twice yields the same list.
func Reconcile(local []api.GalleryItem, page []api.GalleryItem, tombstones map[string]struct{}) []api.GalleryItem {
	merged := make([]api.GalleryItem, 0, len(local)+len(page))
	index := make(map[string]int, len(local))

	for _, item := range local {
		if _, deleted := tombstones[item.ID]; deleted {
			continue
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}

	for _, item := range page {
		if _, deleted := tombstones[item.ID]; deleted {
			continue
		}
		item.Optimistic = false
		if at, ok := index[item.ID]; ok {
			// Server-confirmed wins over the optimistic copy.
			merged[at] = item
			continue
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedAt != merged[j].CreatedAt {
			return merged[i].CreatedAt > merged[j].CreatedAt
		}
		return merged[i].ID > merged[j].ID
	})

	return merged
}
