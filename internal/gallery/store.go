package gallery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mrvasilyev/pixel-pop-v2/internal/api"
)

// PageFetcher fetches one cursor-paginated slice of the server history.
type PageFetcher interface {
	FetchGalleryPage(ctx context.Context, cursor string, limit int) (*api.GalleryPage, error)
}

// Deleter performs the authoritative server-side delete.
type Deleter interface {
	DeleteGeneration(ctx context.Context, id string) error
}

// Store presents a single deduplicated, time-ordered view over the paginated
// server history and local optimistic mutations.
type Store struct {
	mu sync.Mutex

	fetcher PageFetcher
	limit   int
	hint    *Hint
	log     *slog.Logger

	items      []api.GalleryItem
	pages      []*api.GalleryPage
	nextCursor string
	loaded     bool
	exhausted  bool
	fetching   bool
	tombstones map[string]struct{}
}

func NewStore(fetcher PageFetcher, limit int, hint *Hint, log *slog.Logger) *Store {
	if limit <= 0 {
		limit = 20
	}
	return &Store{
		fetcher:    fetcher,
		limit:      limit,
		hint:       hint,
		log:        log,
		tombstones: make(map[string]struct{}),
	}
}

// Items returns a copy of the reconciled list, newest first.
func (s *Store) Items() []api.GalleryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.GalleryItem, len(s.items))
	copy(out, s.items)
	return out
}

// HasMore reports whether another page may exist.
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.exhausted
}

// ShowSkeletonOnColdStart decides the cold-start rendering: returning users
// see a skeleton while the first page loads, brand new users see the empty
// state immediately.
func (s *Store) ShowSkeletonOnColdStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return false
	}
	return s.hint != nil && s.hint.HasEverHadPhotos()
}

// NextPage fetches the next history page and merges it in. Fetching while a
// fetch is already pending is a no-op, as is fetching past the last page.
// Fetch failures degrade to an empty result and never propagate.
func (s *Store) NextPage(ctx context.Context) {
	s.mu.Lock()
	if s.fetching || s.exhausted {
		s.mu.Unlock()
		return
	}
	s.fetching = true
	cursor := s.nextCursor
	s.mu.Unlock()

	page, err := s.fetcher.FetchGalleryPage(ctx, cursor, s.limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetching = false

	if err != nil {
		if s.log != nil {
			s.log.Warn("gallery page fetch failed", "err", err)
		}
		s.loaded = true
		return
	}

	s.mergeLocked(page)
}

// Refresh invalidates the cached history and refetches the first page.
// Optimistic items and tombstones survive; reconciliation collapses them
// against the fresh server data.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.fetching {
		s.mu.Unlock()
		return
	}
	s.fetching = true
	s.pages = nil
	s.nextCursor = ""
	s.exhausted = false
	s.mu.Unlock()

	page, err := s.fetcher.FetchGalleryPage(ctx, "", s.limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetching = false

	if err != nil {
		if s.log != nil {
			s.log.Warn("gallery refresh failed", "err", err)
		}
		return
	}

	s.mergeLocked(page)
}

// PrependOptimistic inserts a just-generated item before the server has
// confirmed it. Reconciliation replaces it once the server copy arrives.
func (s *Store) PrependOptimistic(item api.GalleryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.Optimistic = true
	delete(s.tombstones, item.ID)
	s.items = Reconcile(s.items, []api.GalleryItem{item}, s.tombstones)
	if s.hint != nil {
		s.hint.MarkHasPhotos()
	}
}

// Delete removes the item locally first, patching every cached page and
// tombstoning the id so a stale page can never resurface it, then performs
// the authoritative server delete.
func (s *Store) Delete(ctx context.Context, id string, deleter Deleter) error {
	s.mu.Lock()
	s.tombstones[id] = struct{}{}
	s.items = removeID(s.items, id)
	for _, page := range s.pages {
		page.Items = removeID(page.Items, id)
	}
	s.mu.Unlock()

	if deleter == nil {
		return nil
	}
	if err := deleter.DeleteGeneration(ctx, id); err != nil {
		// The optimistic removal stands; the tombstone keeps the item gone
		// even if the next page fetch still contains it.
		if s.log != nil {
			s.log.Warn("authoritative delete failed", "id", id, "err", err)
		}
		return err
	}
	return nil
}

func (s *Store) mergeLocked(page *api.GalleryPage) {
	copied := &api.GalleryPage{
		Items:      append([]api.GalleryItem(nil), page.Items...),
		NextCursor: page.NextCursor,
	}
	s.pages = append(s.pages, copied)
	s.items = Reconcile(s.items, copied.Items, s.tombstones)
	s.nextCursor = copied.NextCursor
	s.loaded = true
	if copied.NextCursor == "" {
		s.exhausted = true
	}
	if len(s.items) > 0 && s.hint != nil {
		s.hint.MarkHasPhotos()
	}
}

func removeID(items []api.GalleryItem, id string) []api.GalleryItem {
	out := items[:0]
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}
