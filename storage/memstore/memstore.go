// Package memstore is an in-process reference storage adapter backed by
// a mutex-guarded map. It demonstrates the scan-on-query tag index strategy
// described for simple adapters, and exists for testability rather than
// as a production backend (shipping production backend bindings is
// explicitly out of scope).
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/kraklabs/cachekit/storage"
)

// Store is a concurrency-safe, process-local storage.Adapter.
type Store struct {
	mu    sync.RWMutex
	items map[string]*storage.Item
}

// New creates an empty Store.
func New() *Store {
	return &Store{items: make(map[string]*storage.Item)}
}

func cloneItem(item *storage.Item) *storage.Item {
	cp := *item
	cp.Value = append([]byte(nil), item.Value...)
	cp.Tags = append([]string(nil), item.Tags...)
	return &cp
}

// Put replaces any prior item under key.
func (s *Store) Put(ctx context.Context, key string, item *storage.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = cloneItem(item)
	return nil
}

// Get returns the item stored under key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneItem(item), nil
}

// Delete removes key, if present. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Clear removes every item.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*storage.Item)
	return nil
}

// ContainsKey reports whether key is present.
func (s *Store) ContainsKey(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[key]
	return ok, nil
}

// GetKeys returns a stable-order page of all keys.
func (s *Store) GetKeys(ctx context.Context, page storage.Page) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(sortedKeys(s.items), page), nil
}

func sortedKeys(items map[string]*storage.Item) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func paginate(keys []string, page storage.Page) []string {
	if page.Offset >= len(keys) {
		return nil
	}
	start := page.Offset
	if start < 0 {
		start = 0
	}
	end := len(keys)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	return keys[start:end]
}

// PutAll stores every item; memstore's batch put is not transactional
// but cannot partially fail since it only touches an in-process map
// under a single lock.
func (s *Store) PutAll(ctx context.Context, items map[string]*storage.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, item := range items {
		s.items[key] = cloneItem(item)
	}
	return nil
}

// GetAll returns every present item among keys; absent keys are simply
// omitted from the result.
func (s *Store) GetAll(ctx context.Context, keys []string) (map[string]*storage.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*storage.Item, len(keys))
	for _, key := range keys {
		if item, ok := s.items[key]; ok {
			out[key] = cloneItem(item)
		}
	}
	return out, nil
}

// DeleteAll removes every key in keys.
func (s *Store) DeleteAll(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.items, key)
	}
	return nil
}

// ContainsKeys reports presence for every key in keys.
func (s *Store) ContainsKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(keys))
	for _, key := range keys {
		_, out[key] = s.items[key]
	}
	return out, nil
}

// GetKeysByTag scans every item for tag.
func (s *Store) GetKeysByTag(ctx context.Context, tag string, page storage.Page) ([]string, error) {
	return s.GetKeysByTags(ctx, []string{tag}, page)
}

// GetKeysByTags scans every item for the AND of tags.
func (s *Store) GetKeysByTags(ctx context.Context, tags []string, page storage.Page) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []string
	for _, key := range sortedKeys(s.items) {
		if hasAllTags(s.items[key].Tags, tags) {
			matched = append(matched, key)
		}
	}
	return paginate(matched, page), nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// DeleteByTag deletes every item tagged tag, returning the count removed.
func (s *Store) DeleteByTag(ctx context.Context, tag string) (int, error) {
	return s.DeleteByTags(ctx, []string{tag})
}

// DeleteByTags deletes every item matching the AND of tags.
func (s *Store) DeleteByTags(ctx context.Context, tags []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, item := range s.items {
		if hasAllTags(item.Tags, tags) {
			delete(s.items, key)
			n++
		}
	}
	return n, nil
}

// CapEncryption reports true: memstore stores whatever bytes the engine
// hands it, so engine-level encryption (policy.encrypt) works transparently.
func (s *Store) CapEncryption() bool { return true }

var _ storage.Adapter = (*Store)(nil)
