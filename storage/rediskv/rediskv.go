// Package rediskv is a Redis-backed reference storage adapter. It
// maintains an incremental reverse tag index (tag -> set of keys) rather
// than scanning, the strategy recommended for richer adapters; it exists
// for testability rather than as a production backend (shipping
// production backend bindings is explicitly out of scope).
package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kraklabs/cachekit/storage"
)

// PoolConfig configures the underlying go-redis connection pool.
type PoolConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c PoolConfig) toOptions() *redis.Options {
	opts := &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	return opts
}

const keyPrefix = "cache:item:"
const tagPrefix = "cache:tag:"

// Store is a storage.Adapter backed by Redis.
type Store struct {
	client *redis.Client
}

// New dials a Redis pool per config and returns a ready Store.
func New(config PoolConfig) *Store {
	return &Store{client: redis.NewClient(config.toOptions())}
}

// NewWithClient wraps an already-constructed client, e.g. for tests using
// miniredis or a shared pool.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.client.Close() }

func itemKey(key string) string { return keyPrefix + key }
func tagKey(tag string) string  { return tagPrefix + tag }

// wireItem is the JSON persistence shape for storage.Item. It carries
// every item field so an item round-trips intact through encryption.
type wireItem struct {
	Value            []byte     `json:"value"`
	Expiry           *time.Time `json:"expiry,omitempty"`
	SlidingTTL       *int64     `json:"sliding_ttl_ns,omitempty"`
	Priority         int        `json:"priority"`
	CreatedAt        time.Time  `json:"created_at"`
	LastAccessedAt   time.Time  `json:"last_accessed_at"`
	AccessCount      int64      `json:"access_count"`
	IsCompressed     bool       `json:"is_compressed"`
	OriginalSize     int        `json:"original_size"`
	CompressionRatio float64    `json:"compression_ratio"`
	IsEncrypted      bool       `json:"is_encrypted"`
	Tags             []string   `json:"tags,omitempty"`
}

func toWire(item *storage.Item) wireItem {
	w := wireItem{
		Value:            item.Value,
		Expiry:           item.Expiry,
		Priority:         int(item.Priority),
		CreatedAt:        item.CreatedAt,
		LastAccessedAt:   item.LastAccessedAt,
		AccessCount:      item.AccessCount,
		IsCompressed:     item.IsCompressed,
		OriginalSize:     item.OriginalSize,
		CompressionRatio: item.CompressionRatio,
		IsEncrypted:      item.IsEncrypted,
		Tags:             item.Tags,
	}
	if item.SlidingTTL != nil {
		ns := int64(*item.SlidingTTL)
		w.SlidingTTL = &ns
	}
	return w
}

func fromWire(w wireItem) *storage.Item {
	item := &storage.Item{
		Value:            w.Value,
		Expiry:           w.Expiry,
		Priority:         storage.Priority(w.Priority),
		CreatedAt:        w.CreatedAt,
		LastAccessedAt:   w.LastAccessedAt,
		AccessCount:      w.AccessCount,
		IsCompressed:     w.IsCompressed,
		OriginalSize:     w.OriginalSize,
		CompressionRatio: w.CompressionRatio,
		IsEncrypted:      w.IsEncrypted,
		Tags:             w.Tags,
	}
	if w.SlidingTTL != nil {
		d := time.Duration(*w.SlidingTTL)
		item.SlidingTTL = &d
	}
	return item
}

// Put replaces any prior item under key and refreshes its tag index
// membership.
func (s *Store) Put(ctx context.Context, key string, item *storage.Item) error {
	data, err := json.Marshal(toWire(item))
	if err != nil {
		return fmt.Errorf("rediskv: marshal item: %w", err)
	}

	old, err := s.client.Get(ctx, itemKey(key)).Bytes()
	var oldTags []string
	if err == nil {
		var w wireItem
		if jerr := json.Unmarshal(old, &w); jerr == nil {
			oldTags = w.Tags
		}
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("rediskv: read prior item: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, itemKey(key), data, 0)
	for _, tag := range removedTags(oldTags, item.Tags) {
		pipe.SRem(ctx, tagKey(tag), key)
	}
	for _, tag := range item.Tags {
		pipe.SAdd(ctx, tagKey(tag), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rediskv: put pipeline: %w", err)
	}
	return nil
}

func removedTags(old, current []string) []string {
	currentSet := make(map[string]struct{}, len(current))
	for _, t := range current {
		currentSet[t] = struct{}{}
	}
	var removed []string
	for _, t := range old {
		if _, ok := currentSet[t]; !ok {
			removed = append(removed, t)
		}
	}
	return removed
}

// Get returns the item stored under key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	data, err := s.client.Get(ctx, itemKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rediskv: get: %w", err)
	}
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("rediskv: unmarshal item: %w", err)
	}
	return fromWire(w), nil
}

// Delete removes key and its tag index memberships.
func (s *Store) Delete(ctx context.Context, key string) error {
	item, err := s.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, itemKey(key))
	if item != nil {
		for _, tag := range item.Tags {
			pipe.SRem(ctx, tagKey(tag), key)
		}
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("rediskv: delete pipeline: %w", err)
	}
	return nil
}

// Clear removes every cachekit-owned key; it scans rather than FLUSHDB so
// it's safe against a shared Redis instance.
func (s *Store) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("rediskv: clear scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("rediskv: clear del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	tagCursor := uint64(0)
	for {
		keys, next, err := s.client.Scan(ctx, tagCursor, tagPrefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("rediskv: clear tag scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("rediskv: clear tag del: %w", err)
			}
		}
		tagCursor = next
		if tagCursor == 0 {
			break
		}
	}
	return nil
}

// ContainsKey reports whether key is present.
func (s *Store) ContainsKey(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, itemKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("rediskv: exists: %w", err)
	}
	return n > 0, nil
}

// GetKeys returns a stable-order page of all keys.
func (s *Store) GetKeys(ctx context.Context, page storage.Page) ([]string, error) {
	keys, err := s.scanAll(ctx, keyPrefix+"*")
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = k[len(keyPrefix):]
	}
	sort.Strings(keys)
	return paginate(keys, page), nil
}

func (s *Store) scanAll(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("rediskv: scan: %w", err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
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

// PutAll stores items one at a time, each with its own item+tag-index
// pipeline; a mid-batch failure surfaces the error without rolling back
// earlier writes.
func (s *Store) PutAll(ctx context.Context, items map[string]*storage.Item) error {
	for key, item := range items {
		if err := s.Put(ctx, key, item); err != nil {
			return err
		}
	}
	return nil
}

// GetAll returns every present item among keys via MGET.
func (s *Store) GetAll(ctx context.Context, keys []string) (map[string]*storage.Item, error) {
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = itemKey(k)
	}
	values, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("rediskv: mget: %w", err)
	}
	out := make(map[string]*storage.Item, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		var w wireItem
		if err := json.Unmarshal([]byte(str), &w); err != nil {
			return nil, fmt.Errorf("rediskv: unmarshal item %q: %w", keys[i], err)
		}
		out[keys[i]] = fromWire(w)
	}
	return out, nil
}

// DeleteAll removes every key in keys and their tag memberships.
func (s *Store) DeleteAll(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// ContainsKeys reports presence for every key in keys.
func (s *Store) ContainsKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	for _, key := range keys {
		ok, err := s.ContainsKey(ctx, key)
		if err != nil {
			return nil, err
		}
		out[key] = ok
	}
	return out, nil
}

// GetKeysByTag returns the maintained reverse-index set for tag.
func (s *Store) GetKeysByTag(ctx context.Context, tag string, page storage.Page) ([]string, error) {
	keys, err := s.client.SMembers(ctx, tagKey(tag)).Result()
	if err != nil {
		return nil, fmt.Errorf("rediskv: smembers: %w", err)
	}
	sort.Strings(keys)
	return paginate(keys, page), nil
}

// GetKeysByTags intersects the reverse-index sets for every tag in tags.
func (s *Store) GetKeysByTags(ctx context.Context, tags []string, page storage.Page) ([]string, error) {
	redisTags := make([]string, len(tags))
	for i, t := range tags {
		redisTags[i] = tagKey(t)
	}
	keys, err := s.client.SInter(ctx, redisTags...).Result()
	if err != nil {
		return nil, fmt.Errorf("rediskv: sinter: %w", err)
	}
	sort.Strings(keys)
	return paginate(keys, page), nil
}

// DeleteByTag removes every item tagged tag.
func (s *Store) DeleteByTag(ctx context.Context, tag string) (int, error) {
	keys, err := s.client.SMembers(ctx, tagKey(tag)).Result()
	if err != nil {
		return 0, fmt.Errorf("rediskv: smembers: %w", err)
	}
	if err := s.DeleteAll(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// DeleteByTags removes every item matching the AND of tags.
func (s *Store) DeleteByTags(ctx context.Context, tags []string) (int, error) {
	keys, err := s.GetKeysByTags(ctx, tags, storage.Page{})
	if err != nil {
		return 0, err
	}
	if err := s.DeleteAll(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// CapEncryption reports true: rediskv stores whatever bytes the engine
// hands it, so engine-level encryption (policy.encrypt) works transparently.
func (s *Store) CapEncryption() bool { return true }

var _ storage.Adapter = (*Store)(nil)
