package cachekit

import (
	"context"

	"github.com/kraklabs/cachekit/storage"
)

// GetKeysByTag returns keys tagged with tag.
func (e *Engine) GetKeysByTag(ctx context.Context, tag string, page storage.Page) ([]string, error) {
	if tag == "" {
		return nil, &CacheError{Kind: ErrInvalidArgument, Op: "get_keys_by_tag", Err: errEmptyTag}
	}
	keys, err := e.adapter.GetKeysByTag(ctx, tag, page)
	if err != nil {
		return nil, &CacheError{Kind: ErrStorageError, Op: "get_keys_by_tag", Err: err}
	}
	return keys, nil
}

// GetKeysByTags returns keys whose tag set is a superset of tags (AND
// semantics).
func (e *Engine) GetKeysByTags(ctx context.Context, tags []string, page storage.Page) ([]string, error) {
	if len(tags) == 0 {
		return nil, &CacheError{Kind: ErrInvalidArgument, Op: "get_keys_by_tags", Err: errEmptyList}
	}
	keys, err := e.adapter.GetKeysByTags(ctx, tags, page)
	if err != nil {
		return nil, &CacheError{Kind: ErrStorageError, Op: "get_keys_by_tags", Err: err}
	}
	return keys, nil
}

// GetByTag returns the decoded values for every key tagged with tag,
// delegating to GetAll.
func GetByTag[T any](ctx context.Context, e *Engine, tag string, page storage.Page) (map[string]T, error) {
	keys, err := e.GetKeysByTag(ctx, tag, page)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string]T{}, nil
	}
	return GetAll[T](ctx, e, keys, nil)
}

// GetByTags delegates to get_all over keys matching every tag.
func GetByTags[T any](ctx context.Context, e *Engine, tags []string, page storage.Page) (map[string]T, error) {
	keys, err := e.GetKeysByTags(ctx, tags, page)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string]T{}, nil
	}
	return GetAll[T](ctx, e, keys, nil)
}

// DeleteByTag removes every item tagged with tag and returns the count
// deleted.
func (e *Engine) DeleteByTag(ctx context.Context, tag string) (int, error) {
	if tag == "" {
		return 0, &CacheError{Kind: ErrInvalidArgument, Op: "delete_by_tag", Err: errEmptyTag}
	}
	keys, err := e.adapter.GetKeysByTag(ctx, tag, storage.Page{})
	if err != nil {
		return 0, &CacheError{Kind: ErrStorageError, Op: "delete_by_tag", Err: err}
	}
	n, err := e.adapter.DeleteByTag(ctx, tag)
	if err != nil {
		return 0, &CacheError{Kind: ErrStorageError, Op: "delete_by_tag", Err: err}
	}
	for _, key := range keys {
		e.analytics.RecordDelete(key)
	}
	return n, nil
}

// DeleteByTags removes every item matching every tag in tags (AND
// semantics) and returns the count deleted.
func (e *Engine) DeleteByTags(ctx context.Context, tags []string) (int, error) {
	if len(tags) == 0 {
		return 0, &CacheError{Kind: ErrInvalidArgument, Op: "delete_by_tags", Err: errEmptyList}
	}
	keys, err := e.adapter.GetKeysByTags(ctx, tags, storage.Page{})
	if err != nil {
		return 0, &CacheError{Kind: ErrStorageError, Op: "delete_by_tags", Err: err}
	}
	n, err := e.adapter.DeleteByTags(ctx, tags)
	if err != nil {
		return 0, &CacheError{Kind: ErrStorageError, Op: "delete_by_tags", Err: err}
	}
	for _, key := range keys {
		e.analytics.RecordDelete(key)
	}
	return n, nil
}
