package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/kraklabs/cachekit"
	"github.com/kraklabs/cachekit/storage"
)

// ConflictResolution selects how the synchronizer reconciles a key
// present on both sides with different values.
type ConflictResolution int

const (
	NewerWins ConflictResolution = iota
	RemoteWins
	LocalWins
	MergePreferRemote
	MergePreferLocal
)

// SyncEventKind identifies a synchronizer progress event.
type SyncEventKind int

const (
	SyncStarted SyncEventKind = iota
	SyncBatchUpdate
	SyncBatchDelete
	SyncCompleted
	SyncError
)

// SyncEvent is emitted as a sync run progresses. RunID correlates every
// event from one SyncWith call.
type SyncEvent struct {
	Kind  SyncEventKind
	Keys  []string
	Err   error
	RunID string
}

// syncBatchSize bounds how many keys one reconciliation batch covers.
const syncBatchSize = 50

// SyncOptions configures a sync_with call.
type SyncOptions struct {
	Keys               []string         // nil means "every key on both sides"
	Policy             *cachekit.Policy // applied to every write the sync performs
	Bidirectional      bool
	ConflictResolution ConflictResolution
}

// SyncWith reconciles local against remote per opts, emitting progress
// events to the returned channel. In
// one-way mode (Bidirectional=false), keys absent from remote are
// deleted locally.
func SyncWith[T any](ctx context.Context, local, remote *cachekit.Engine, opts SyncOptions) <-chan SyncEvent {
	runID := uuid.New().String()
	events := make(chan SyncEvent, 16)
	go func() {
		defer close(events)
		events <- SyncEvent{Kind: SyncStarted, RunID: runID}

		keys, err := resolveSyncKeys(ctx, local, remote, opts)
		if err != nil {
			events <- SyncEvent{Kind: SyncError, Err: err, RunID: runID}
			return
		}

		for start := 0; start < len(keys); start += syncBatchSize {
			end := start + syncBatchSize
			if end > len(keys) {
				end = len(keys)
			}
			batch := keys[start:end]
			updated, deleted, err := syncBatch[T](ctx, local, remote, batch, opts)
			if err != nil {
				events <- SyncEvent{Kind: SyncError, Err: err, RunID: runID}
				continue
			}
			if len(updated) > 0 {
				events <- SyncEvent{Kind: SyncBatchUpdate, Keys: updated, RunID: runID}
			}
			if len(deleted) > 0 {
				events <- SyncEvent{Kind: SyncBatchDelete, Keys: deleted, RunID: runID}
			}
		}

		events <- SyncEvent{Kind: SyncCompleted, RunID: runID}
	}()
	return events
}

func resolveSyncKeys(ctx context.Context, local, remote *cachekit.Engine, opts SyncOptions) ([]string, error) {
	if opts.Keys != nil {
		return opts.Keys, nil
	}
	localKeys, err := local.Keys(ctx, storage.Page{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(localKeys))
	all := append([]string(nil), localKeys...)
	for _, k := range localKeys {
		seen[k] = struct{}{}
	}
	remoteKeys, err := remote.Keys(ctx, storage.Page{})
	if err != nil {
		return nil, err
	}
	for _, k := range remoteKeys {
		if _, ok := seen[k]; !ok {
			all = append(all, k)
			seen[k] = struct{}{}
		}
	}
	return all, nil
}

func syncBatch[T any](ctx context.Context, local, remote *cachekit.Engine, keys []string, opts SyncOptions) (updated, deleted []string, err error) {
	for _, key := range keys {
		localMeta, hasLocal, err := local.PeekMeta(ctx, key)
		if err != nil {
			return updated, deleted, err
		}
		remoteMeta, hasRemote, err := remote.PeekMeta(ctx, key)
		if err != nil {
			return updated, deleted, err
		}

		switch {
		case hasLocal && !hasRemote:
			if opts.Bidirectional {
				if err := syncCopy[T](ctx, local, remote, key, opts.Policy); err != nil {
					return updated, deleted, err
				}
				updated = append(updated, key)
			} else {
				if err := local.Delete(ctx, key); err != nil {
					return updated, deleted, err
				}
				deleted = append(deleted, key)
			}
		case !hasLocal && hasRemote:
			if err := syncCopy[T](ctx, remote, local, key, opts.Policy); err != nil {
				return updated, deleted, err
			}
			updated = append(updated, key)
		case hasLocal && hasRemote:
			if resolveConflict(localMeta, remoteMeta, opts.ConflictResolution) == pickRemote {
				if err := syncCopy[T](ctx, remote, local, key, opts.Policy); err != nil {
					return updated, deleted, err
				}
				updated = append(updated, key)
			} else if opts.Bidirectional && resolveConflict(localMeta, remoteMeta, opts.ConflictResolution) == pickLocal {
				if err := syncCopy[T](ctx, local, remote, key, opts.Policy); err != nil {
					return updated, deleted, err
				}
				updated = append(updated, key)
			}
		}
	}
	return updated, deleted, nil
}

type conflictPick int

const (
	pickLocal conflictPick = iota
	pickRemote
	pickNone
)

func resolveConflict(local, remote cachekit.ItemMeta, strategy ConflictResolution) conflictPick {
	switch strategy {
	case RemoteWins, MergePreferRemote:
		return pickRemote
	case LocalWins, MergePreferLocal:
		return pickLocal
	case NewerWins:
		if remote.LastAccessedAt.After(local.LastAccessedAt) {
			return pickRemote
		}
		return pickLocal
	default:
		return pickNone
	}
}

func syncCopy[T any](ctx context.Context, src, dst *cachekit.Engine, key string, policy *cachekit.Policy) error {
	value, found, err := cachekit.Get[T](ctx, src, key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var opts []cachekit.PutOption
	if policy != nil {
		opts = append(opts, cachekit.WithPutPolicy(*policy))
	}
	return cachekit.Put(ctx, dst, key, value, opts...)
}
