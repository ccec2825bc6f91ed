package cachekit

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy. Use errors.Is to test
// for a kind and errors.As to recover the *CacheError for its Key.
var (
	// ErrInvalidArgument covers an empty key/tag, an empty list where a
	// non-empty one is required, or a malformed policy field.
	ErrInvalidArgument = errors.New("cachekit: invalid argument")

	// ErrItemTooLarge is returned when a single item exceeds policy.MaxSize.
	ErrItemTooLarge = errors.New("cachekit: item too large")

	// ErrStorageError wraps an adapter-level failure.
	ErrStorageError = errors.New("cachekit: storage error")

	// ErrCodecError wraps a compression/decompression failure. On read, a
	// decompression failure is recovered from (see Get) by returning the
	// raw stored bytes, unless the context was cancelled, in which case
	// ErrCodecError is returned. Write-path compression failures return it.
	ErrCodecError = errors.New("cachekit: codec error")

	// ErrEncryptionError is fatal for the operation it occurs in (key
	// missing/invalid), unlike ErrCodecError.
	ErrEncryptionError = errors.New("cachekit: encryption error")

	// ErrAdapterNotFound and ErrSerializerNotFound occur only during
	// engine construction/wiring.
	ErrAdapterNotFound    = errors.New("cachekit: adapter not found")
	ErrSerializerNotFound = errors.New("cachekit: serializer not found")

	// ErrNotFound is not returned by the engine or the bundled adapters:
	// adapters report a missing key with storage.ErrNotFound, which the
	// engine turns into a miss rather than surfacing it to callers.
	ErrNotFound = errors.New("cachekit: key not found")

	errNilAdapter = errors.New("cachekit: adapter must not be nil")
	errEmptyKey   = errors.New("cachekit: key must not be empty")
	errEmptyTag   = errors.New("cachekit: tag must not be empty")
	errEmptyList  = errors.New("cachekit: list must not be empty")
)

// CacheError decorates a sentinel error with the key it occurred on and an
// optional wrapped cause, so callers can log a single structured error
// while still using errors.Is against the taxonomy above.
type CacheError struct {
	Kind error
	Key  string
	Op   string
	Err  error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s(key=%q): %v", e.Kind, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s(key=%q)", e.Kind, e.Op, e.Key)
}

func (e *CacheError) Unwrap() error { return e.Kind }
