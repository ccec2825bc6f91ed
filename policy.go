package cachekit

import (
	"time"

	"github.com/kraklabs/cachekit/codec"
	"github.com/kraklabs/cachekit/storage"
)

// Priority re-exports storage.Priority so callers never need to import the
// storage package just to set a priority tier.
type Priority = storage.Priority

const (
	PriorityLow      = storage.PriorityLow
	PriorityNormal   = storage.PriorityNormal
	PriorityHigh     = storage.PriorityHigh
	PriorityCritical = storage.PriorityCritical
)

// RefreshStrategy controls what Get does with a stale item when a refresh
// callback is supplied.
type RefreshStrategy int

const (
	RefreshNever RefreshStrategy = iota
	RefreshBackground
	RefreshImmediate
)

// CompressionMode controls whether Put attempts compression.
type CompressionMode int

const (
	CompressionAuto CompressionMode = iota
	CompressionAlways
	CompressionNever
)

// Policy is the record of per-item knobs. All fields are optional (zero
// value = "not set") except where noted; pointer-typed fields (Expiry,
// SlidingTTL, MaxSize) distinguish "unset" from "explicit zero".
type Policy struct {
	Expiry           *time.Duration
	SlidingTTL       *time.Duration
	StaleTime        *time.Duration
	Priority         Priority
	RefreshStrategy  RefreshStrategy
	MaxSize          *int
	Encrypt          bool
	Compression      CompressionMode
	CompressionLevel int

	// explicitPriority and explicitCompression track which fields were
	// explicitly assigned by the caller
	// rather than left at their zero value, so merge can apply
	// field-by-field override semantics.
	explicitPriority    bool
	explicitCompression bool
}

// DefaultPolicy returns the zero-configuration policy: no expiry, Normal
// priority, Auto compression, RefreshNever.
func DefaultPolicy() Policy {
	return Policy{
		Priority:         PriorityNormal,
		Compression:      CompressionAuto,
		CompressionLevel: codec.DefaultCompressionLevel,
	}
}

// NeverExpirePolicy returns a policy with no TTL and Normal priority.
func NeverExpirePolicy() Policy {
	p := DefaultPolicy()
	return p
}

// TemporaryPolicy returns a short-lived, low-priority policy, the natural
// choice for ephemeral, cheaply-recomputed values.
func TemporaryPolicy(ttl time.Duration) Policy {
	p := DefaultPolicy()
	p.Expiry = &ttl
	p.Priority = PriorityLow
	p.explicitPriority = true
	return p
}

// EncryptedPolicy returns a policy requesting encryption with the given TTL.
func EncryptedPolicy(ttl time.Duration) Policy {
	p := DefaultPolicy()
	p.Expiry = &ttl
	p.Encrypt = true
	return p
}

// CompressedPolicy returns a policy that always compresses.
func CompressedPolicy() Policy {
	p := DefaultPolicy()
	p.Compression = CompressionAlways
	p.explicitCompression = true
	return p
}

// BackgroundRefreshPolicy returns a policy using background
// stale-while-revalidate semantics.
func BackgroundRefreshPolicy(stale, ttl time.Duration) Policy {
	p := DefaultPolicy()
	p.StaleTime = &stale
	p.Expiry = &ttl
	p.RefreshStrategy = RefreshBackground
	return p
}

// ImmediateRefreshPolicy returns a policy that blocks Get on a refresh
// callback once the item goes stale.
func ImmediateRefreshPolicy(stale, ttl time.Duration) Policy {
	p := DefaultPolicy()
	p.StaleTime = &stale
	p.Expiry = &ttl
	p.RefreshStrategy = RefreshImmediate
	return p
}

// merge overlays override onto base, field by field: a non-nil pointer
// field or a non-zero value field of override wins, except that Priority
// and Compression win only when explicitly set (WithPriority,
// WithCompression, or a preset); otherwise base's value is kept.
func merge(base, override Policy) Policy {
	out := base
	if override.Expiry != nil {
		out.Expiry = override.Expiry
	}
	if override.SlidingTTL != nil {
		out.SlidingTTL = override.SlidingTTL
	}
	if override.StaleTime != nil {
		out.StaleTime = override.StaleTime
	}
	if override.explicitPriority {
		out.Priority = override.Priority
	}
	if override.RefreshStrategy != RefreshNever {
		out.RefreshStrategy = override.RefreshStrategy
	}
	if override.MaxSize != nil {
		out.MaxSize = override.MaxSize
	}
	if override.Encrypt {
		out.Encrypt = true
	}
	if override.explicitCompression {
		out.Compression = override.Compression
	}
	if override.CompressionLevel != 0 {
		out.CompressionLevel = override.CompressionLevel
	}
	return out
}

// validate rejects a sliding TTL without a base expiry (sliding expiry
// is meaningless without an expiry to refresh) and an out-of-range
// compression level.
func (p Policy) validate() error {
	if p.SlidingTTL != nil && p.Expiry == nil {
		return ErrInvalidArgument
	}
	if p.CompressionLevel != 0 {
		if p.CompressionLevel < codec.MinCompressionLevel || p.CompressionLevel > codec.MaxCompressionLevel {
			return ErrInvalidArgument
		}
	}
	return nil
}

// WithPriority returns a copy of p with Priority explicitly set.
func (p Policy) WithPriority(priority Priority) Policy {
	p.Priority = priority
	p.explicitPriority = true
	return p
}

// WithCompression returns a copy of p with Compression explicitly set.
func (p Policy) WithCompression(mode CompressionMode) Policy {
	p.Compression = mode
	p.explicitCompression = true
	return p
}
