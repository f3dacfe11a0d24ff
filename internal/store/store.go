// Package store defines the data-structure capabilities a backing key-value
// store must expose for tables to be built on top of it: an atomic counter,
// a field map and an ordered set, each resolved by key.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
)

type Kind int

const (
	KindNone Kind = iota
	KindCounter
	KindFieldMap
	KindOrderedSet
	// any structure this package has no handle for (lists, plain sets, ...)
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCounter:
		return "counter"
	case KindFieldMap:
		return "fieldmap"
	case KindOrderedSet:
		return "orderedset"
	}
	return "other"
}

var ErrWrongType = errors.New("key holds a value of the wrong type")

// WrongTypeError reports a key that already holds a structure of another kind.
// It matches ErrWrongType with errors.Is.
func WrongTypeError(key string, found, wanted Kind) error {
	return fmt.Errorf("%w: %s is a %s, wanted %s", ErrWrongType, key, found, wanted)
}

// CheckKind is the get-or-create guard shared by backends: a missing key or a
// key of the wanted kind may be used, anything else is a collision.
func CheckKind(key string, found, wanted Kind) error {
	if found == KindNone || found == wanted {
		return nil
	}
	return WrongTypeError(key, found, wanted)
}

type Counter interface {
	// Incr atomically increments the counter and returns the new value.
	Incr(ctx context.Context) (int64, error)
}

type FieldMap interface {
	// Get returns nil, nil when the field is not set.
	Get(ctx context.Context, field string) ([]byte, error)
	// MultiGet returns one entry per field, in input order, nil where unset.
	MultiGet(ctx context.Context, fields []string) ([][]byte, error)
	Set(ctx context.Context, field string, value []byte) error
	// Delete is a no-op for unset fields.
	Delete(ctx context.Context, field string) error
	// All returns every field of the map.
	All(ctx context.Context) (map[string][]byte, error)
}

type ScoredMember struct {
	Member string
	Score  float64
}

// ScoreRange selects members with Min <= score <= Max, ordered by score
// (ties by member), then windowed by Offset and Count. Count <= 0 means no
// limit.
type ScoreRange struct {
	Min, Max float64
	Offset   int64
	Count    int64
	Desc     bool
}

// FullRange covers every score.
func FullRange() ScoreRange {
	return ScoreRange{Min: math.Inf(-1), Max: math.Inf(1)}
}

type OrderedSet interface {
	// Add sets the member's score, inserting the member if needed.
	Add(ctx context.Context, score float64, member string) error
	// Remove is a no-op for absent members.
	Remove(ctx context.Context, member string) error
	RangeByScore(ctx context.Context, r ScoreRange) ([]ScoredMember, error)
	// Count returns the number of members with min <= score <= max.
	Count(ctx context.Context, min, max float64) (int64, error)
}

// Store resolves keys to typed handles. Each resolver creates the structure
// when the key is unused and fails with ErrWrongType when the key holds
// another kind.
type Store interface {
	Kind(ctx context.Context, key string) (Kind, error)
	Counter(ctx context.Context, key string) (Counter, error)
	FieldMap(ctx context.Context, key string) (FieldMap, error)
	OrderedSet(ctx context.Context, key string) (OrderedSet, error)
	Close() error
}

// Members flattens a range result to its member names.
func Members(entries []ScoredMember) []string {
	members := make([]string, len(entries))
	for i, e := range entries {
		members[i] = e.Member
	}
	return members
}

// Window applies r's offset and count to entries already filtered and sorted.
func Window[T any](entries []T, r ScoreRange) []T {
	if r.Offset < 0 || r.Offset >= int64(len(entries)) {
		return entries[:0]
	}
	entries = entries[r.Offset:]
	if r.Count > 0 && r.Count < int64(len(entries)) {
		entries = entries[:r.Count]
	}
	return entries
}
