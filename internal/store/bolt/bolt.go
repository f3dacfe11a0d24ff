// Package bolt is a persistent embedded store backend on top of bbolt.
//
// Every key owns a top-level bucket. The structural kind of each key is kept
// in a meta bucket so collisions are detected the same way a Redis TYPE check
// would. Ordered sets use two sub-buckets: member -> score, and
// sortable(score)+member -> empty, so score ranges are cursor seeks.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/tobsdb/rtable/internal/store"
	"go.etcd.io/bbolt"
)

var (
	kindsBucket   = []byte("__rtable_kinds")
	counterKey    = []byte("v")
	membersBucket = []byte("m")
	scoresBucket  = []byte("s")
)

var ErrCorruptKey = errors.New("bolt store: corrupt key layout")

type Store struct {
	bdb *bbolt.DB
}

func Open(path string, timeout time.Duration) (*Store, error) {
	bdb, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kindsBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return &Store{bdb: bdb}, nil
}

func (s *Store) Close() error { return s.bdb.Close() }

func kindIn(tx *bbolt.Tx, key string) store.Kind {
	v := tx.Bucket(kindsBucket).Get([]byte(key))
	if len(v) != 1 {
		return store.KindNone
	}
	return store.Kind(v[0])
}

func (s *Store) Kind(ctx context.Context, key string) (kind store.Kind, err error) {
	if err := ctx.Err(); err != nil {
		return store.KindNone, err
	}
	err = s.bdb.View(func(tx *bbolt.Tx) error {
		kind = kindIn(tx, key)
		return nil
	})
	return kind, err
}

// resolve creates the key's bucket (and init's layout) when the key is unused.
func (s *Store) resolve(ctx context.Context, key string, wanted store.Kind, init func(b *bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		found := kindIn(tx, key)
		if err := store.CheckKind(key, found, wanted); err != nil {
			return err
		}
		if found == wanted {
			return nil
		}
		b, err := tx.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		if init != nil {
			if err := init(b); err != nil {
				return err
			}
		}
		return tx.Bucket(kindsBucket).Put([]byte(key), []byte{byte(wanted)})
	})
}

func (s *Store) Counter(ctx context.Context, key string) (store.Counter, error) {
	err := s.resolve(ctx, key, store.KindCounter, func(b *bbolt.Bucket) error {
		return b.Put(counterKey, encodeInt(0))
	})
	if err != nil {
		return nil, err
	}
	return &counter{s.bdb, []byte(key)}, nil
}

func (s *Store) FieldMap(ctx context.Context, key string) (store.FieldMap, error) {
	if err := s.resolve(ctx, key, store.KindFieldMap, nil); err != nil {
		return nil, err
	}
	return &fieldMap{s.bdb, []byte(key)}, nil
}

func (s *Store) OrderedSet(ctx context.Context, key string) (store.OrderedSet, error) {
	err := s.resolve(ctx, key, store.KindOrderedSet, func(b *bbolt.Bucket) error {
		if _, err := b.CreateBucketIfNotExists(membersBucket); err != nil {
			return err
		}
		_, err := b.CreateBucketIfNotExists(scoresBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &orderedSet{s.bdb, []byte(key)}, nil
}

func encodeInt(n int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(n))
}

// EncodeScore maps a float64 to 8 bytes whose byte order matches numeric order.
// -0 and +0 share one encoding.
func EncodeScore(f float64) []byte {
	if f == 0 {
		f = 0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return binary.BigEndian.AppendUint64(nil, bits)
}

func DecodeScore(b []byte) float64 {
	bits := binary.BigEndian.Uint64(b[:8])
	if bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

func bucket(tx *bbolt.Tx, key []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(key)
	if b == nil {
		return nil, ErrCorruptKey
	}
	return b, nil
}

type counter struct {
	bdb *bbolt.DB
	key []byte
}

func (c *counter) Incr(ctx context.Context) (n int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	err = c.bdb.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, c.key)
		if err != nil {
			return err
		}
		v := b.Get(counterKey)
		if len(v) != 8 {
			return ErrCorruptKey
		}
		n = int64(binary.BigEndian.Uint64(v)) + 1
		return b.Put(counterKey, encodeInt(n))
	})
	return n, err
}

type fieldMap struct {
	bdb *bbolt.DB
	key []byte
}

func (m *fieldMap) Get(ctx context.Context, field string) (v []byte, err error) {
	vs, err := m.MultiGet(ctx, []string{field})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (m *fieldMap) MultiGet(ctx context.Context, fields []string) (values [][]byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values = make([][]byte, len(fields))
	err = m.bdb.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, m.key)
		if err != nil {
			return err
		}
		for i, field := range fields {
			// values are only valid for the life of the tx
			if v := b.Get([]byte(field)); v != nil {
				values[i] = bytes.Clone(v)
			}
		}
		return nil
	})
	return values, err
}

func (m *fieldMap) Set(ctx context.Context, field string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.bdb.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, m.key)
		if err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
		return b.Put([]byte(field), value)
	})
}

func (m *fieldMap) Delete(ctx context.Context, field string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.bdb.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, m.key)
		if err != nil {
			return err
		}
		return b.Delete([]byte(field))
	})
}

func (m *fieldMap) All(ctx context.Context) (all map[string][]byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all = map[string][]byte{}
	err = m.bdb.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, m.key)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			all[string(k)] = bytes.Clone(v)
			return nil
		})
	})
	return all, err
}

type orderedSet struct {
	bdb *bbolt.DB
	key []byte
}

func (z *orderedSet) buckets(tx *bbolt.Tx) (members, scores *bbolt.Bucket, err error) {
	b, err := bucket(tx, z.key)
	if err != nil {
		return nil, nil, err
	}
	members, scores = b.Bucket(membersBucket), b.Bucket(scoresBucket)
	if members == nil || scores == nil {
		return nil, nil, ErrCorruptKey
	}
	return members, scores, nil
}

func scoreKey(score []byte, member string) []byte {
	k := make([]byte, 0, len(score)+len(member))
	k = append(k, score...)
	return append(k, member...)
}

func (z *orderedSet) Add(ctx context.Context, score float64, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return z.bdb.Update(func(tx *bbolt.Tx) error {
		members, scores, err := z.buckets(tx)
		if err != nil {
			return err
		}
		if old := members.Get([]byte(member)); old != nil {
			if err := scores.Delete(scoreKey(old, member)); err != nil {
				return err
			}
		}
		enc := EncodeScore(score)
		if err := members.Put([]byte(member), enc); err != nil {
			return err
		}
		return scores.Put(scoreKey(enc, member), []byte{})
	})
}

func (z *orderedSet) Remove(ctx context.Context, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return z.bdb.Update(func(tx *bbolt.Tx) error {
		members, scores, err := z.buckets(tx)
		if err != nil {
			return err
		}
		old := members.Get([]byte(member))
		if old == nil {
			return nil
		}
		if err := scores.Delete(scoreKey(old, member)); err != nil {
			return err
		}
		return members.Delete([]byte(member))
	})
}

// walk visits entries with min <= score <= max in the requested order until
// fn returns false.
func walk(scores *bbolt.Bucket, min, max float64, desc bool, fn func(store.ScoredMember) bool) {
	c := scores.Cursor()
	entry := func(k []byte) store.ScoredMember {
		return store.ScoredMember{Member: string(k[8:]), Score: DecodeScore(k)}
	}

	if !desc {
		for k, _ := c.Seek(EncodeScore(min)); k != nil; k, _ = c.Next() {
			e := entry(k)
			if e.Score > max || !fn(e) {
				return
			}
		}
		return
	}

	// position on the last entry with score <= max
	k, _ := c.Seek(EncodeScore(max))
	for k != nil && DecodeScore(k) <= max {
		k, _ = c.Next()
	}
	if k == nil {
		k, _ = c.Last()
	} else {
		k, _ = c.Prev()
	}
	for ; k != nil; k, _ = c.Prev() {
		e := entry(k)
		if e.Score < min || !fn(e) {
			return
		}
	}
}

func (z *orderedSet) RangeByScore(ctx context.Context, r store.ScoreRange) (res []store.ScoredMember, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res = []store.ScoredMember{}
	if r.Offset < 0 {
		return res, nil
	}
	err = z.bdb.View(func(tx *bbolt.Tx) error {
		_, scores, err := z.buckets(tx)
		if err != nil {
			return err
		}
		skip := r.Offset
		walk(scores, r.Min, r.Max, r.Desc, func(e store.ScoredMember) bool {
			if skip > 0 {
				skip--
				return true
			}
			res = append(res, e)
			return r.Count <= 0 || int64(len(res)) < r.Count
		})
		return nil
	})
	return res, err
}

func (z *orderedSet) Count(ctx context.Context, min, max float64) (n int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	err = z.bdb.View(func(tx *bbolt.Tx) error {
		_, scores, err := z.buckets(tx)
		if err != nil {
			return err
		}
		walk(scores, min, max, false, func(store.ScoredMember) bool {
			n++
			return true
		})
		return nil
	})
	return n, err
}
