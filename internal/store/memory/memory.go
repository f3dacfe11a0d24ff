// Package memory is an in-process store backend. It keeps the same key
// semantics as the remote backends, which makes it the default for tests and
// for single-process deployments.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tobsdb/rtable/internal/store"
	"github.com/tobsdb/rtable/pkg"
	sorted "github.com/tobshub/go-sortedmap"
)

type Store struct {
	locker sync.RWMutex
	// key -> *counter | *fieldMap | *orderedSet
	data pkg.Map[string, any]
}

func New() *Store {
	return &Store{data: pkg.Map[string, any]{}}
}

func (s *Store) GetLocker() *sync.RWMutex { return &s.locker }

func kindOf(v any) store.Kind {
	switch v.(type) {
	case nil:
		return store.KindNone
	case *counter:
		return store.KindCounter
	case *fieldMap:
		return store.KindFieldMap
	case *orderedSet:
		return store.KindOrderedSet
	}
	return store.KindOther
}

func (s *Store) Kind(_ context.Context, key string) (store.Kind, error) {
	return pkg.RLockGet(s, func() store.Kind { return kindOf(s.data.Get(key)) }), nil
}

// Keys returns every key in use.
func (s *Store) Keys() []string {
	return pkg.RLockGet(s, s.data.Keys)
}

// resolve returns the value under key, creating it with create when the key is
// unused.
func (s *Store) resolve(key string, wanted store.Kind, create func() any) (v any, err error) {
	pkg.LockWrap(s, func() {
		v = s.data.Get(key)
		if err = store.CheckKind(key, kindOf(v), wanted); err != nil {
			v = nil
			return
		}
		if v == nil {
			v = create()
			s.data.Set(key, v)
		}
	})
	return v, err
}

func (s *Store) Counter(_ context.Context, key string) (store.Counter, error) {
	v, err := s.resolve(key, store.KindCounter, func() any { return &counter{} })
	if err != nil {
		return nil, err
	}
	return v.(*counter), nil
}

func (s *Store) FieldMap(_ context.Context, key string) (store.FieldMap, error) {
	v, err := s.resolve(key, store.KindFieldMap, func() any {
		return &fieldMap{fields: pkg.Map[string, []byte]{}}
	})
	if err != nil {
		return nil, err
	}
	return v.(*fieldMap), nil
}

func (s *Store) OrderedSet(_ context.Context, key string) (store.OrderedSet, error) {
	v, err := s.resolve(key, store.KindOrderedSet, func() any { return newOrderedSet() })
	if err != nil {
		return nil, err
	}
	return v.(*orderedSet), nil
}

// Put stores an opaque value under key. Used to simulate keys holding
// structures tables do not know about.
func (s *Store) Put(key string, v any) {
	pkg.LockWrap(s, func() { s.data.Set(key, v) })
}

func (s *Store) Close() error { return nil }

type counter struct {
	value atomic.Int64
}

func (c *counter) Incr(_ context.Context) (int64, error) {
	return c.value.Add(1), nil
}

type fieldMap struct {
	locker sync.RWMutex
	fields pkg.Map[string, []byte]
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func (m *fieldMap) Get(_ context.Context, field string) ([]byte, error) {
	m.locker.RLock()
	defer m.locker.RUnlock()
	return cloneBytes(m.fields.Get(field)), nil
}

func (m *fieldMap) MultiGet(_ context.Context, fields []string) ([][]byte, error) {
	m.locker.RLock()
	defer m.locker.RUnlock()
	values := make([][]byte, len(fields))
	for i, field := range fields {
		values[i] = cloneBytes(m.fields.Get(field))
	}
	return values, nil
}

func (m *fieldMap) Set(_ context.Context, field string, value []byte) error {
	m.locker.Lock()
	defer m.locker.Unlock()
	if value == nil {
		value = []byte{}
	}
	m.fields.Set(field, cloneBytes(value))
	return nil
}

func (m *fieldMap) Delete(_ context.Context, field string) error {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.fields.Delete(field)
	return nil
}

func (m *fieldMap) All(_ context.Context) (map[string][]byte, error) {
	m.locker.RLock()
	defer m.locker.RUnlock()
	all := make(map[string][]byte, len(m.fields))
	for k, v := range m.fields {
		all[k] = cloneBytes(v)
	}
	return all, nil
}

type zEntry struct {
	Member string
	Score  float64
}

// members are ordered by score, ties broken by member name
func zEntryComparisonFunc(a, b zEntry) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

type orderedSet struct {
	locker sync.RWMutex
	m      *sorted.SortedMap[string, zEntry]
}

func newOrderedSet() *orderedSet {
	return &orderedSet{m: sorted.New[string, zEntry](0, zEntryComparisonFunc)}
}

func (z *orderedSet) Add(_ context.Context, score float64, member string) error {
	z.locker.Lock()
	defer z.locker.Unlock()
	e := zEntry{member, score}
	if !z.m.Insert(member, e) {
		z.m.Replace(member, e)
	}
	return nil
}

func (z *orderedSet) Remove(_ context.Context, member string) error {
	z.locker.Lock()
	defer z.locker.Unlock()
	z.m.Delete(member)
	return nil
}

// scan returns the entries with min <= score <= max in ascending order.
func (z *orderedSet) scan(min, max float64) []zEntry {
	found := []zEntry{}
	iterCh, err := z.m.IterCh()
	// an empty map has nothing to iterate
	if err != nil {
		return found
	}
	for rec := range iterCh.Records() {
		if rec.Val.Score >= min && rec.Val.Score <= max {
			found = append(found, rec.Val)
		}
	}
	return found
}

func (z *orderedSet) RangeByScore(_ context.Context, r store.ScoreRange) ([]store.ScoredMember, error) {
	z.locker.RLock()
	found := z.scan(r.Min, r.Max)
	z.locker.RUnlock()

	if r.Desc {
		for i, j := 0, len(found)-1; i < j; i, j = i+1, j-1 {
			found[i], found[j] = found[j], found[i]
		}
	}

	found = store.Window(found, r)
	res := make([]store.ScoredMember, len(found))
	for i, e := range found {
		res[i] = store.ScoredMember{Member: e.Member, Score: e.Score}
	}
	return res, nil
}

func (z *orderedSet) Count(_ context.Context, min, max float64) (int64, error) {
	z.locker.RLock()
	defer z.locker.RUnlock()
	return int64(len(z.scan(min, max))), nil
}

func (z *orderedSet) Len() int {
	z.locker.RLock()
	defer z.locker.RUnlock()
	return z.m.Len()
}
