package table_test

import (
	"context"
	"sync"

	"github.com/tobsdb/rtable/internal/store"
	"github.com/tobsdb/rtable/internal/store/memory"
	"github.com/tobsdb/rtable/pkg"
)

// testStore wraps the memory backend, counting every store call and failing
// the ops named in fail.
type testStore struct {
	*memory.Store

	locker sync.RWMutex
	calls  pkg.Map[string, int]
	fail   pkg.Map[string, error]
}

func newTestStore() *testStore {
	return &testStore{Store: memory.New(), calls: pkg.Map[string, int]{}, fail: pkg.Map[string, error]{}}
}

func (s *testStore) GetLocker() *sync.RWMutex { return &s.locker }

func (s *testStore) call(op string) (err error) {
	pkg.LockWrap(s, func() {
		s.calls.Set(op, s.calls.Get(op)+1)
		err = s.fail.Get(op)
	})
	return err
}

func (s *testStore) Calls(op string) int {
	return pkg.RLockGet(s, func() int { return s.calls.Get(op) })
}

func (s *testStore) TotalCalls() int {
	return pkg.RLockGet(s, func() int {
		n := 0
		for _, c := range s.calls {
			n += c
		}
		return n
	})
}

func (s *testStore) FailOn(op string, err error) {
	pkg.LockWrap(s, func() {
		if err == nil {
			s.fail.Delete(op)
		} else {
			s.fail.Set(op, err)
		}
	})
}

func (s *testStore) Kind(ctx context.Context, key string) (store.Kind, error) {
	if err := s.call("kind"); err != nil {
		return store.KindNone, err
	}
	return s.Store.Kind(ctx, key)
}

func (s *testStore) Counter(ctx context.Context, key string) (store.Counter, error) {
	if err := s.call("counter"); err != nil {
		return nil, err
	}
	c, err := s.Store.Counter(ctx, key)
	if err != nil {
		return nil, err
	}
	return testCounter{c, s}, nil
}

func (s *testStore) FieldMap(ctx context.Context, key string) (store.FieldMap, error) {
	if err := s.call("fieldmap"); err != nil {
		return nil, err
	}
	m, err := s.Store.FieldMap(ctx, key)
	if err != nil {
		return nil, err
	}
	return testFieldMap{m, s}, nil
}

func (s *testStore) OrderedSet(ctx context.Context, key string) (store.OrderedSet, error) {
	if err := s.call("orderedset"); err != nil {
		return nil, err
	}
	z, err := s.Store.OrderedSet(ctx, key)
	if err != nil {
		return nil, err
	}
	return testOrderedSet{z, s}, nil
}

type testCounter struct {
	c store.Counter
	s *testStore
}

func (c testCounter) Incr(ctx context.Context) (int64, error) {
	if err := c.s.call("incr"); err != nil {
		return 0, err
	}
	return c.c.Incr(ctx)
}

type testFieldMap struct {
	m store.FieldMap
	s *testStore
}

func (m testFieldMap) Get(ctx context.Context, field string) ([]byte, error) {
	if err := m.s.call("hget"); err != nil {
		return nil, err
	}
	return m.m.Get(ctx, field)
}

func (m testFieldMap) MultiGet(ctx context.Context, fields []string) ([][]byte, error) {
	if err := m.s.call("hmget"); err != nil {
		return nil, err
	}
	return m.m.MultiGet(ctx, fields)
}

func (m testFieldMap) Set(ctx context.Context, field string, value []byte) error {
	if err := m.s.call("hset"); err != nil {
		return err
	}
	return m.m.Set(ctx, field, value)
}

func (m testFieldMap) Delete(ctx context.Context, field string) error {
	if err := m.s.call("hdel"); err != nil {
		return err
	}
	return m.m.Delete(ctx, field)
}

func (m testFieldMap) All(ctx context.Context) (map[string][]byte, error) {
	if err := m.s.call("hgetall"); err != nil {
		return nil, err
	}
	return m.m.All(ctx)
}

type testOrderedSet struct {
	z store.OrderedSet
	s *testStore
}

func (z testOrderedSet) Add(ctx context.Context, score float64, member string) error {
	if err := z.s.call("zadd"); err != nil {
		return err
	}
	return z.z.Add(ctx, score, member)
}

func (z testOrderedSet) Remove(ctx context.Context, member string) error {
	if err := z.s.call("zrem"); err != nil {
		return err
	}
	return z.z.Remove(ctx, member)
}

func (z testOrderedSet) RangeByScore(ctx context.Context, r store.ScoreRange) ([]store.ScoredMember, error) {
	if err := z.s.call("zrange"); err != nil {
		return nil, err
	}
	return z.z.RangeByScore(ctx, r)
}

func (z testOrderedSet) Count(ctx context.Context, min, max float64) (int64, error) {
	if err := z.s.call("zcount"); err != nil {
		return 0, err
	}
	return z.z.Count(ctx, min, max)
}
