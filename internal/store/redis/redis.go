// Package redis implements the store capabilities on a Redis server: counters
// are integer strings, field maps are hashes and ordered sets are zsets.
package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/tobsdb/rtable/internal/store"
)

type Options struct {
	Addr     string
	Password string
	DB       int

	DialTimeout time.Duration
}

func DefaultOptions(addr string) Options {
	return Options{Addr: addr, DialTimeout: 5 * time.Second}
}

type Store struct {
	rdb goredis.UniversalClient
}

func New(opts Options) *Store {
	return &Store{rdb: goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})}
}

// NewFromClient wraps an existing client. Close closes it.
func NewFromClient(rdb goredis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Client() goredis.UniversalClient { return s.rdb }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

// wrapErr turns a server WRONGTYPE reply into store.ErrWrongType.
func wrapErr(key string, err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %s: %v", store.ErrWrongType, key, err)
	}
	return err
}

func kindFromType(t string) store.Kind {
	switch t {
	case "none":
		return store.KindNone
	case "string":
		return store.KindCounter
	case "hash":
		return store.KindFieldMap
	case "zset":
		return store.KindOrderedSet
	}
	return store.KindOther
}

func (s *Store) Kind(ctx context.Context, key string) (store.Kind, error) {
	t, err := s.rdb.Type(ctx, key).Result()
	if err != nil {
		return store.KindNone, err
	}
	return kindFromType(t), nil
}

func (s *Store) check(ctx context.Context, key string, wanted store.Kind) (store.Kind, error) {
	found, err := s.Kind(ctx, key)
	if err != nil {
		return found, err
	}
	return found, store.CheckKind(key, found, wanted)
}

func (s *Store) Counter(ctx context.Context, key string) (store.Counter, error) {
	found, err := s.check(ctx, key, store.KindCounter)
	if err != nil {
		return nil, err
	}
	if found == store.KindNone {
		// another client may create it first; SETNX keeps whichever won
		if err := s.rdb.SetNX(ctx, key, 0, 0).Err(); err != nil {
			return nil, err
		}
	}
	return &counter{s.rdb, key}, nil
}

// Hashes and zsets come into existence on their first write, so resolving
// them only checks the key is not taken by something else.
func (s *Store) FieldMap(ctx context.Context, key string) (store.FieldMap, error) {
	if _, err := s.check(ctx, key, store.KindFieldMap); err != nil {
		return nil, err
	}
	return &fieldMap{s.rdb, key}, nil
}

func (s *Store) OrderedSet(ctx context.Context, key string) (store.OrderedSet, error) {
	if _, err := s.check(ctx, key, store.KindOrderedSet); err != nil {
		return nil, err
	}
	return &orderedSet{s.rdb, key}, nil
}

type counter struct {
	rdb goredis.UniversalClient
	key string
}

func (c *counter) Incr(ctx context.Context) (int64, error) {
	n, err := c.rdb.Incr(ctx, c.key).Result()
	return n, wrapErr(c.key, err)
}

type fieldMap struct {
	rdb goredis.UniversalClient
	key string
}

func (m *fieldMap) Get(ctx context.Context, field string) ([]byte, error) {
	v, err := m.rdb.HGet(ctx, m.key, field).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(m.key, err)
	}
	return v, nil
}

func (m *fieldMap) MultiGet(ctx context.Context, fields []string) ([][]byte, error) {
	values := make([][]byte, len(fields))
	// HMGET rejects an empty field list
	if len(fields) == 0 {
		return values, nil
	}
	res, err := m.rdb.HMGet(ctx, m.key, fields...).Result()
	if err != nil {
		return nil, wrapErr(m.key, err)
	}
	for i, v := range res {
		switch v := v.(type) {
		case string:
			values[i] = []byte(v)
		case []byte:
			values[i] = v
		}
	}
	return values, nil
}

func (m *fieldMap) Set(ctx context.Context, field string, value []byte) error {
	return wrapErr(m.key, m.rdb.HSet(ctx, m.key, field, value).Err())
}

func (m *fieldMap) Delete(ctx context.Context, field string) error {
	return wrapErr(m.key, m.rdb.HDel(ctx, m.key, field).Err())
}

func (m *fieldMap) All(ctx context.Context) (map[string][]byte, error) {
	res, err := m.rdb.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, wrapErr(m.key, err)
	}
	all := make(map[string][]byte, len(res))
	for k, v := range res {
		all[k] = []byte(v)
	}
	return all, nil
}

type orderedSet struct {
	rdb goredis.UniversalClient
	key string
}

// FormatScore renders a score bound the way ZRANGEBYSCORE expects it.
func FormatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (z *orderedSet) Add(ctx context.Context, score float64, member string) error {
	return wrapErr(z.key, z.rdb.ZAdd(ctx, z.key, goredis.Z{Score: score, Member: member}).Err())
}

func (z *orderedSet) Remove(ctx context.Context, member string) error {
	return wrapErr(z.key, z.rdb.ZRem(ctx, z.key, member).Err())
}

func (z *orderedSet) RangeByScore(ctx context.Context, r store.ScoreRange) ([]store.ScoredMember, error) {
	by := &goredis.ZRangeBy{
		Min:    FormatScore(r.Min),
		Max:    FormatScore(r.Max),
		Offset: r.Offset,
		Count:  r.Count,
	}
	// LIMIT is only sent when offset or count is non-zero; a negative count
	// means "to the end"
	if r.Count <= 0 {
		by.Count = 0
		if r.Offset != 0 {
			by.Count = -1
		}
	}

	var cmd *goredis.ZSliceCmd
	if r.Desc {
		cmd = z.rdb.ZRevRangeByScoreWithScores(ctx, z.key, by)
	} else {
		cmd = z.rdb.ZRangeByScoreWithScores(ctx, z.key, by)
	}
	res, err := cmd.Result()
	if err != nil {
		return nil, wrapErr(z.key, err)
	}

	members := make([]store.ScoredMember, len(res))
	for i, e := range res {
		members[i] = store.ScoredMember{Member: fmt.Sprint(e.Member), Score: e.Score}
	}
	return members, nil
}

func (z *orderedSet) Count(ctx context.Context, min, max float64) (int64, error) {
	n, err := z.rdb.ZCount(ctx, z.key, FormatScore(min), FormatScore(max)).Result()
	return n, wrapErr(z.key, err)
}
