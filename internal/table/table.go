// Package table implements indexed tables over the store capabilities.
//
// A table named "users" with index fields ["age"] lives under three kinds of
// keys:
//
//	users:ID         counter handing out row ids
//	users:DATA       field map, row id -> encoded row
//	users:INDEX:age  ordered set, row id scored by the row's age
//
// The key layout and the JSON row encoding (with the row id under "redisId")
// are shared with existing data and must not change.
//
// None of the operations are atomic across their steps. A failure between
// the data write and the index writes leaves a row that is stored but not
// (fully) indexed, and concurrent writers to the same row race freely. Use
// Reindex to repair drift.
package table

import (
	"context"
	"fmt"
	"math"

	"github.com/tobsdb/rtable/internal/store"
	"github.com/tobsdb/rtable/pkg"
)

const (
	idSuffix    = ":ID"
	dataSuffix  = ":DATA"
	indexSuffix = ":INDEX:"
)

// Table is a stateless accessor; any number of them may be created with the
// same name and index fields.
type Table struct {
	name    string
	orderBy []string

	store store.Store
	codec Codec
}

// New creates a table accessor. No store calls are made until an operation
// runs. Duplicate or empty index field names are dropped.
func New(st store.Store, name string, orderBy ...string) (*Table, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	fields := []string{}
	seen := pkg.Map[string, bool]{}
	for _, f := range orderBy {
		if f == "" || seen.Has(f) {
			continue
		}
		seen.Set(f, true)
		fields = append(fields, f)
	}
	return &Table{name: name, orderBy: fields, store: st, codec: JSON}, nil
}

// WithCodec returns a copy of the table using c for row encoding.
func (t *Table) WithCodec(c Codec) *Table {
	nt := *t
	nt.codec = c
	return &nt
}

func (t *Table) Name() string { return t.name }

func (t *Table) OrderBy() []string { return append([]string{}, t.orderBy...) }

func (t *Table) HasIndex(field string) bool {
	for _, f := range t.orderBy {
		if f == field {
			return true
		}
	}
	return false
}

func (t *Table) IdKey() string   { return t.name + idSuffix }
func (t *Table) DataKey() string { return t.name + dataSuffix }

func (t *Table) IndexKey(field string) string { return t.name + indexSuffix + field }

func (t *Table) id(ctx context.Context) (store.Counter, error) {
	return t.store.Counter(ctx, t.IdKey())
}

func (t *Table) data(ctx context.Context) (store.FieldMap, error) {
	return t.store.FieldMap(ctx, t.DataKey())
}

func (t *Table) index(ctx context.Context, field string) (store.OrderedSet, error) {
	return t.store.OrderedSet(ctx, t.IndexKey(field))
}

// Query selects a score range of one index and a window of it. Min and Max
// are inclusive and default to 0 and math.MaxInt64. Offset counts from the
// start of the filtered range; Length <= 0 means no limit.
type Query struct {
	Offset int64
	Length int64
	Desc   bool
	Min    *float64
	Max    *float64
}

// Between is a query over scores in [min, max].
func Between(min, max float64) Query {
	return Query{Min: &min, Max: &max}
}

// Unbounded is a query over every score, negative ones included.
func Unbounded() Query {
	return Between(math.Inf(-1), math.Inf(1))
}

func (q Query) Page(offset, length int64) Query {
	q.Offset, q.Length = offset, length
	return q
}

func (q Query) Descending() Query {
	q.Desc = true
	return q
}

func (q Query) Bounds() (min, max float64) {
	min, max = 0, math.MaxInt64
	if q.Min != nil {
		min = *q.Min
	}
	if q.Max != nil {
		max = *q.Max
	}
	return min, max
}

func (q Query) scoreRange() store.ScoreRange {
	min, max := q.Bounds()
	return store.ScoreRange{Min: min, Max: max, Offset: q.Offset, Count: q.Length, Desc: q.Desc}
}

// Select returns the rows whose field score is inside q's bounds, in index
// order. Ids whose row is missing or cannot be decoded are left out of
// Rows and listed in Skipped.
func (t *Table) Select(ctx context.Context, field string, q Query) (*Result, error) {
	if !t.HasIndex(field) {
		return nil, undefinedOrderField(t.name, field)
	}

	index, err := t.index(ctx, field)
	if err != nil {
		return nil, fmt.Errorf("select %s by %s: %w", t.name, field, err)
	}
	entries, err := index.RangeByScore(ctx, q.scoreRange())
	if err != nil {
		return nil, fmt.Errorf("select %s by %s: %w", t.name, field, err)
	}

	res := &Result{Table: t.name, Rows: make([]Row, 0, len(entries))}
	if len(entries) == 0 {
		return res, nil
	}

	data, err := t.data(ctx)
	if err != nil {
		return nil, fmt.Errorf("select %s by %s: %w", t.name, field, err)
	}
	ids := store.Members(entries)
	raw, err := data.MultiGet(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("select %s by %s: %w", t.name, field, err)
	}

	for i, b := range raw {
		if b == nil {
			pkg.WarnLog("table", t.name, "index", field, "points to missing row", ids[i])
			res.Skipped = append(res.Skipped, SkippedRow{ids[i], ErrRowMissing})
			continue
		}
		row, err := t.codec.Unmarshal(b)
		if err != nil {
			pkg.WarnLog("table", t.name, "failed to decode row", ids[i], err)
			res.Skipped = append(res.Skipped, SkippedRow{ids[i], err})
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	pkg.DebugLog("select", t.name, field, "found", len(res.Rows), "skipped", len(res.Skipped))
	return res, nil
}

// Exists reports whether any row has exactly value in the field's index.
func (t *Table) Exists(ctx context.Context, field string, value any) (bool, error) {
	if !t.HasIndex(field) {
		return false, undefinedOrderField(t.name, field)
	}
	score, ok := pkg.NumToFloat(value)
	if !ok {
		return false, invalidScore(field, value)
	}
	n, err := t.count(ctx, field, score, score)
	if err != nil {
		return false, fmt.Errorf("exists in %s: %w", t.name, err)
	}
	return n > 0, nil
}

// Count returns the number of indexed rows inside q's bounds. The window is
// ignored.
func (t *Table) Count(ctx context.Context, field string, q Query) (int64, error) {
	if !t.HasIndex(field) {
		return 0, undefinedOrderField(t.name, field)
	}
	min, max := q.Bounds()
	n, err := t.count(ctx, field, min, max)
	if err != nil {
		return 0, fmt.Errorf("count %s by %s: %w", t.name, field, err)
	}
	return n, nil
}

func (t *Table) count(ctx context.Context, field string, min, max float64) (int64, error) {
	index, err := t.index(ctx, field)
	if err != nil {
		return 0, err
	}
	return index.Count(ctx, min, max)
}

// scores maps each index field set in r to its score. Fields that are absent
// or null have no score.
func (t *Table) scores(r Row) (pkg.Map[string, float64], error) {
	scores := pkg.Map[string, float64]{}
	for _, field := range t.orderBy {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		score, ok := pkg.NumToFloat(v)
		if !ok {
			return nil, invalidScore(field, v)
		}
		scores.Set(field, score)
	}
	return scores, nil
}

// writeIndexes sets the row's entry in every index it has a score for. With
// prune, the row is also removed from the indexes it has no score for.
func (t *Table) writeIndexes(ctx context.Context, id string, scores pkg.Map[string, float64], prune bool) error {
	for _, field := range t.orderBy {
		if !prune && !scores.Has(field) {
			continue
		}
		index, err := t.index(ctx, field)
		if err != nil {
			return err
		}
		if scores.Has(field) {
			err = index.Add(ctx, scores.Get(field), id)
		} else {
			err = index.Remove(ctx, id)
		}
		if err != nil {
			pkg.WarnLog("table", t.name, "row", id, "written without its", field, "index entry:", err)
			return err
		}
	}
	return nil
}

// Insert stores a copy of r under a new id and indexes it. Any id already in
// r is overwritten. Returns the new id.
func (t *Table) Insert(ctx context.Context, r Row) (int64, error) {
	scores, err := t.scores(r)
	if err != nil {
		return 0, err
	}

	counter, err := t.id(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.name, err)
	}
	id, err := counter.Incr(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: allocate id: %w", t.name, err)
	}

	row := r.Clone()
	SetRowId(row, id)
	buf, err := t.codec.Marshal(row)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.name, err)
	}

	data, err := t.data(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.name, err)
	}
	member := formatRowId(id)
	if err := data.Set(ctx, member, buf); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.name, err)
	}

	if err := t.writeIndexes(ctx, member, scores, false); err != nil {
		return id, fmt.Errorf("insert into %s: index row %d: %w", t.name, id, err)
	}
	pkg.DebugLog("inserted row", id, "into", t.name)
	return id, nil
}

func (t *Table) row(ctx context.Context, data store.FieldMap, id int64) (Row, error) {
	buf, err := data.Get(ctx, formatRowId(id))
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return Row{}, nil
	}
	return t.codec.Unmarshal(buf)
}

// Row returns the row stored under id. A missing row is returned as an empty
// Row, not an error.
func (t *Table) Row(ctx context.Context, id int64) (Row, error) {
	data, err := t.data(ctx)
	if err != nil {
		return nil, fmt.Errorf("row %d of %s: %w", id, t.name, err)
	}
	r, err := t.row(ctx, data, id)
	if err != nil {
		return nil, fmt.Errorf("row %d of %s: %w", id, t.name, err)
	}
	return r, nil
}

// Update merges partial over the stored row, stores the result and rewrites
// every index entry of the row. Updating a missing id stores partial as a
// new row under that id.
func (t *Table) Update(ctx context.Context, id int64, partial Row) (int64, error) {
	data, err := t.data(ctx)
	if err != nil {
		return 0, fmt.Errorf("update row %d of %s: %w", id, t.name, err)
	}
	old, err := t.row(ctx, data, id)
	if err != nil {
		return 0, fmt.Errorf("update row %d of %s: %w", id, t.name, err)
	}

	row := old.Merge(partial)
	SetRowId(row, id)
	scores, err := t.scores(row)
	if err != nil {
		return 0, err
	}
	buf, err := t.codec.Marshal(row)
	if err != nil {
		return 0, fmt.Errorf("update row %d of %s: %w", id, t.name, err)
	}

	member := formatRowId(id)
	if err := data.Set(ctx, member, buf); err != nil {
		return 0, fmt.Errorf("update row %d of %s: %w", id, t.name, err)
	}
	if err := t.writeIndexes(ctx, member, scores, true); err != nil {
		return id, fmt.Errorf("update row %d of %s: %w", id, t.name, err)
	}
	pkg.DebugLog("updated row", id, "of", t.name)
	return id, nil
}

// Delete removes the row and its index entries. Deleting a missing id is a
// no-op.
func (t *Table) Delete(ctx context.Context, id int64) error {
	data, err := t.data(ctx)
	if err != nil {
		return fmt.Errorf("delete row %d of %s: %w", id, t.name, err)
	}
	member := formatRowId(id)
	if err := data.Delete(ctx, member); err != nil {
		return fmt.Errorf("delete row %d of %s: %w", id, t.name, err)
	}
	for _, field := range t.orderBy {
		index, err := t.index(ctx, field)
		if err != nil {
			return fmt.Errorf("delete row %d of %s: %w", id, t.name, err)
		}
		if err := index.Remove(ctx, member); err != nil {
			pkg.WarnLog("table", t.name, "row", id, "deleted but still in", field, "index:", err)
			return fmt.Errorf("delete row %d of %s: %w", id, t.name, err)
		}
	}
	pkg.DebugLog("deleted row", id, "of", t.name)
	return nil
}
