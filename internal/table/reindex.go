package table

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/tobsdb/rtable/internal/store"
	"github.com/tobsdb/rtable/pkg"
)

type FieldReport struct {
	// entries added or corrected from stored rows
	Indexed int `json:"indexed"`
	// entries removed because their row is gone, null in the field or corrupt
	Removed int `json:"removed"`
	// rows left out because the field is not a number
	Invalid []int64 `json:"invalid,omitempty"`
}

type ReindexReport struct {
	Table   string                 `json:"table"`
	Rows    int                    `json:"rows"`
	Corrupt []string               `json:"corrupt,omitempty"`
	Fields  map[string]FieldReport `json:"fields"`
}

// Reindex rebuilds the given index fields (all of them when none are given)
// from the rows in the data map and drops stale entries. Writes made while
// it runs may be overwritten with the values it read.
//
// workers bounds how many fields are rebuilt at once; values < 1 mean one.
func (t *Table) Reindex(ctx context.Context, workers int, fields ...string) (*ReindexReport, error) {
	if len(fields) == 0 {
		fields = t.orderBy
	}
	for _, f := range fields {
		if !t.HasIndex(f) {
			return nil, undefinedOrderField(t.name, f)
		}
	}

	data, err := t.data(ctx)
	if err != nil {
		return nil, fmt.Errorf("reindex %s: %w", t.name, err)
	}
	all, err := data.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reindex %s: %w", t.name, err)
	}

	report := &ReindexReport{Table: t.name, Rows: len(all), Fields: map[string]FieldReport{}}
	rows := pkg.Map[string, Row]{}
	for member, buf := range all {
		row, err := t.codec.Unmarshal(buf)
		if err != nil {
			pkg.WarnLog("reindex", t.name, "skipping corrupt row", member, err)
			report.Corrupt = append(report.Corrupt, member)
			continue
		}
		rows.Set(member, row)
	}

	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		pkg.ErrorLog("reindex worker panic:", v)
	}))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		failed = func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	)
	for _, field := range fields {
		field := field
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			fr, err := t.reindexField(ctx, field, rows)
			if err != nil {
				failed(fmt.Errorf("reindex %s by %s: %w", t.name, field, err))
				return
			}
			mu.Lock()
			report.Fields[field] = fr
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			failed(err)
		}
	}
	wg.Wait()

	pkg.InfoLog("reindexed", t.name, "rows:", report.Rows, "corrupt:", len(report.Corrupt))
	return report, errors.Join(errs...)
}

func (t *Table) reindexField(ctx context.Context, field string, rows pkg.Map[string, Row]) (FieldReport, error) {
	fr := FieldReport{}
	index, err := t.index(ctx, field)
	if err != nil {
		return fr, err
	}

	current, err := index.RangeByScore(ctx, store.FullRange())
	if err != nil {
		return fr, err
	}
	scored := pkg.Map[string, float64]{}
	for _, e := range current {
		scored.Set(e.Member, e.Score)
	}

	valid := pkg.Map[string, bool]{}
	for member, row := range rows {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		score, ok := pkg.NumToFloat(v)
		if !ok {
			id, _ := parseRowId(member)
			fr.Invalid = append(fr.Invalid, id)
			continue
		}
		valid.Set(member, true)
		if scored.Has(member) && scored.Get(member) == score {
			continue
		}
		if err := index.Add(ctx, score, member); err != nil {
			return fr, err
		}
		fr.Indexed++
	}

	for member := range scored {
		if valid.Has(member) {
			continue
		}
		if err := index.Remove(ctx, member); err != nil {
			return fr, err
		}
		fr.Removed++
	}
	return fr, nil
}
