package conn

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/tobsdb/rtable/internal/config"
	"github.com/tobsdb/rtable/internal/store"
	"github.com/tobsdb/rtable/internal/table"
	"github.com/tobsdb/rtable/pkg"
)

// Tables resolves request table names to accessors over one store. Tables
// named in config keep their declared index fields and codec; any other name
// is opened with the index fields the request carries and the default codec.
type Tables struct {
	store   store.Store
	workers int
	codec   string
	// name -> declaration, from config
	declared pkg.Map[string, config.TableConfig]
}

func NewTables(st store.Store, workers int, codec string, declared []config.TableConfig) *Tables {
	t := &Tables{store: st, workers: workers, codec: codec, declared: pkg.Map[string, config.TableConfig]{}}
	for _, d := range declared {
		t.declared.Set(d.Name, d)
	}
	return t
}

func (t *Tables) Store() store.Store { return t.store }

func (t *Tables) Declared() []config.TableConfig {
	out := []config.TableConfig{}
	for _, d := range t.declared {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b config.TableConfig) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (t *Tables) Resolve(name string, orderBy []string) (*table.Table, error) {
	codecName := t.codec
	if t.declared.Has(name) {
		declared := t.declared.Get(name)
		if len(orderBy) > 0 && !slices.Equal(orderBy, declared.OrderBy) {
			return nil, fmt.Errorf("%w: %s is ordered by %v", ErrOrderByMismatch, name, declared.OrderBy)
		}
		orderBy = declared.OrderBy
		if declared.Codec != "" {
			codecName = declared.Codec
		}
	}
	codec, err := table.CodecByName(codecName)
	if err != nil {
		return nil, err
	}
	tbl, err := table.New(t.store, name, orderBy...)
	if err != nil {
		return nil, err
	}
	return tbl.WithCodec(codec), nil
}
