package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tobsdb/rtable/internal/config"
	"github.com/tobsdb/rtable/internal/store/memory"
	"github.com/tobsdb/rtable/internal/table"
	"gotest.tools/assert"
)

type closeErrStore struct {
	*memory.Store
}

func (closeErrStore) Close() error { return errors.New("close failed") }

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func seed(t *testing.T, st *memory.Store) {
	ctx := context.Background()
	tbl, err := table.New(st, "users", "age")
	assert.NilError(t, err)
	tbl = tbl.WithCodec(table.MsgPack)
	_, err = tbl.Insert(ctx, table.Row{"age": 7})
	assert.NilError(t, err)

	idx, err := st.OrderedSet(ctx, tbl.IndexKey("age"))
	assert.NilError(t, err)
	assert.NilError(t, idx.Remove(ctx, "1"))
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Codec: "json", Workers: 1}
	targets := []config.TableConfig{{Name: "users", OrderBy: []string{"age"}, Codec: "msgpack"}}

	t.Run("reports", func(t *testing.T) {
		st := memory.New()
		seed(t, st)
		var out bytes.Buffer
		assert.Assert(t, reindex(ctx, st, cfg, targets, &out))

		var report table.ReindexReport
		assert.NilError(t, json.Unmarshal(out.Bytes(), &report))
		assert.Equal(t, report.Rows, 1)
		assert.Equal(t, len(report.Corrupt), 0)
		assert.Equal(t, report.Fields["age"].Indexed, 1)
	})

	t.Run("report write fails", func(t *testing.T) {
		st := memory.New()
		seed(t, st)
		assert.Assert(t, !reindex(ctx, st, cfg, targets, failWriter{}))
	})

	t.Run("close fails", func(t *testing.T) {
		st := memory.New()
		seed(t, st)
		var out bytes.Buffer
		assert.Assert(t, !reindex(ctx, closeErrStore{st}, cfg, targets, &out))
		assert.Assert(t, out.Len() > 0)
	})
}
