package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tobsdb/rtable/pkg"
	"github.com/vmihailenco/msgpack/v5"
)

// Reserved row field holding the row id. Existing data depends on the name.
const SYS_ROW_ID = "redisId"

// Maps row field name to its saved data
type Row = pkg.Map[string, any]

func GetRowId(r Row) int64 {
	return pkg.NumToInt64(r.Get(SYS_ROW_ID))
}

func SetRowId(r Row, id int64) {
	r.Set(SYS_ROW_ID, id)
}

// formatRowId is the FieldMap field and OrderedSet member name of a row.
func formatRowId(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseRowId(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

// Codec turns rows into the bytes kept in the table's data map.
type Codec interface {
	Marshal(r Row) ([]byte, error)
	Unmarshal(b []byte) (Row, error)
}

// JSON is the default codec; numbers come back as float64.
var JSON Codec = jsonCodec{}

// MsgPack is a compact binary codec. Tables written with it cannot be read
// by JSON clients of the same keys.
var MsgPack Codec = msgpackCodec{}

// CodecByName returns the codec registered as "json" or "msgpack". An empty
// name is json.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
}

type jsonCodec struct{}

func (jsonCodec) Marshal(r Row) ([]byte, error) { return json.Marshal(r) }

func (jsonCodec) Unmarshal(b []byte) (Row, error) {
	var r Row
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	if r == nil {
		r = Row{}
	}
	return r, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(r Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(map[string]any(r))
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(b []byte) (Row, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return Row{}, nil
	}
	return Row(m), nil
}
