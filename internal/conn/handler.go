package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tobsdb/rtable/internal/table"
)

type Response struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// don't manually set this. it comes from the client
	ReqId int `json:"__tdb_client_req_id__"`
}

func NewErrorResponse(status int, err string) Response {
	return Response{Message: err, Status: status}
}

func NewResponse(status int, message string, data any) Response {
	return Response{Data: data, Message: message, Status: status}
}

func errorResponse(err error) Response {
	return NewErrorResponse(ErrorStatus(err), err.Error())
}

type TableRequest struct {
	Table   string   `json:"table"`
	OrderBy []string `json:"orderBy"`
}

func decode[T any](tables *Tables, raw []byte) (req T, t *table.Table, err error) {
	if err = json.Unmarshal(raw, &req); err != nil {
		return req, nil, NewQueryError(http.StatusBadRequest, err.Error())
	}
	var tr TableRequest
	if err = json.Unmarshal(raw, &tr); err != nil {
		return req, nil, NewQueryError(http.StatusBadRequest, err.Error())
	}
	t, err = tables.Resolve(tr.Table, tr.OrderBy)
	return req, t, err
}

type SelectRequest struct {
	Field  string   `json:"field"`
	Offset int64    `json:"offset"`
	Length int64    `json:"length"`
	Desc   bool     `json:"desc"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

func (r SelectRequest) Query() table.Query {
	return table.Query{Offset: r.Offset, Length: r.Length, Desc: r.Desc, Min: r.Min, Max: r.Max}
}

func SelectReqHandler(ctx context.Context, tables *Tables, raw []byte) Response {
	req, t, err := decode[SelectRequest](tables, raw)
	if err != nil {
		return errorResponse(err)
	}

	res, err := t.Select(ctx, req.Field, req.Query())
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(
		http.StatusOK,
		fmt.Sprintf("Found %d rows in table %s", res.Len(), t.Name()),
		res,
	)
}

type ExistsRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func ExistsReqHandler(ctx context.Context, tables *Tables, raw []byte) Response {
	req, t, err := decode[ExistsRequest](tables, raw)
	if err != nil {
		return errorResponse(err)
	}

	ok, err := t.Exists(ctx, req.Field, req.Value)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Checked %s in table %s", req.Field, t.Name()), ok)
}

func CountReqHandler(ctx context.Context, tables *Tables, raw []byte) Response {
	req, t, err := decode[SelectRequest](tables, raw)
	if err != nil {
		return errorResponse(err)
	}

	n, err := t.Count(ctx, req.Field, req.Query())
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Counted %d rows in table %s", n, t.Name()), n)
}

type InsertRequest struct {
	Data table.Row `json:"data"`
}

func InsertReqHandler(ctx context.Context, tables *Tables, raw []byte) Response {
	req, t, err := decode[InsertRequest](tables, raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.Data == nil {
		return NewErrorResponse(http.StatusBadRequest, "no data to insert")
	}

	id, err := t.Insert(ctx, req.Data)
	if err != nil {
		res := errorResponse(err)
		if id > 0 {
			// the row was stored but not fully indexed
			res.Data = id
		}
		return res
	}
	return NewResponse(
		http.StatusCreated,
		fmt.Sprintf("Created new row in table %s", t.Name()),
		id,
	)
}

type RowRequest struct {
	Id int64 `json:"id"`
}

func RowReqHandler(ctx context.Context, tables *Tables, raw []byte) Response {
	req, t, err := decode[RowRequest](tables, raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.Id <= 0 {
		return NewErrorResponse(http.StatusBadRequest, "invalid row id")
	}

	row, err := t.Row(ctx, req.Id)
	if err != nil {
		return errorResponse(err)
	}
	if len(row) == 0 {
		return NewResponse(http.StatusOK, fmt.Sprintf("No row %d in table %s", req.Id, t.Name()), row)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Found row in table %s", t.Name()), row)
}

type UpdateRequest struct {
	Id   int64     `json:"id"`
	Data table.Row `json:"data"`
}

func UpdateReqHandler(ctx context.Context, tables *Tables, raw []byte) Response {
	req, t, err := decode[UpdateRequest](tables, raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.Id <= 0 {
		return NewErrorResponse(http.StatusBadRequest, "invalid row id")
	}

	id, err := t.Update(ctx, req.Id, req.Data)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Updated row in table %s", t.Name()), id)
}

func DeleteReqHandler(ctx context.Context, tables *Tables, raw []byte) Response {
	req, t, err := decode[RowRequest](tables, raw)
	if err != nil {
		return errorResponse(err)
	}
	if req.Id <= 0 {
		return NewErrorResponse(http.StatusBadRequest, "invalid row id")
	}

	if err := t.Delete(ctx, req.Id); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Deleted row in table %s", t.Name()), req.Id)
}

type ReindexRequest struct {
	Fields []string `json:"fields"`
}

func ReindexReqHandler(ctx context.Context, tables *Tables, raw []byte) Response {
	req, t, err := decode[ReindexRequest](tables, raw)
	if err != nil {
		return errorResponse(err)
	}

	report, err := t.Reindex(ctx, tables.workers, req.Fields...)
	if err != nil {
		res := errorResponse(err)
		res.Data = report
		return res
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Reindexed table %s", t.Name()), report)
}

func TablesReqHandler(tables *Tables) Response {
	declared := tables.Declared()
	return NewResponse(http.StatusOK, fmt.Sprintf("Found %d declared tables", len(declared)), declared)
}
