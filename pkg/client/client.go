// Go client for an rtable server.
//
// Usage:
//
//	c, err := client.New("ws://localhost:7085", client.Options{Username: "admin", Password: "secret"})
//	users := c.Table("users", "age")
//	id, err := users.Insert(map[string]any{"name": "alice", "age": 30})
//	rows, err := users.Select("age", client.Query{Length: 10, Desc: true})
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	ws "github.com/gorilla/websocket"
	"github.com/tobsdb/rtable/pkg"
)

type Options struct {
	Username string
	Password string
}

// Client holds one websocket connection; requests on it are serialized.
type Client struct {
	// The websocket connection used by the client
	conn *ws.Conn
	// The formatted connection url of the rtable server
	Url *url.URL

	locker sync.Mutex
	reqId  int
}

var ErrNotConnected = errors.New("not connected")

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("rtable: %d %s", e.Status, e.Message) }

type Response struct {
	Status    int             `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestId int             `json:"__tdb_client_req_id__"`
}

func New(urlStr string, options Options) (*Client, error) {
	Url, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := Url.Query()
	q.Set("username", options.Username)
	q.Set("password", options.Password)
	Url.RawQuery = q.Encode()

	return &Client{Url: Url}, nil
}

func (c *Client) Connect() error {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.connect()
}

func (c *Client) connect() error {
	if c.conn != nil {
		return nil
	}
	conn, res, err := ws.DefaultDialer.Dial(c.Url.String(), nil)
	if err != nil {
		return err
	}
	if err := res.Header.Get("tdb-error"); err != "" {
		conn.Close()
		return fmt.Errorf("rtable: %s", err)
	}

	pkg.DebugLog("Connected to rtable server", c.Url.Host)
	c.conn = conn
	return nil
}

func (c *Client) Disconnect() error {
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.WriteMessage(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, "Disconnect"))
	if err != nil {
		pkg.ErrorLog(err)
	}
	if cerr := c.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	c.conn = nil

	pkg.DebugLog("Disconnected from rtable server")
	return err
}

// Do sends one action and waits for its response. The payload's fields are
// sent alongside the action.
func (c *Client) Do(action string, payload map[string]any, out any) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	if err := c.connect(); err != nil {
		return err
	}
	if c.conn == nil {
		return ErrNotConnected
	}

	c.reqId++
	req := map[string]any{"action": action, "__tdb_client_req_id__": c.reqId}
	for k, v := range payload {
		req[k] = v
	}
	if err := c.conn.WriteJSON(req); err != nil {
		c.conn.Close()
		c.conn = nil
		return err
	}

	var res Response
	if err := c.conn.ReadJSON(&res); err != nil {
		c.conn.Close()
		c.conn = nil
		return err
	}
	if res.RequestId != c.reqId {
		return fmt.Errorf("rtable: response %d for request %d", res.RequestId, c.reqId)
	}
	if res.Status < 200 || res.Status >= 300 {
		return &Error{res.Status, res.Message}
	}
	if out != nil && len(res.Data) > 0 {
		return json.Unmarshal(res.Data, out)
	}
	return nil
}

// Table returns a handle for the named table. orderBy is only needed for
// tables the server has no declaration for.
func (c *Client) Table(name string, orderBy ...string) *Table {
	return &Table{c, name, orderBy}
}

type Table struct {
	c       *Client
	name    string
	orderBy []string
}

type Query struct {
	Offset int64
	Length int64
	Desc   bool
	Min    *float64
	Max    *float64
}

func Between(min, max float64) Query { return Query{Min: &min, Max: &max} }

type Row = map[string]any

type SkippedRow struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type SelectResult struct {
	Table   string       `json:"table"`
	Rows    []Row        `json:"rows"`
	Skipped []SkippedRow `json:"skipped"`
}

func (t *Table) payload(fields map[string]any) map[string]any {
	p := map[string]any{"table": t.name}
	if len(t.orderBy) > 0 {
		p["orderBy"] = t.orderBy
	}
	for k, v := range fields {
		p[k] = v
	}
	return p
}

func (q Query) fields(field string) map[string]any {
	f := map[string]any{"field": field, "offset": q.Offset, "length": q.Length, "desc": q.Desc}
	if q.Min != nil {
		f["min"] = *q.Min
	}
	if q.Max != nil {
		f["max"] = *q.Max
	}
	return f
}

func (t *Table) Select(field string, q Query) (*SelectResult, error) {
	var res SelectResult
	err := t.c.Do("select", t.payload(q.fields(field)), &res)
	return &res, err
}

func (t *Table) Count(field string, q Query) (int64, error) {
	var n int64
	err := t.c.Do("count", t.payload(q.fields(field)), &n)
	return n, err
}

func (t *Table) Exists(field string, value any) (bool, error) {
	var ok bool
	err := t.c.Do("exists", t.payload(map[string]any{"field": field, "value": value}), &ok)
	return ok, err
}

func (t *Table) Insert(row Row) (int64, error) {
	var id int64
	err := t.c.Do("insert", t.payload(map[string]any{"data": row}), &id)
	return id, err
}

func (t *Table) Row(id int64) (Row, error) {
	row := Row{}
	err := t.c.Do("row", t.payload(map[string]any{"id": id}), &row)
	return row, err
}

func (t *Table) Update(id int64, partial Row) (int64, error) {
	var n int64
	err := t.c.Do("update", t.payload(map[string]any{"id": id, "data": partial}), &n)
	return n, err
}

func (t *Table) Delete(id int64) error {
	return t.c.Do("delete", t.payload(map[string]any{"id": id}), nil)
}

// Reindex returns the server's raw report.
func (t *Table) Reindex(fields ...string) (map[string]any, error) {
	report := map[string]any{}
	err := t.c.Do("reindex", t.payload(map[string]any{"fields": fields}), &report)
	return report, err
}
