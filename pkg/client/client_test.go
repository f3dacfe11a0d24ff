package client_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tobsdb/rtable/internal/auth"
	"github.com/tobsdb/rtable/internal/config"
	"github.com/tobsdb/rtable/internal/conn"
	"github.com/tobsdb/rtable/internal/metrics"
	"github.com/tobsdb/rtable/internal/store/memory"
	. "github.com/tobsdb/rtable/pkg/client"
	"gotest.tools/assert"
)

func newTestServer(t *testing.T, users *auth.Users) string {
	st := metrics.Instrument(memory.New())
	tables := conn.NewTables(st, 2, "json", []config.TableConfig{{Name: "users", OrderBy: []string{"age"}}})
	srv := httptest.NewServer(conn.NewServer(users, tables).Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient(t *testing.T) {
	c, err := New(newTestServer(t, auth.NewUsers()), Options{})
	assert.NilError(t, err)
	assert.NilError(t, c.Connect())
	defer c.Disconnect()

	users := c.Table("users")
	for _, age := range []int{30, 10, 20} {
		_, err := users.Insert(Row{"age": age, "name": "n"})
		assert.NilError(t, err)
	}

	t.Run("select", func(t *testing.T) {
		res, err := users.Select("age", Query{Desc: true, Length: 2})
		assert.NilError(t, err)
		assert.Equal(t, len(res.Rows), 2)
		assert.Equal(t, res.Rows[0]["age"], float64(30))
		assert.Equal(t, res.Rows[1]["age"], float64(20))

		res, err = users.Select("age", Between(15, 25))
		assert.NilError(t, err)
		assert.Equal(t, len(res.Rows), 1)
		assert.Equal(t, res.Rows[0]["redisId"], float64(3))
	})

	t.Run("exists and count", func(t *testing.T) {
		ok, err := users.Exists("age", 10)
		assert.NilError(t, err)
		assert.Assert(t, ok)

		n, err := users.Count("age", Query{})
		assert.NilError(t, err)
		assert.Equal(t, n, int64(3))
	})

	t.Run("row update delete", func(t *testing.T) {
		_, err := users.Update(2, Row{"age": 11})
		assert.NilError(t, err)
		row, err := users.Row(2)
		assert.NilError(t, err)
		assert.Equal(t, row["age"], float64(11))
		assert.Equal(t, row["name"], "n")

		assert.NilError(t, users.Delete(2))
		row, err = users.Row(2)
		assert.NilError(t, err)
		assert.Equal(t, len(row), 0)
	})

	t.Run("server error", func(t *testing.T) {
		_, err := users.Select("height", Query{})
		var rerr *Error
		assert.Assert(t, errors.As(err, &rerr))
		assert.Equal(t, rerr.Status, http.StatusBadRequest)

		// the connection survives request errors
		_, err = users.Count("age", Query{})
		assert.NilError(t, err)
	})

	t.Run("reindex", func(t *testing.T) {
		report, err := users.Reindex()
		assert.NilError(t, err)
		assert.Equal(t, report["table"], "users")
	})

	t.Run("ad hoc table", func(t *testing.T) {
		posts := c.Table("posts", "likes")
		id, err := posts.Insert(Row{"likes": 5})
		assert.NilError(t, err)
		assert.Equal(t, id, int64(1))
		ok, err := posts.Exists("likes", 5)
		assert.NilError(t, err)
		assert.Assert(t, ok)
	})
}

func TestClientAuth(t *testing.T) {
	users := auth.NewUsers()
	u, err := auth.NewUser("reader", "pw", auth.RoleReadOnly)
	assert.NilError(t, err)
	assert.NilError(t, users.Add(u))
	url := newTestServer(t, users)

	t.Run("bad password", func(t *testing.T) {
		c, err := New(url, Options{Username: "reader", Password: "nope"})
		assert.NilError(t, err)
		assert.ErrorContains(t, c.Connect(), "Invalid auth")
	})

	t.Run("read only", func(t *testing.T) {
		c, err := New(url, Options{Username: "reader", Password: "pw"})
		assert.NilError(t, err)
		defer c.Disconnect()

		_, err = c.Table("users").Insert(Row{"age": 1})
		var rerr *Error
		assert.Assert(t, errors.As(err, &rerr))
		assert.Equal(t, rerr.Status, http.StatusForbidden)

		n, err := c.Table("users").Count("age", Query{})
		assert.NilError(t, err)
		assert.Equal(t, n, int64(0))
	})
}
