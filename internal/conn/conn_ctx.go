package conn

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tobsdb/rtable/internal/auth"
)

type ConnCtx struct {
	Id   string
	User *auth.User

	conn *websocket.Conn
}

func NewConnCtx(c *websocket.Conn, u *auth.User) *ConnCtx {
	return &ConnCtx{Id: uuid.New().String(), User: u, conn: c}
}

func (ctx *ConnCtx) Read() ([]byte, error) {
	_, buf, err := ctx.conn.ReadMessage()
	return buf, err
}

func (ctx *ConnCtx) WriteResponse(r Response) error { return ctx.conn.WriteJSON(r) }
