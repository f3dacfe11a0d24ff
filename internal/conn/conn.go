package conn

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/tobsdb/rtable/internal/metrics"
	"github.com/tobsdb/rtable/pkg"
)

type WsRequest struct {
	Action RequestAction `json:"action"`
	ReqId  int           `json:"__tdb_client_req_id__"` // used in tdb clients
}

var Upgrader = websocket.Upgrader{
	WriteBufferSize: 1024 * 10,
	ReadBufferSize:  1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := s.Users.Authenticate(q.Get("username"), q.Get("password"))
	if user == nil {
		ConnError(w, r, "Invalid auth")
		return
	}

	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		pkg.ErrorLog(err)
		return
	}
	ctx := NewConnCtx(conn, user)
	metrics.Connections.Inc()
	pkg.InfoLog("New connection", ctx.Id, "from", r.RemoteAddr, "as", user.Name)
	defer func() {
		conn.Close()
		metrics.Connections.Dec()
		pkg.InfoLog("Connection closed", ctx.Id)
	}()

	for {
		buf, err := ctx.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pkg.ErrorLog("unexpected close", err)
			} else {
				pkg.DebugLog("connection closed", err)
			}
			return
		}

		var req WsRequest
		if err := json.Unmarshal(buf, &req); err != nil {
			pkg.ErrorLog("parsing request", err)
			res := NewErrorResponse(http.StatusBadRequest, err.Error())
			if err := ctx.WriteResponse(res); err != nil {
				return
			}
			continue
		}

		res := ActionHandler(r.Context(), s.Tables, req.Action, ctx, buf)
		res.ReqId = req.ReqId
		metrics.Requests.WithLabelValues(string(req.Action), strconv.Itoa(res.Status)).Inc()
		if res.Status >= http.StatusInternalServerError {
			pkg.ErrorLog(req.Action, "failed:", res.Message)
		}

		if err := ctx.WriteResponse(res); err != nil {
			pkg.ErrorLog("writing response", err)
			return
		}
	}
}

func ConnError(w http.ResponseWriter, r *http.Request, conn_error string) {
	pkg.InfoLog("connection error:", conn_error)
	headers := http.Header{}
	headers.Set("tdb-error", conn_error)
	conn, err := Upgrader.Upgrade(w, r, headers)
	if err != nil {
		pkg.ErrorLog(err)
		return
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, conn_error))
	conn.Close()
}
