package conn

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tobsdb/rtable/internal/auth"
)

type RequestAction string

const (
	// row actions
	RequestActionSelect RequestAction = "select"
	RequestActionExists RequestAction = "exists"
	RequestActionCount  RequestAction = "count"
	RequestActionInsert RequestAction = "insert"
	RequestActionRow    RequestAction = "row"
	RequestActionUpdate RequestAction = "update"
	RequestActionDelete RequestAction = "delete"

	// table actions
	RequestActionReindex RequestAction = "reindex"
	RequestActionTables  RequestAction = "tables"
)

func (action RequestAction) IsReadOnly() bool {
	switch action {
	case RequestActionSelect, RequestActionExists, RequestActionCount,
		RequestActionRow, RequestActionTables:
		return true
	}
	return false
}

func (action RequestAction) IsAdminAction() bool {
	return action == RequestActionReindex
}

func (action RequestAction) clearance() auth.Role {
	if action.IsAdminAction() {
		return auth.RoleAdmin
	}
	if action.IsReadOnly() {
		return auth.RoleReadOnly
	}
	return auth.RoleReadWrite
}

func ActionHandler(ctx context.Context, tables *Tables, action RequestAction, c *ConnCtx, raw []byte) Response {
	if c.User == nil || !c.User.HasClearance(action.clearance()) {
		return NewErrorResponse(http.StatusForbidden, auth.ErrInsufficientPermissions.Error())
	}

	switch action {
	case RequestActionSelect:
		return SelectReqHandler(ctx, tables, raw)
	case RequestActionExists:
		return ExistsReqHandler(ctx, tables, raw)
	case RequestActionCount:
		return CountReqHandler(ctx, tables, raw)
	case RequestActionInsert:
		return InsertReqHandler(ctx, tables, raw)
	case RequestActionRow:
		return RowReqHandler(ctx, tables, raw)
	case RequestActionUpdate:
		return UpdateReqHandler(ctx, tables, raw)
	case RequestActionDelete:
		return DeleteReqHandler(ctx, tables, raw)
	case RequestActionReindex:
		return ReindexReqHandler(ctx, tables, raw)
	case RequestActionTables:
		return TablesReqHandler(tables)
	default:
		return NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("unknown action: %s", action))
	}
}
