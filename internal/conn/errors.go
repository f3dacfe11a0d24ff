package conn

import (
	"errors"
	"net/http"

	"github.com/tobsdb/rtable/internal/store"
	"github.com/tobsdb/rtable/internal/table"
)

type QueryError struct {
	msg    string
	status int
}

func NewQueryError(status int, msg string) *QueryError {
	return &QueryError{msg: msg, status: status}
}

func (e QueryError) Error() string { return e.msg }
func (e QueryError) Status() int   { return e.status }

var ErrOrderByMismatch = errors.New("order by does not match the configured table")

// ErrorStatus maps a table or store error to the status sent to clients.
func ErrorStatus(err error) int {
	var qe *QueryError
	switch {
	case errors.As(err, &qe):
		return qe.Status()
	case errors.Is(err, table.ErrUndefinedOrderField),
		errors.Is(err, table.ErrInvalidScore),
		errors.Is(err, table.ErrEmptyName):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrWrongType), errors.Is(err, ErrOrderByMismatch):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
