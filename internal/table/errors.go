package table

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyName = errors.New("table name cannot be empty")
	// the field was not declared as an index when the table was created
	ErrUndefinedOrderField = errors.New("order field undefined")
	// an index field holds a value that cannot be used as a score
	ErrInvalidScore = errors.New("index value is not a number")
	// an index entry points to an id with no stored row
	ErrRowMissing = errors.New("row missing for indexed id")

	ErrUnknownCodec = errors.New("unknown row codec")
)

func undefinedOrderField(table, field string) error {
	return fmt.Errorf("%w: %s on table %s", ErrUndefinedOrderField, field, table)
}

func invalidScore(field string, value any) error {
	return fmt.Errorf("%w: %s = %v (%T)", ErrInvalidScore, field, value, value)
}
