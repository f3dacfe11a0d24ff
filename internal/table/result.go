package table

import "encoding/json"

type SkippedRow struct {
	ID  string
	Err error
}

func (s SkippedRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}{s.ID, s.Err.Error()})
}

// Result holds the rows of a select in index order.
type Result struct {
	Table   string       `json:"table"`
	Rows    []Row        `json:"rows"`
	Skipped []SkippedRow `json:"skipped,omitempty"`
}

func (r *Result) Len() int { return len(r.Rows) }

func (r *Result) IDs() []int64 {
	ids := make([]int64, len(r.Rows))
	for i, row := range r.Rows {
		ids[i] = GetRowId(row)
	}
	return ids
}

func (r *Result) ToMaps() []map[string]any {
	maps := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		maps[i] = row
	}
	return maps
}
