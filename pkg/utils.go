package pkg

import (
	"encoding/json"
	"math"
	"strconv"
)

func Filter[T any](items []T, predicate func(T) bool) []T {
	filtered := []T{}
	for _, item := range items {
		if predicate(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Converts a value suspected to be some integer or float type to an int64.
// Decoded rows carry float64 (json) or one of the sized ints (msgpack), so
// ids are read through here.
func NumToInt64(num any) int64 {
	switch num := num.(type) {
	case int:
		return int64(num)
	case int8:
		return int64(num)
	case int16:
		return int64(num)
	case int32:
		return int64(num)
	case int64:
		return num
	case uint:
		return int64(num)
	case uint8:
		return int64(num)
	case uint16:
		return int64(num)
	case uint32:
		return int64(num)
	case uint64:
		return int64(num)
	case float32:
		return int64(num)
	case float64:
		return int64(num)
	case json.Number:
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(num, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

// NumToFloat converts a numeric value, or a string holding one, to a float64.
// ok is false for anything else, including NaN.
func NumToFloat(num any) (f float64, ok bool) {
	switch num := num.(type) {
	case int:
		f = float64(num)
	case int8:
		f = float64(num)
	case int16:
		f = float64(num)
	case int32:
		f = float64(num)
	case int64:
		f = float64(num)
	case uint:
		f = float64(num)
	case uint8:
		f = float64(num)
	case uint16:
		f = float64(num)
	case uint32:
		f = float64(num)
	case uint64:
		f = float64(num)
	case float32:
		f = float64(num)
	case float64:
		f = num
	case json.Number:
		v, err := num.Float64()
		if err != nil {
			return 0, false
		}
		f = v
	case string:
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
