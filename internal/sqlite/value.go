package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/mesh-intelligence/bindery/pkg/bind"
)

// toColumnValue converts a bound value into the form SQLite returns for a
// column of type t, so stored and assigned values compare directly.
func toColumnValue(t string, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case "integer":
		if d, ok := v.(decimal.Decimal); ok {
			return d.IntPart()
		}
		if n, err := cast.ToInt64E(v); err == nil {
			return n
		}
	case "float":
		if d, ok := v.(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	case "boolean":
		// Stored booleans are integers and come back from dumps as numbers.
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
			if cast.ToInt64(v) != 0 {
				return int64(1)
			}
			return int64(0)
		}
		b, known := bind.CoerceBool(v)
		if !known {
			return nil
		}
		if b {
			return int64(1)
		}
		return int64(0)
	case "date":
		if tm, ok := v.(time.Time); ok {
			return tm.Format(time.DateOnly)
		}
	case "datetime":
		if tm, ok := v.(time.Time); ok {
			return tm.UTC().Format(time.RFC3339Nano)
		}
	case "map", "any":
		if s, ok := v.(string); ok {
			return s
		}
		data, err := json.Marshal(v)
		if err == nil {
			return string(data)
		}
	}
	return textValue(v)
}

func textValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bind.Symbol:
		return string(x)
	case []byte:
		return string(x)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}

// fromColumnValue decodes a stored value for callers: booleans become bool
// and map or any columns are parsed back from JSON.
func fromColumnValue(t string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case "boolean":
		if v == nil {
			return nil
		}
		return cast.ToInt64(v) != 0
	case "map", "any":
		s, ok := v.(string)
		if !ok {
			return v
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return s
		}
		return out
	}
	return v
}
