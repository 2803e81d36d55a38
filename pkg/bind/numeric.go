package bind

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

var (
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d+)?|\.\d+)([eE][+-]?\d+)?`)
)

// Numeric coercion is best effort: a leading numeric prefix is used and
// anything else degrades to zero. Blank strings are treated as missing.

func coerceInteger(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return x
	case string:
		return parseIntPrefix(x)
	case Symbol:
		return parseIntPrefix(string(x))
	case []byte:
		return parseIntPrefix(string(x))
	case decimal.Decimal:
		return x.IntPart()
	case float64:
		return truncateFloat(x)
	case float32:
		return truncateFloat(float64(x))
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return n
	}
	return int64(0)
}

func coerceFloat(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return x
	case string:
		return parseFloatPrefix(x)
	case Symbol:
		return parseFloatPrefix(string(x))
	case []byte:
		return parseFloatPrefix(string(x))
	case decimal.Decimal:
		return x.InexactFloat64()
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return f
	}
	return float64(0)
}

func coerceDecimal(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return x
	case string:
		return parseDecimalPrefix(x)
	case Symbol:
		return parseDecimalPrefix(string(x))
	case []byte:
		return parseDecimalPrefix(string(x))
	case float64:
		return decimal.NewFromFloat(x)
	case float32:
		return decimal.NewFromFloat32(x)
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return decimal.NewFromInt(n)
	}
	return decimal.Zero
}

func parseIntPrefix(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	m := intPrefix.FindString(s)
	if m == "" {
		return int64(0)
	}
	// ParseInt saturates at the int64 bounds on overflow.
	n, _ := strconv.ParseInt(m, 10, 64)
	return n
}

func parseFloatPrefix(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	m := floatPrefix.FindString(s)
	if m == "" {
		return float64(0)
	}
	f, _ := strconv.ParseFloat(m, 64)
	return f
}

func parseDecimalPrefix(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	m := floatPrefix.FindString(s)
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func truncateFloat(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}
