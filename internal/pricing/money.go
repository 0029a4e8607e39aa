package pricing

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount. decimal.Decimal is immutable so values can be
// shared between goroutines without copying.
type Money = decimal.Decimal

var zero = decimal.Zero

// SafeNumber coerces a loosely-typed value into Money. Anything that is not a finite
// number (nil, NaN, Inf, bools, objects, unparseable strings) becomes zero.
func SafeNumber(v any) Money {
	switch n := v.(type) {
	case nil:
		return zero
	case decimal.Decimal:
		return n
	case *decimal.Decimal:
		if n == nil {
			return zero
		}
		return *n
	case float64:
		return fromFloat(n)
	case float32:
		return fromFloat(float64(n))
	case int:
		return decimal.NewFromInt(int64(n))
	case int8:
		return decimal.NewFromInt(int64(n))
	case int16:
		return decimal.NewFromInt(int64(n))
	case int32:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case uint:
		return fromUint(uint64(n))
	case uint8:
		return decimal.NewFromInt(int64(n))
	case uint16:
		return decimal.NewFromInt(int64(n))
	case uint32:
		return decimal.NewFromInt(int64(n))
	case uint64:
		return fromUint(n)
	case json.Number:
		return fromString(n.String())
	case string:
		return fromString(n)
	default:
		return zero
	}
}

// SafeInt coerces a loosely-typed quantity into an int, truncating fractions.
func SafeInt(v any) int {
	d := SafeNumber(v)
	if d.IsZero() {
		return 0
	}
	return int(d.IntPart())
}

func fromFloat(f float64) Money {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return zero
	}
	return decimal.NewFromFloat(f)
}

func fromString(s string) Money {
	s = strings.TrimSpace(s)
	if s == "" {
		return zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return zero
	}
	return d
}

// nonNegative clamps negative values to zero.
func nonNegative(d Money) Money {
	if d.IsNegative() {
		return zero
	}
	return d
}

func qty(n int) Money {
	return decimal.NewFromInt(int64(n))
}

func fromUint(n uint64) Money {
	if n <= math.MaxInt64 {
		return decimal.NewFromInt(int64(n))
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}
