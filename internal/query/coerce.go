package query

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/spf13/cast"
)

// Coerce converts a decoded JSON operand into the Go value bound for the
// field's logical type. The declared type wins over the JSON shape: "18" is
// accepted for an int field and 18 is accepted for a string field.
func Coerce(fd FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, coerceError(fd, raw, "value must not be null")
	}
	switch fd.Type {
	case TypeString, TypeText:
		if _, ok := raw.(bool); ok {
			return nil, coerceError(fd, raw, "expects a string")
		}
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, coerceError(fd, raw, "expects a string")
		}
		if fd.Length > 0 && len([]rune(s)) > fd.Length {
			return nil, coerceError(fd, raw, "value exceeds declared length")
		}
		return s, nil
	case TypeInt, TypeLong:
		n, err := toInt64(raw)
		if err != nil {
			return nil, coerceError(fd, raw, "expects an integer")
		}
		if fd.Type == TypeInt && (n > math.MaxInt32 || n < math.MinInt32) {
			return nil, coerceError(fd, raw, "integer out of range")
		}
		return n, nil
	case TypeDecimal:
		d, err := toDecimal(raw)
		if err != nil {
			return nil, coerceError(fd, raw, "expects a decimal number")
		}
		return d, nil
	case TypeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := cast.ToBoolE(strings.ToLower(v))
			if err != nil {
				return nil, coerceError(fd, raw, "expects a boolean")
			}
			return b, nil
		}
		return nil, coerceError(fd, raw, "expects a boolean")
	case TypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, coerceError(fd, raw, "expects a date (YYYY-MM-DD)")
		}
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, coerceError(fd, raw, "expects a date (YYYY-MM-DD)")
		}
		return t, nil
	case TypeDateTime:
		if _, ok := raw.(string); !ok {
			return nil, coerceError(fd, raw, "expects a timestamp")
		}
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return nil, coerceError(fd, raw, "expects a timestamp")
		}
		return t, nil
	case TypeUUID:
		switch v := raw.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			id, err := uuid.FromString(strings.TrimSpace(v))
			if err != nil {
				return nil, coerceError(fd, raw, "expects a UUID")
			}
			return id, nil
		}
		return nil, coerceError(fd, raw, "expects a UUID")
	}
	return nil, coerceError(fd, raw, "field type does not accept comparison values")
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return integral(f)
	case float64:
		return integral(v)
	case float32:
		return integral(float64(v))
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case bool:
		return 0, strconv.ErrSyntax
	}
	return cast.ToInt64E(raw)
}

func integral(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, strconv.ErrRange
	}
	return int64(f), nil
}

// toDecimal returns the operand as an exact decimal string.
func toDecimal(raw any) (string, error) {
	var s string
	switch v := raw.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return "", strconv.ErrSyntax
	default:
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return "", err
		}
		s = strconv.FormatInt(n, 10)
	}
	if _, ok := new(big.Rat).SetString(s); !ok {
		return "", strconv.ErrSyntax
	}
	return s, nil
}

// compareValues orders two coerced operands of the same logical type.
func compareValues(t LogicalType, a, b any) int {
	switch t {
	case TypeInt, TypeLong:
		x, y := a.(int64), b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case TypeDecimal:
		x, _ := new(big.Rat).SetString(a.(string))
		y, _ := new(big.Rat).SetString(b.(string))
		return x.Cmp(y)
	case TypeDate, TypeDateTime:
		return a.(time.Time).Compare(b.(time.Time))
	default:
		return strings.Compare(cast.ToString(a), cast.ToString(b))
	}
}

func coerceError(fd FieldDescriptor, raw any, msg string) *QueryError {
	return newError(ErrInvalidOperandShape, msg).withField(fd.Name).withValue(raw)
}
