package processing

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/lucaslui/hems/sensor-bridge/internal/model"
)

var decimalRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseDecimal reports whether s is a plain base-10 number literal and returns
// its value. Hex, inf/nan, underscores, surrounding spaces and literals that
// overflow float64 are rejected.
func ParseDecimal(s string) (float64, bool) {
	if !decimalRe.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Coerce tags a raw leaf value with the field type it is stored as. Numbers and
// numeric strings become decimals, booleans stay booleans and everything else
// is stored as text.
func Coerce(v any) model.FieldValue {
	switch x := v.(type) {
	case json.Number:
		if f, ok := ParseDecimal(x.String()); ok {
			return model.Decimal(f)
		}
		return model.Text(x.String())
	case float64:
		return model.Decimal(x)
	case float32:
		return model.Decimal(float64(x))
	case int:
		return model.Decimal(float64(x))
	case int64:
		return model.Decimal(float64(x))
	case int32:
		return model.Decimal(float64(x))
	case int16:
		return model.Decimal(float64(x))
	case int8:
		return model.Decimal(float64(x))
	case uint:
		return model.Decimal(float64(x))
	case uint64:
		return model.Decimal(float64(x))
	case uint32:
		return model.Decimal(float64(x))
	case uint16:
		return model.Decimal(float64(x))
	case uint8:
		return model.Decimal(float64(x))
	case bool:
		return model.Boolean(x)
	case string:
		if f, ok := ParseDecimal(x); ok {
			return model.Decimal(f)
		}
		return model.Text(x)
	case []any:
		if b, err := json.Marshal(x); err == nil {
			return model.Text(string(b))
		}
		return model.Text(fmt.Sprint(x))
	default:
		return model.Text(fmt.Sprint(x))
	}
}
