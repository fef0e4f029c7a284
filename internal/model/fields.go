package model

import "strconv"

// DefaultMeasurement is the measurement every Record is written under unless
// configured otherwise.
const DefaultMeasurement = "sensor_data"

// FlatField is one leaf of a flattened Reading.
type FlatField struct {
	Key   string
	Value any
}

// FlatFields is a single-level, insertion-ordered mapping from compound key
// to raw scalar. The zero value is ready to use.
type FlatFields struct {
	fields []FlatField
	index  map[string]int
}

// Set stores v under key. An existing key is overwritten in place.
func (f *FlatFields) Set(key string, v any) {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	if i, ok := f.index[key]; ok {
		f.fields[i].Value = v
		return
	}
	f.index[key] = len(f.fields)
	f.fields = append(f.fields, FlatField{Key: key, Value: v})
}

func (f FlatFields) Get(key string) (any, bool) {
	i, ok := f.index[key]
	if !ok {
		return nil, false
	}
	return f.fields[i].Value, true
}

func (f FlatFields) Len() int { return len(f.fields) }

// Fields returns a copy of the entries in insertion order.
func (f FlatFields) Fields() []FlatField {
	out := make([]FlatField, len(f.fields))
	copy(out, f.fields)
	return out
}

type Kind uint8

const (
	KindText Kind = iota
	KindDecimal
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	default:
		return "text"
	}
}

// FieldValue is a scalar tagged with the field type it is stored as.
type FieldValue struct {
	Kind   Kind
	Number float64
	Text   string
	Bool   bool
}

func Decimal(v float64) FieldValue { return FieldValue{Kind: KindDecimal, Number: v} }
func Text(s string) FieldValue     { return FieldValue{Kind: KindText, Text: s} }
func Boolean(b bool) FieldValue    { return FieldValue{Kind: KindBool, Bool: b} }

// Interface returns the value as the Go type the storage client expects.
func (v FieldValue) Interface() any {
	switch v.Kind {
	case KindDecimal:
		return v.Number
	case KindBool:
		return v.Bool
	default:
		return v.Text
	}
}

func (v FieldValue) String() string {
	switch v.Kind {
	case KindDecimal:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return strconv.Quote(v.Text)
	}
}

type TypedField struct {
	Key   string
	Value FieldValue
}

// Record is the unit written to the time-series store for one Reading. It
// carries no timestamp; the store assigns one at write time.
type Record struct {
	Measurement string
	Fields      []TypedField
}
