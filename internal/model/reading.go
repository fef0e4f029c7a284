package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// DefaultMaxDepth bounds object/array nesting accepted by DecodeReading.
const DefaultMaxDepth = 64

// Reading is one decoded sensor message. Keys keep the order they had in the
// payload. Values are json.Number, string, bool, nil, []any or *Reading.
// A Reading is never modified after DecodeReading returns it.
type Reading struct {
	keys   []string
	values map[string]any
}

func newReading() *Reading {
	return &Reading{values: make(map[string]any)}
}

// a repeated key keeps its first position and its last value
func (r *Reading) set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

func (r *Reading) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns a copy of the keys in payload order.
func (r *Reading) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Reading) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Range calls fn for every entry in payload order until fn returns false.
func (r *Reading) Range(fn func(key string, v any) bool) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

func (r *Reading) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type decodeFrame struct {
	obj    *Reading
	arr    []any
	isArr  bool
	key    string
	hasKey bool
}

func (f *decodeFrame) value() any {
	if f.isArr {
		return f.arr
	}
	return f.obj
}

func (f *decodeFrame) attach(v any) {
	if f.isArr {
		f.arr = append(f.arr, v)
		return
	}
	f.obj.set(f.key, v)
	f.hasKey = false
}

// DecodeReading parses a UTF-8 JSON object into a Reading. Payloads that are
// not UTF-8, not JSON or nested deeper than maxDepth fail with
// ErrInvalidMessage; valid JSON whose top level is not an object fails with
// ErrInvalidShape. maxDepth <= 0 means DefaultMaxDepth.
func DecodeReading(payload []byte, maxDepth int) (*Reading, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrInvalidMessage)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidMessage)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: top level is %s, want object", ErrInvalidShape, jsonKind(tok))
	}

	stack := []*decodeFrame{{obj: newReading()}}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		top := stack[len(stack)-1]

		if !top.isArr && !top.hasKey {
			if key, ok := tok.(string); ok {
				top.key, top.hasKey = key, true
				continue
			}
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				if len(stack) >= maxDepth {
					return nil, fmt.Errorf("%w: nesting deeper than %d", ErrInvalidMessage, maxDepth)
				}
				f := &decodeFrame{isArr: t == '['}
				if f.isArr {
					f.arr = []any{}
				} else {
					f.obj = newReading()
				}
				stack = append(stack, f)
			case '}', ']':
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return top.obj, nil
				}
				stack[len(stack)-1].attach(top.value())
			}
		default:
			top.attach(t)
		}
	}
}

func jsonKind(tok any) string {
	switch t := tok.(type) {
	case json.Delim:
		if t == '[' {
			return "array"
		}
		return string(t)
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", tok)
	}
}
