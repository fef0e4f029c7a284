package processing

import (
	"fmt"

	"github.com/lucaslui/hems/sensor-bridge/internal/model"
)

// KeySeparator joins the ancestor path of a nested value.
const KeySeparator = "_"

type flattenFrame struct {
	prefix string
	keys   []string
	next   int
	r      *model.Reading
}

// Flatten turns a nested Reading into one level: {"a":{"b":1}} -> {"a_b":1}.
// Non-object values, arrays included, are leaves. When two paths produce the
// same key the one visited last wins. Traversal uses an explicit stack so
// nesting depth does not grow the goroutine stack.
func Flatten(r *model.Reading) (model.FlatFields, error) {
	var out model.FlatFields
	if r == nil {
		return out, fmt.Errorf("%w: nil reading", model.ErrInvalidShape)
	}

	stack := []*flattenFrame{{keys: r.Keys(), r: r}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.keys) {
			stack = stack[:len(stack)-1]
			continue
		}
		k := top.keys[top.next]
		top.next++

		key := k
		if top.prefix != "" {
			key = top.prefix + KeySeparator + k
		}
		v, _ := top.r.Get(k)
		if nested, ok := v.(*model.Reading); ok {
			stack = append(stack, &flattenFrame{prefix: key, keys: nested.Keys(), r: nested})
			continue
		}
		out.Set(key, v)
	}
	return out, nil
}
