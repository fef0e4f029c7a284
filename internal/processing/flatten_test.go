package processing

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lucaslui/hems/sensor-bridge/internal/model"
)

func mustReading(t *testing.T, payload string) *model.Reading {
	t.Helper()
	r, err := model.DecodeReading([]byte(payload), 0)
	if err != nil {
		t.Fatalf("decode %s: %v", payload, err)
	}
	return r
}

func flatKeys(f model.FlatFields) string {
	keys := make([]string, 0, f.Len())
	for _, fl := range f.Fields() {
		keys = append(keys, fl.Key)
	}
	return strings.Join(keys, ",")
}

func TestFlattenWithoutNestingIsIdentity(t *testing.T) {
	r := mustReading(t, `{"temp":21.5,"status":"ok","on":true}`)

	flat, err := Flatten(r)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if got := flatKeys(flat); got != "temp,status,on" {
		t.Fatalf("expected original keys, got %q", got)
	}
	for _, k := range r.Keys() {
		want, _ := r.Get(k)
		got, _ := flat.Get(k)
		if got != want {
			t.Fatalf("key %s: expected %v, got %v", k, want, got)
		}
	}
}

func TestFlattenNested(t *testing.T) {
	flat, err := Flatten(mustReading(t, `{"a":{"b":1,"c":"x"}}`))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if got := flatKeys(flat); got != "a_b,a_c" {
		t.Fatalf("unexpected keys %q", got)
	}
	if v, _ := flat.Get("a_b"); v != json.Number("1") {
		t.Fatalf("expected a_b=1, got %#v", v)
	}
	if v, _ := flat.Get("a_c"); v != "x" {
		t.Fatalf("expected a_c=x, got %#v", v)
	}
}

func TestFlattenCollisionLastWriteWins(t *testing.T) {
	flat, err := Flatten(mustReading(t, `{"a":{"b":1},"a_b":2}`))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if flat.Len() != 1 {
		t.Fatalf("expected exactly one key, got %q", flatKeys(flat))
	}
	if v, _ := flat.Get("a_b"); v != json.Number("2") {
		t.Fatalf("expected last visited value 2, got %#v", v)
	}

	flat, err = Flatten(mustReading(t, `{"a_b":2,"a":{"b":1}}`))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if v, _ := flat.Get("a_b"); v != json.Number("1") {
		t.Fatalf("expected last visited value 1, got %#v", v)
	}
}

func TestFlattenEmptyAndArrays(t *testing.T) {
	flat, err := Flatten(mustReading(t, `{}`))
	if err != nil || flat.Len() != 0 {
		t.Fatalf("expected empty fields, got %d (%v)", flat.Len(), err)
	}

	flat, err = Flatten(mustReading(t, `{"x":{},"list":[1,{"a":2}]}`))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if got := flatKeys(flat); got != "list" {
		t.Fatalf("expected only the array leaf, got %q", got)
	}
}

func TestFlattenDeepNesting(t *testing.T) {
	const depth = 5000
	payload := strings.Repeat(`{"k":`, depth) + "1" + strings.Repeat("}", depth)
	r, err := model.DecodeReading([]byte(payload), depth+1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	flat, err := Flatten(r)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if flat.Len() != 1 {
		t.Fatalf("expected one leaf, got %d", flat.Len())
	}
	key := flat.Fields()[0].Key
	if want := strings.Repeat("k_", depth-1) + "k"; key != want {
		t.Fatalf("unexpected compound key of length %d", len(key))
	}
}

func TestFlattenNilReading(t *testing.T) {
	if _, err := Flatten(nil); !errors.Is(err, model.ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
}
