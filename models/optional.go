package models

import (
	"bytes"
	"encoding/json"
)

// Optional is one entry of a field mask. Set records that the field was
// present in the request; Null records an explicit JSON null. A zero
// Optional means "leave unchanged", which is distinct from Some(false).
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Null returns a present Optional holding an explicit null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Present reports whether the field carries a non-null value.
func (o Optional[T]) Present() bool {
	return o.Set && !o.Null
}

// IsZero lets `omitzero` drop absent fields when encoding.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
