package entity

import (
	"bytes"
	"encoding/json"
)

// Field is one entry of a partial update. The zero value is absent.
// A present field either carries a value or an explicit null.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Value returns a present, non-null field
func Value[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null returns a present field holding an explicit null
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// FromPtr returns a present field, null when p is nil
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Null[T]()
	}
	return Value(*p)
}

// Ptr returns the value as a pointer, nil for null
func (f Field[T]) Ptr() *T {
	if f.Null {
		return nil
	}
	v := f.Value
	return &v
}

// UnmarshalJSON only runs for keys present in the document, which is what
// distinguishes an absent key from an explicit null.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// applyTo writes a present field into a nullable destination
func (f Field[T]) applyTo(dst **T) {
	if !f.Set {
		return
	}
	*dst = f.Ptr()
}
