package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// gobCodec implements Codec using the standard library's encoding/gob.
// It is the dependency-free choice for Go-native struct types.
type gobCodec[T any] struct{}

// Gob returns a Codec that (de)serializes T with encoding/gob. T's fields
// that gob cannot encode (channels, funcs, unexported-only structs) will
// fail at Encode time.
func Gob[T any]() Codec[T] {
	return gobCodec[T]{}
}

func (gobCodec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return v, fmt.Errorf("codec: gob decode: %w", err)
	}
	return v, nil
}
