package codec

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonCodec implements Codec using json-iterator/go, a drop-in,
// allocation-lighter replacement for encoding/json. Useful for elements
// that need to stay human-readable on disk, or that cross a language
// boundary (a consumer written outside this module) and so can't rely on
// gob's Go-specific wire format.
type jsonCodec[T any] struct{}

// JSON returns a Codec that (de)serializes T as JSON via json-iterator/go.
func JSON[T any]() Codec[T] {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Encode(v T) ([]byte, error) {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json encode: %w", err)
	}
	return b, nil
}

func (jsonCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := jsonAPI.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("codec: json decode: %w", err)
	}
	return v, nil
}
