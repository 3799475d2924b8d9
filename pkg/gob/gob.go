package gob

import (
	"bytes"
	"encoding/gob"
)

// Encode - serializes a value into a gob byte slice.
func Encode(data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode - deserializes a gob byte slice into target, which must be a
// pointer.
func Decode(data []byte, target any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(target)
}
