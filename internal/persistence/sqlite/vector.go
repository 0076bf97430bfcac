// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector serialises a float32 embedding as a little-endian byte
// sequence, 4 bytes per dimension, per spec.md's persistent store layout.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector parses a little-endian float32 byte sequence back into a
// vector, validating that the byte length equals 4*dimensions.
func DecodeVector(buf []byte, dimensions int) ([]float32, error) {
	if len(buf) != 4*dimensions {
		return nil, fmt.Errorf("sqlite: vector byte length %d does not match 4*dimensions (%d)", len(buf), 4*dimensions)
	}
	out := make([]float32, dimensions)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
