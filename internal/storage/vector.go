package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeEmbedding packs v as little-endian float32. An empty vector encodes to nil (SQL NULL).
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// embeddingArg returns the SQL argument for v, a nil interface for a missing vector.
func embeddingArg(v []float32) any {
	if b := encodeEmbedding(v); b != nil {
		return b
	}
	return nil
}

// decodeEmbedding is the inverse of encodeEmbedding.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
