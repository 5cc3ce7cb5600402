package store

import (
	"encoding/binary"
	"math"
)

// Embeddings are stored as little-endian float32 BLOBs: 4 bytes per
// dimension.

func embeddingToBytes(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	data := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return data
}

func bytesToEmbedding(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	n := len(data) / 4
	result := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		result[i] = math.Float32frombits(bits)
	}
	return result
}
