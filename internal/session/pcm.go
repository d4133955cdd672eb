package session

import (
	"encoding/binary"
	"math"
)

// AudioChunk is a block of mono float samples in [-1, 1].
type AudioChunk struct {
	Samples []float32
}

// Duration is the chunk length in seconds at sampleRate.
func (c AudioChunk) Duration(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(sampleRate)
}

// encodeS16LE converts samples to signed 16-bit little-endian PCM, clipping
// anything outside [-1, 1]. NaN becomes silence.
func encodeS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return out
}
