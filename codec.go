package fins

import (
	"encoding/binary"
	"fmt"
	"math"
)

// wordsToBytes serializes words in request order, each big-endian.
func wordsToBytes(words []uint16) []byte {
	b := make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(b[i*2:i*2+2], w)
	}
	return b
}

// bytesToWords deserializes a response payload into unsigned 16-bit words.
// Each word is independent; no sign extension is applied.
func bytesToWords(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, ProtocolError{Reason: fmt.Sprintf("payload length %d is not word-aligned", len(b))}
	}
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[i*2 : i*2+2])
	}
	return words, nil
}

// EncodeReal converts an IEEE-754 single-precision float into OMRON's
// word-swapped big-endian REAL layout: the low-order 16 bits of the float
// occupy the first word, the high-order 16 bits the second. Byte order inside
// each word stays big-endian.
func EncodeReal(v float32) [2]uint16 {
	bits := math.Float32bits(v)
	return [2]uint16{uint16(bits & 0xFFFF), uint16(bits >> 16)}
}

// DecodeReal is the exact inverse of EncodeReal: words[0] contributes the low
// half of the 32-bit pattern and words[1] the high half.
func DecodeReal(words []uint16) (float32, error) {
	if len(words) != 2 {
		return 0, ProtocolError{Reason: fmt.Sprintf("REAL value needs exactly 2 words, got %d", len(words))}
	}
	bits := uint32(words[1])<<16 | uint32(words[0])
	return math.Float32frombits(bits), nil
}

// BCD helpers for clock and CPU-unit-data fields.

// decodeBCD converts packed binary-coded-decimal bytes to an integer.
// Digits above 9 are invalid.
func decodeBCD(bcd []byte) (uint64, error) {
	var x uint64
	for _, b := range bcd {
		hi, lo := uint64(b>>4), uint64(b&0x0F)
		if hi > 9 || lo > 9 {
			return 0, ProtocolError{Reason: fmt.Sprintf("invalid BCD byte 0x%02X", b)}
		}
		x = x*100 + hi*10 + lo
	}
	return x, nil
}

// encodeBCDByte packs a two-digit value into one BCD byte.
func encodeBCDByte(v int) byte {
	v %= 100
	return byte((v/10)<<4 | (v % 10))
}
