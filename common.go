package easystream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// all integers on the wire are big-endian
var byteOrder = binary.BigEndian

type integerIntern interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64
}

func WriteInteger[T integerIntern](w io.Writer, val T) error {
	return binary.Write(w, byteOrder, val)
}

func EncodeInteger[T integerIntern](v T) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func DecodeInteger[T integerIntern](data []byte) T {
	var ret T
	if err := binary.Read(bytes.NewReader(data), byteOrder, &ret); err != nil {
		panic(err)
	}
	return ret
}

// Uint64From decodes exactly 8 bytes
func Uint64From(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(data))
	}
	return byteOrder.Uint64(data), nil
}

func Uint64Bytes(v uint64) []byte {
	var ret [8]byte
	byteOrder.PutUint64(ret[:], v)
	return ret[:]
}

// AddUint64 returns a+b and false on overflow
func AddUint64(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// SubUint64 returns a-b and false on underflow
func SubUint64(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// SaturatingSub returns a-b, or 0 if b > a
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// SumUint64 sums all values, false on overflow
func SumUint64(vals ...uint64) (uint64, bool) {
	var sum uint64
	var ok bool
	for _, v := range vals {
		if sum, ok = AddUint64(sum, v); !ok {
			return 0, false
		}
	}
	return sum, true
}
