package lazyslice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/lunfardo314/easystream"
)

// Array can be interpreted two ways:
// - as byte slice
// - as serialized append-only array of byte slices
// Serialization is optimized by analyzing maximum length of the data element
type Array struct {
	bytes          []byte
	parsed         [][]byte
	maxNumElements int
}

type lenPrefixType uint16

// prefix of the serialized array is two bytes interpreted as uint16
// The highest 2 bits are interpreted as 4 possible DataLenBytes (0, 1, 2 and 4 bytes)
// The rest is the number of elements in the array, max 2^14-1
const (
	DataLenBytes0  = uint16(0x00) << 14
	DataLenBytes8  = uint16(0x01) << 14
	DataLenBytes16 = uint16(0x02) << 14
	DataLenBytes32 = uint16(0x03) << 14

	DataLenMask  = uint16(0x03) << 14
	ArrayLenMask = ^DataLenMask
	MaxArrayLen  = int(ArrayLenMask) // 16383

	emptyArrayPrefix = lenPrefixType(0)
)

var ErrTooManyElements = errors.New("too many elements")

func (dl lenPrefixType) DataLenBytes() int {
	switch uint16(dl) & DataLenMask {
	case DataLenBytes0:
		return 0
	case DataLenBytes8:
		return 1
	case DataLenBytes16:
		return 2
	default:
		return 4
	}
}

func (dl lenPrefixType) NumElements() int {
	return int(uint16(dl) & ArrayLenMask)
}

func (dl lenPrefixType) Bytes() []byte {
	return easystream.EncodeInteger(uint16(dl))
}

func maxElements(maxNumElements []int) int {
	if len(maxNumElements) > 0 && maxNumElements[0] < MaxArrayLen {
		return maxNumElements[0]
	}
	return MaxArrayLen
}

// ParseArray parses serialized array. Unlike lazy access, malformed data is reported as error
func ParseArray(data []byte, maxNumElements ...int) (*Array, error) {
	mx := maxElements(maxNumElements)
	parsed, err := parseArray(data, mx)
	if err != nil {
		return nil, err
	}
	return &Array{
		bytes:          data,
		parsed:         parsed,
		maxNumElements: mx,
	}, nil
}

// ParseArrayExact parses array and requires exact number of elements
func ParseArrayExact(data []byte, numElements int) (*Array, error) {
	ret, err := ParseArray(data, numElements)
	if err != nil {
		return nil, err
	}
	if ret.NumElements() != numElements {
		return nil, fmt.Errorf("expected %d elements, got %d", numElements, ret.NumElements())
	}
	return ret, nil
}

func EmptyArray(maxNumElements ...int) *Array {
	return &Array{
		bytes:          emptyArrayPrefix.Bytes(),
		parsed:         make([][]byte, 0),
		maxNumElements: maxElements(maxNumElements),
	}
}

func MakeArray(elems ...[]byte) *Array {
	ret := EmptyArray()
	for _, e := range elems {
		ret.Push(e)
	}
	return ret
}

func (a *Array) IsEmpty() bool {
	return a.NumElements() == 0
}

func (a *Array) IsFull() bool {
	return a.NumElements() >= a.maxNumElements
}

func (a *Array) Push(data []byte) int {
	if len(a.parsed) >= a.maxNumElements {
		panic(ErrTooManyElements)
	}
	a.parsed = append(a.parsed, data)
	a.bytes = nil // invalidate bytes
	return len(a.parsed) - 1
}

func (a *Array) ForEach(fun func(i int, data []byte) bool) {
	for i := range a.parsed {
		if !fun(i, a.parsed[i]) {
			break
		}
	}
}

func (a *Array) At(idx int) []byte {
	return a.parsed[idx]
}

func (a *Array) NumElements() int {
	return len(a.parsed)
}

func (a *Array) Bytes() []byte {
	if a.bytes != nil {
		return a.bytes
	}
	var buf bytes.Buffer
	if err := encodeArray(a.parsed, &buf); err != nil {
		panic(err)
	}
	a.bytes = buf.Bytes()
	return a.bytes
}

func calcLenPrefix(data [][]byte) (lenPrefixType, error) {
	if len(data) > MaxArrayLen {
		return 0, ErrTooManyElements
	}
	if len(data) == 0 {
		return emptyArrayPrefix, nil
	}
	var dl uint16
	var t uint16
	for _, d := range data {
		t = DataLenBytes0
		switch {
		case uint64(len(d)) > math.MaxUint32:
			return 0, errors.New("data can't be longer than MaxUint32")
		case len(d) > math.MaxUint16:
			t = DataLenBytes32
		case len(d) > math.MaxUint8:
			t = DataLenBytes16
		case len(d) > 0:
			t = DataLenBytes8
		}
		if dl < t {
			dl = t
		}
	}
	return lenPrefixType(dl | uint16(len(data))), nil
}

func writeData(data [][]byte, numDataLenBytes int, w io.Writer) error {
	if numDataLenBytes == 0 {
		return nil // all empty
	}
	for _, d := range data {
		var err error
		switch numDataLenBytes {
		case 1:
			err = easystream.WriteInteger(w, byte(len(d)))
		case 2:
			err = easystream.WriteInteger(w, uint16(len(d)))
		case 4:
			err = easystream.WriteInteger(w, uint32(len(d)))
		}
		if err != nil {
			return err
		}
		if _, err = w.Write(d); err != nil {
			return err
		}
	}
	return nil
}

// decodeElement cuts element from the buffer without copying
func decodeElement(buf []byte, numDataLenBytes int) ([]byte, []byte, error) {
	if len(buf) < numDataLenBytes {
		return nil, nil, io.ErrUnexpectedEOF
	}
	var sz int
	switch numDataLenBytes {
	case 0:
		sz = 0
	case 1:
		sz = int(buf[0])
	case 2:
		sz = int(easystream.DecodeInteger[uint16](buf[:2]))
	case 4:
		sz = int(easystream.DecodeInteger[uint32](buf[:4]))
	default:
		return nil, nil, errors.New("wrong lenPrefixType value")
	}
	if len(buf) < numDataLenBytes+sz {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return buf[numDataLenBytes+sz:], buf[numDataLenBytes : numDataLenBytes+sz], nil
}

func decodeData(data []byte, numDataLenBytes int, n int) ([][]byte, error) {
	ret := make([][]byte, n)
	var err error
	for i := 0; i < n; i++ {
		data, ret[i], err = decodeElement(data, numDataLenBytes)
		if err != nil {
			return nil, err
		}
	}
	if len(data) != 0 {
		return nil, errors.New("serialization error: not all bytes were consumed")
	}
	return ret, nil
}

func encodeArray(data [][]byte, w io.Writer) error {
	prefix, err := calcLenPrefix(data)
	if err != nil {
		return err
	}
	if _, err = w.Write(prefix.Bytes()); err != nil {
		return err
	}
	return writeData(data, prefix.DataLenBytes(), w)
}

func parseArray(data []byte, maxNumElements int) ([][]byte, error) {
	if len(data) < 2 {
		return nil, io.ErrUnexpectedEOF
	}
	prefix := lenPrefixType(easystream.DecodeInteger[uint16](data[:2]))
	if prefix.NumElements() > maxNumElements {
		return nil, fmt.Errorf("parseArray: number of elements in the prefix %d is larger than maxNumElements %d",
			prefix.NumElements(), maxNumElements)
	}
	return decodeData(data[2:], prefix.DataLenBytes(), prefix.NumElements())
}
