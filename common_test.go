package easystream

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func testOne[T integerIntern](t *testing.T, v T) {
	var buf bytes.Buffer
	err := WriteInteger(&buf, v)
	require.NoError(t, err)
	b := buf.Bytes()
	require.EqualValues(t, binary.Size(v), len(b))

	require.True(t, v == DecodeInteger[T](b))
	require.EqualValues(t, b, EncodeInteger(v))
}

func TestWriteRead(t *testing.T) {
	testOne(t, uint8(1))
	testOne(t, uint16(2))
	testOne(t, uint32(3))
	testOne(t, uint64(4))
	testOne(t, int8(-5))
	testOne(t, int16(-6))
	testOne(t, int32(-7))
	testOne(t, int64(-8))
}

func TestBigEndian(t *testing.T) {
	require.EqualValues(t, []byte{0, 0, 0, 0, 0, 0, 0x05, 0x39}, Uint64Bytes(1337))
	v, err := Uint64From([]byte{0, 0, 0, 0, 0, 0, 0x05, 0x39})
	require.NoError(t, err)
	require.EqualValues(t, 1337, v)

	_, err = Uint64From([]byte{1, 2, 3})
	require.Error(t, err)
	_, err = Uint64From(nil)
	require.Error(t, err)
}

func TestCheckedArithmetic(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		s, ok := AddUint64(math.MaxUint64-1, 1)
		require.True(t, ok)
		require.EqualValues(t, uint64(math.MaxUint64), s)
		_, ok = AddUint64(math.MaxUint64, 1)
		require.False(t, ok)
	})
	t.Run("sub", func(t *testing.T) {
		d, ok := SubUint64(10, 10)
		require.True(t, ok)
		require.EqualValues(t, 0, d)
		_, ok = SubUint64(10, 11)
		require.False(t, ok)
		require.EqualValues(t, 0, SaturatingSub(10, 11))
		require.EqualValues(t, 3, SaturatingSub(10, 7))
	})
	t.Run("sum", func(t *testing.T) {
		s, ok := SumUint64(1, 2, 3)
		require.True(t, ok)
		require.EqualValues(t, 6, s)
		_, ok = SumUint64(math.MaxUint64, 0, 1)
		require.False(t, ok)
		s, ok = SumUint64()
		require.True(t, ok)
		require.EqualValues(t, 0, s)
	})
}
