package stream

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/easystream"
	"github.com/lunfardo314/easystream/lazyslice"
)

/*
 State is the application state of the linear vesting stream attached to the escrow output.
 Serialized form is an array of 5 elements:
 - total amount, 8 bytes
 - claimed amount, 8 bytes
 - start time, 8 bytes, Unix seconds
 - end time, 8 bytes, Unix seconds
 - beneficiary: native coin destination of the payouts

 Total amount, schedule and beneficiary are fixed for the life of the stream,
 claimed amount only grows up to the total amount
*/

const (
	stateIndexTotal = iota
	stateIndexClaimed
	stateIndexStart
	stateIndexEnd
	stateIndexBeneficiary
	stateNumElements
)

type (
	State struct {
		TotalAmount   uint64
		ClaimedAmount uint64
		StartTime     uint64
		EndTime       uint64
		Beneficiary   []byte
	}

	// IndexedState is the state together with the position of its input or output in the transaction
	IndexedState struct {
		Index int
		State *State
	}
)

func NewState(total, start, end uint64, beneficiary []byte) *State {
	return &State{
		TotalAmount: total,
		StartTime:   start,
		EndTime:     end,
		Beneficiary: beneficiary,
	}
}

// VestedAt returns amount unlocked by the linear schedule at the time 'now'.
// The product total*elapsed is computed in 128 bits and never wraps
func (s *State) VestedAt(now uint64) uint64 {
	if now <= s.StartTime {
		return 0
	}
	if now >= s.EndTime {
		return s.TotalAmount
	}
	// here StartTime < now < EndTime
	elapsed := now - s.StartTime
	duration := s.EndTime - s.StartTime
	hi, lo := bits.Mul64(s.TotalAmount, elapsed)
	// elapsed < duration, so the quotient is < TotalAmount and hi < duration
	ret, _ := bits.Div64(hi, lo, duration)
	return ret
}

// Remaining is the escrow balance implied by the state. Returns false if claimed exceeds total
func (s *State) Remaining() (uint64, bool) {
	return easystream.SubUint64(s.TotalAmount, s.ClaimedAmount)
}

// WithClaimed returns successor state with the new claimed amount
func (s *State) WithClaimed(claimed uint64) *State {
	ret := s.Clone()
	ret.ClaimedAmount = claimed
	return ret
}

func (s *State) Clone() *State {
	ret := *s
	ret.Beneficiary = append([]byte(nil), s.Beneficiary...)
	return &ret
}

func (s *State) sameSchedule(s1 *State) bool {
	return s.TotalAmount == s1.TotalAmount && s.StartTime == s1.StartTime && s.EndTime == s1.EndTime
}

func (s *State) sameBeneficiary(s1 *State) bool {
	return bytes.Equal(s.Beneficiary, s1.Beneficiary)
}

func (s *State) Bytes() []byte {
	elems := make([][]byte, stateNumElements)
	elems[stateIndexTotal] = easystream.Uint64Bytes(s.TotalAmount)
	elems[stateIndexClaimed] = easystream.Uint64Bytes(s.ClaimedAmount)
	elems[stateIndexStart] = easystream.Uint64Bytes(s.StartTime)
	elems[stateIndexEnd] = easystream.Uint64Bytes(s.EndTime)
	elems[stateIndexBeneficiary] = s.Beneficiary
	return lazyslice.MakeArray(elems...).Bytes()
}

func (s *State) String() string {
	return fmt.Sprintf("stream(total: %d, claimed: %d, start: %d, end: %d, beneficiary: %s)",
		s.TotalAmount, s.ClaimedAmount, s.StartTime, s.EndTime, easyfl.Fmt(s.Beneficiary))
}

// StateFromBytes decodes stream state. Any other shape of data is an error
func StateFromBytes(data []byte) (*State, error) {
	arr, err := lazyslice.ParseArrayExact(data, stateNumElements)
	if err != nil {
		return nil, fmt.Errorf("not a stream state: %v", err)
	}
	var ints [stateIndexBeneficiary]uint64
	for i := range ints {
		if ints[i], err = easystream.Uint64From(arr.At(i)); err != nil {
			return nil, fmt.Errorf("not a stream state: element #%d: %v", i, err)
		}
	}
	return &State{
		TotalAmount:   ints[stateIndexTotal],
		ClaimedAmount: ints[stateIndexClaimed],
		StartTime:     ints[stateIndexStart],
		EndTime:       ints[stateIndexEnd],
		Beneficiary:   arr.At(stateIndexBeneficiary),
	}, nil
}
