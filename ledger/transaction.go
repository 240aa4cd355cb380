package ledger

import (
	"fmt"

	"github.com/lunfardo314/easystream"
	"github.com/lunfardo314/easystream/lazyslice"
	"golang.org/x/crypto/blake2b"
)

const (
	TxInputs = byte(iota)
	TxOutputs
	TxCoinIns
	TxCoinOuts
	TxTreeIndexMax
)

type (
	// NativeCoin is the ledger-native value attached to an input or output
	NativeCoin struct {
		Amount uint64
		Dest   []byte
	}

	Input struct {
		ID    OutputID
		State AppState
	}

	Output struct {
		State AppState
	}

	// Transaction is a read-only view of the transaction as seen by application contracts.
	// CoinIns and CoinOuts are aligned positionally with Inputs and Outputs.
	// nil coin list means the native amounts were not declared
	Transaction struct {
		Inputs   []Input
		Outputs  []Output
		CoinIns  []NativeCoin
		CoinOuts []NativeCoin
	}
)

func NewNativeCoin(amount uint64, dest []byte) NativeCoin {
	return NativeCoin{Amount: amount, Dest: dest}
}

func (c NativeCoin) Bytes() []byte {
	return lazyslice.MakeArray(easystream.Uint64Bytes(c.Amount), c.Dest).Bytes()
}

func (c NativeCoin) String() string {
	return fmt.Sprintf("%d -> %x", c.Amount, c.Dest)
}

func NativeCoinFromBytes(data []byte) (NativeCoin, error) {
	arr, err := lazyslice.ParseArrayExact(data, 2)
	if err != nil {
		return NativeCoin{}, err
	}
	amount, err := easystream.Uint64From(arr.At(0))
	if err != nil {
		return NativeCoin{}, err
	}
	return NativeCoin{Amount: amount, Dest: arr.At(1)}, nil
}

// CoinIn returns native coin of the input at index, if declared
func (tx *Transaction) CoinIn(idx int) (NativeCoin, bool) {
	if idx < 0 || idx >= len(tx.CoinIns) {
		return NativeCoin{}, false
	}
	return tx.CoinIns[idx], true
}

// CoinOut returns native coin of the output at index, if declared
func (tx *Transaction) CoinOut(idx int) (NativeCoin, bool) {
	if idx < 0 || idx >= len(tx.CoinOuts) {
		return NativeCoin{}, false
	}
	return tx.CoinOuts[idx], true
}

// HasCoinIns returns true if native amounts are declared for each input
func (tx *Transaction) HasCoinIns() bool {
	return tx.CoinIns != nil && len(tx.CoinIns) == len(tx.Inputs)
}

// HasCoinOuts returns true if native amounts are declared for each output
func (tx *Transaction) HasCoinOuts() bool {
	return tx.CoinOuts != nil && len(tx.CoinOuts) == len(tx.Outputs)
}

func coinsBytes(coins []NativeCoin) []byte {
	if coins == nil {
		return nil
	}
	arr := lazyslice.EmptyArray(MaxNumOutputs)
	for _, c := range coins {
		arr.Push(c.Bytes())
	}
	return arr.Bytes()
}

func coinsFromBytes(data []byte) ([]NativeCoin, error) {
	if len(data) == 0 {
		return nil, nil
	}
	arr, err := lazyslice.ParseArray(data, MaxNumOutputs)
	if err != nil {
		return nil, err
	}
	ret := make([]NativeCoin, arr.NumElements())
	arr.ForEach(func(i int, d []byte) bool {
		ret[i], err = NativeCoinFromBytes(d)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (tx *Transaction) ToArray() *lazyslice.Array {
	if len(tx.Inputs) > MaxNumInputs || len(tx.Outputs) > MaxNumOutputs {
		panic(lazyslice.ErrTooManyElements)
	}
	inputs := lazyslice.EmptyArray(MaxNumInputs)
	for i := range tx.Inputs {
		inputs.Push(lazyslice.MakeArray(tx.Inputs[i].ID[:], tx.Inputs[i].State.Bytes()).Bytes())
	}
	outputs := lazyslice.EmptyArray(MaxNumOutputs)
	for i := range tx.Outputs {
		outputs.Push(tx.Outputs[i].State.Bytes())
	}
	elems := make([][]byte, TxTreeIndexMax)
	elems[TxInputs] = inputs.Bytes()
	elems[TxOutputs] = outputs.Bytes()
	elems[TxCoinIns] = coinsBytes(tx.CoinIns)
	elems[TxCoinOuts] = coinsBytes(tx.CoinOuts)
	return lazyslice.MakeArray(elems...)
}

// Bytes is the canonical serialized form of the transaction
func (tx *Transaction) Bytes() []byte {
	return tx.ToArray().Bytes()
}

func (tx *Transaction) ID() TransactionID {
	return blake2b.Sum256(tx.Bytes())
}

func (tx *Transaction) OutputID(idx byte) OutputID {
	return NewOutputID(tx.ID(), idx)
}

func TransactionFromBytes(data []byte) (*Transaction, error) {
	txArr, err := lazyslice.ParseArrayExact(data, int(TxTreeIndexMax))
	if err != nil {
		return nil, fmt.Errorf("TransactionFromBytes: %v", err)
	}
	ret := &Transaction{}

	inputs, err := lazyslice.ParseArray(txArr.At(int(TxInputs)), MaxNumInputs)
	if err != nil {
		return nil, fmt.Errorf("TransactionFromBytes: inputs: %v", err)
	}
	ret.Inputs = make([]Input, inputs.NumElements())
	inputs.ForEach(func(i int, d []byte) bool {
		var pair *lazyslice.Array
		if pair, err = lazyslice.ParseArrayExact(d, 2); err != nil {
			return false
		}
		if ret.Inputs[i].ID, err = OutputIDFromBytes(pair.At(0)); err != nil {
			return false
		}
		ret.Inputs[i].State, err = AppStateFromBytes(pair.At(1))
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("TransactionFromBytes: input: %v", err)
	}

	outputs, err := lazyslice.ParseArray(txArr.At(int(TxOutputs)), MaxNumOutputs)
	if err != nil {
		return nil, fmt.Errorf("TransactionFromBytes: outputs: %v", err)
	}
	ret.Outputs = make([]Output, outputs.NumElements())
	outputs.ForEach(func(i int, d []byte) bool {
		ret.Outputs[i].State, err = AppStateFromBytes(d)
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("TransactionFromBytes: output: %v", err)
	}

	if ret.CoinIns, err = coinsFromBytes(txArr.At(int(TxCoinIns))); err != nil {
		return nil, fmt.Errorf("TransactionFromBytes: native inputs: %v", err)
	}
	if ret.CoinOuts, err = coinsFromBytes(txArr.At(int(TxCoinOuts))); err != nil {
		return nil, fmt.Errorf("TransactionFromBytes: native outputs: %v", err)
	}
	return ret, nil
}
