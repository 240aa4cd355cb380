package ledger

import (
	"fmt"

	"github.com/lunfardo314/easystream/lazyslice"
)

// OutputData is the form in which the ledger keeps an unspent output:
// the native coin together with the application states attached to it
type OutputData struct {
	Coin  NativeCoin
	State AppState
}

func (o *OutputData) Bytes() []byte {
	return lazyslice.MakeArray(o.Coin.Bytes(), o.State.Bytes()).Bytes()
}

func OutputDataFromBytes(data []byte) (*OutputData, error) {
	arr, err := lazyslice.ParseArrayExact(data, 2)
	if err != nil {
		return nil, fmt.Errorf("OutputDataFromBytes: %v", err)
	}
	coin, err := NativeCoinFromBytes(arr.At(0))
	if err != nil {
		return nil, fmt.Errorf("OutputDataFromBytes: coin: %v", err)
	}
	state, err := AppStateFromBytes(arr.At(1))
	if err != nil {
		return nil, fmt.Errorf("OutputDataFromBytes: state: %v", err)
	}
	return &OutputData{Coin: coin, State: state}, nil
}

// ProducedOutputData pairs the output at idx with its declared native coin
func (tx *Transaction) ProducedOutputData(idx int) (*OutputData, error) {
	if idx < 0 || idx >= len(tx.Outputs) {
		return nil, fmt.Errorf("output index %d out of range", idx)
	}
	coin, ok := tx.CoinOut(idx)
	if !ok {
		return nil, fmt.Errorf("native coin of output %d not declared", idx)
	}
	return &OutputData{Coin: coin, State: tx.Outputs[idx].State}, nil
}
