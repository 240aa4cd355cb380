package stream

import (
	"github.com/lunfardo314/easystream/ledger"
)

// Project extracts stream states of the app from inputs and outputs of the transaction.
// Positions without the app's state or with undecodable state are skipped.
// Indices are the original positions in the transaction
func Project(app ledger.AppID, tx *ledger.Transaction) (ins, outs []*IndexedState) {
	ins = make([]*IndexedState, 0)
	for i := range tx.Inputs {
		if s, ok := StateFromAppState(app, tx.Inputs[i].State); ok {
			ins = append(ins, &IndexedState{Index: i, State: s})
		}
	}
	outs = make([]*IndexedState, 0)
	for i := range tx.Outputs {
		if s, ok := StateFromAppState(app, tx.Outputs[i].State); ok {
			outs = append(outs, &IndexedState{Index: i, State: s})
		}
	}
	return
}

// StateFromAppState decodes stream state of the app, if any
func StateFromAppState(app ledger.AppID, appState ledger.AppState) (*State, bool) {
	data, ok := appState.Get(app)
	if !ok {
		return nil, false
	}
	s, err := StateFromBytes(data)
	if err != nil {
		return nil, false
	}
	return s, true
}
