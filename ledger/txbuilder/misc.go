package txbuilder

import (
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/easystream/ledger"
	"github.com/lunfardo314/easystream/ledger/stream"
)

func appStateToString(app ledger.AppID, st ledger.AppState, prefix string) string {
	ret := ""
	for a, data := range st {
		if a == app {
			if s, ok := stream.StateFromAppState(app, st); ok {
				ret += fmt.Sprintf("%s%s: %s\n", prefix, a.String(), s.String())
				continue
			}
		}
		ret += fmt.Sprintf("%s%s: %s\n", prefix, a.String(), easyfl.Fmt(data))
	}
	return ret
}

func coinToString(coins []ledger.NativeCoin, declared bool, idx int) string {
	if !declared {
		return "not declared"
	}
	return coins[idx].String()
}

// TransactionToString human-readable transaction. States of the app are decoded as streams
func TransactionToString(tx *ledger.Transaction, app ledger.AppID) string {
	txid := tx.ID()
	ret := fmt.Sprintf("TransactionID: %s\n", txid.String())

	ret += "inputs: \n"
	for i := range tx.Inputs {
		ret += fmt.Sprintf("  #%d: %s\n", i, tx.Inputs[i].ID.String())
		ret += fmt.Sprintf("     coin: %s\n", coinToString(tx.CoinIns, tx.HasCoinIns(), i))
		ret += appStateToString(app, tx.Inputs[i].State, "     ")
	}
	ret += "outputs: \n"
	for i := range tx.Outputs {
		ret += fmt.Sprintf("  #%d:\n", i)
		ret += fmt.Sprintf("     coin: %s\n", coinToString(tx.CoinOuts, tx.HasCoinOuts(), i))
		ret += appStateToString(app, tx.Outputs[i].State, "     ")
	}
	return ret
}
