package txbuilder

import (
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/easystream"
	"github.com/lunfardo314/easystream/ledger"
	"github.com/lunfardo314/easystream/ledger/stream"
)

type TransactionBuilder struct {
	ConsumedOutputs []*ledger.OutputData
	Transaction     *ledger.Transaction
}

func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{
		ConsumedOutputs: make([]*ledger.OutputData, 0),
		Transaction: &ledger.Transaction{
			Inputs:   make([]ledger.Input, 0),
			Outputs:  make([]ledger.Output, 0),
			CoinIns:  make([]ledger.NativeCoin, 0),
			CoinOuts: make([]ledger.NativeCoin, 0),
		},
	}
}

func (ctx *TransactionBuilder) NumInputs() int {
	ret := len(ctx.ConsumedOutputs)
	easyfl.Assert(ret == len(ctx.Transaction.Inputs) && ret == len(ctx.Transaction.CoinIns), "inconsistent inputs")
	return ret
}

func (ctx *TransactionBuilder) NumOutputs() int {
	ret := len(ctx.Transaction.Outputs)
	easyfl.Assert(ret == len(ctx.Transaction.CoinOuts), "inconsistent outputs")
	return ret
}

// ConsumeOutput adds input together with its native coin
func (ctx *TransactionBuilder) ConsumeOutput(out *ledger.OutputData, oid ledger.OutputID) (byte, error) {
	if ctx.NumInputs() >= ledger.MaxNumInputs {
		return 0, fmt.Errorf("too many consumed outputs")
	}
	ctx.ConsumedOutputs = append(ctx.ConsumedOutputs, out)
	ctx.Transaction.Inputs = append(ctx.Transaction.Inputs, ledger.Input{ID: oid, State: out.State})
	ctx.Transaction.CoinIns = append(ctx.Transaction.CoinIns, out.Coin)
	return byte(len(ctx.ConsumedOutputs) - 1), nil
}

// ProduceOutput adds output together with its native coin
func (ctx *TransactionBuilder) ProduceOutput(coin ledger.NativeCoin, state ledger.AppState) (byte, error) {
	if ctx.NumOutputs() >= ledger.MaxNumOutputs {
		return 0, fmt.Errorf("too many produced outputs")
	}
	ctx.Transaction.Outputs = append(ctx.Transaction.Outputs, ledger.Output{State: state})
	ctx.Transaction.CoinOuts = append(ctx.Transaction.CoinOuts, coin)
	return byte(len(ctx.Transaction.Outputs) - 1), nil
}

func sumCoins(coins []ledger.NativeCoin) (uint64, error) {
	amounts := make([]uint64, len(coins))
	for i := range coins {
		amounts[i] = coins[i].Amount
	}
	ret, ok := easystream.SumUint64(amounts...)
	if !ok {
		return 0, fmt.Errorf("native amount overflow")
	}
	return ret, nil
}

func (ctx *TransactionBuilder) InputAmount() (uint64, error) {
	return sumCoins(ctx.Transaction.CoinIns)
}

func (ctx *TransactionBuilder) OutputAmount() (uint64, error) {
	return sumCoins(ctx.Transaction.CoinOuts)
}

// EscrowDestination is where the escrowed native coins of streams of the app are held
func EscrowDestination(app ledger.AppID) []byte {
	return app.Bytes()
}

// CreateStreamParams is funding of the new stream from the outputs of the funder
type CreateStreamParams struct {
	App         ledger.AppID
	Outputs     []*ledger.OutputDataWithID
	Total       uint64
	Start       uint64
	End         uint64
	Beneficiary []byte
	// ChangeDest receives the remainder of consumed outputs. Must not be empty if there is a remainder
	ChangeDest []byte
}

func NewCreateStreamParams(app ledger.AppID, total, start, end uint64, beneficiary []byte) *CreateStreamParams {
	return &CreateStreamParams{
		App:         app,
		Outputs:     make([]*ledger.OutputDataWithID, 0),
		Total:       total,
		Start:       start,
		End:         end,
		Beneficiary: beneficiary,
	}
}

func (p *CreateStreamParams) WithOutputs(outs []*ledger.OutputDataWithID) *CreateStreamParams {
	p.Outputs = outs
	return p
}

func (p *CreateStreamParams) WithChangeDest(dest []byte) *CreateStreamParams {
	p.ChangeDest = dest
	return p
}

// MakeCreateStreamTransaction consumes outputs until total is covered and produces escrow output
// with the new stream state at index 0 and the change, if any, at index 1
func MakeCreateStreamTransaction(par *CreateStreamParams) (*ledger.Transaction, error) {
	s := stream.NewState(par.Total, par.Start, par.End, par.Beneficiary)

	ctx := NewTransactionBuilder()
	available := uint64(0)
	var ok bool
	for _, o := range par.Outputs {
		if available >= par.Total {
			break
		}
		od, err := ledger.OutputDataFromBytes(o.OutputData)
		if err != nil {
			return nil, fmt.Errorf("output %s: %v", o.ID.String(), err)
		}
		if _, isStream := stream.StateFromAppState(par.App, od.State); isStream {
			return nil, fmt.Errorf("can't fund stream from the stream output %s", o.ID.String())
		}
		if _, err = ctx.ConsumeOutput(od, o.ID); err != nil {
			return nil, err
		}
		if available, ok = easystream.AddUint64(available, od.Coin.Amount); !ok {
			return nil, fmt.Errorf("native amount overflow")
		}
	}
	if available < par.Total {
		return nil, fmt.Errorf("not enough tokens: needed %d, got %d", par.Total, available)
	}
	escrow := ledger.NewNativeCoin(par.Total, EscrowDestination(par.App))
	if _, err := ctx.ProduceOutput(escrow, ledger.AppState{par.App: s.Bytes()}); err != nil {
		return nil, err
	}
	if change := available - par.Total; change > 0 {
		if len(par.ChangeDest) == 0 {
			return nil, fmt.Errorf("change destination not specified for the remainder %d", change)
		}
		if _, err := ctx.ProduceOutput(ledger.NewNativeCoin(change, par.ChangeDest), nil); err != nil {
			return nil, err
		}
	}
	if err := stream.ValidateCreate(&stream.IndexedState{Index: 0, State: s}, ctx.Transaction); err != nil {
		return nil, err
	}
	return ctx.Transaction, nil
}

// ClaimParams is claim from the stream output. By default everything vested at Now is claimed
type ClaimParams struct {
	App          ledger.AppID
	Stream       *ledger.OutputDataWithID
	Now          uint64
	ClaimedAfter uint64
}

// NewClaimParams claims everything vested at now
func NewClaimParams(app ledger.AppID, streamOutput *ledger.OutputDataWithID, now uint64) (*ClaimParams, error) {
	_, s, err := parseStreamOutput(app, streamOutput)
	if err != nil {
		return nil, err
	}
	return &ClaimParams{
		App:          app,
		Stream:       streamOutput,
		Now:          now,
		ClaimedAfter: s.VestedAt(now),
	}, nil
}

func (p *ClaimParams) WithClaimedAfter(claimed uint64) *ClaimParams {
	p.ClaimedAfter = claimed
	return p
}

func parseStreamOutput(app ledger.AppID, o *ledger.OutputDataWithID) (*ledger.OutputData, *stream.State, error) {
	od, err := ledger.OutputDataFromBytes(o.OutputData)
	if err != nil {
		return nil, nil, fmt.Errorf("output %s: %v", o.ID.String(), err)
	}
	s, ok := stream.StateFromAppState(app, od.State)
	if !ok {
		return nil, nil, fmt.Errorf("output %s does not contain stream of %s", o.ID.String(), app.String())
	}
	return od, s, nil
}

// MakeClaimTransaction consumes the stream output and produces successor escrow output at index 0
// and the payout to the beneficiary at index 1
func MakeClaimTransaction(par *ClaimParams) (*ledger.Transaction, error) {
	od, prev, err := parseStreamOutput(par.App, par.Stream)
	if err != nil {
		return nil, err
	}
	next := prev.WithClaimed(par.ClaimedAfter)
	delta, ok := easystream.SubUint64(next.ClaimedAmount, prev.ClaimedAmount)
	if !ok {
		return nil, fmt.Errorf("claimed amount can't decrease: %d -> %d", prev.ClaimedAmount, next.ClaimedAmount)
	}
	remainder, ok := easystream.SubUint64(od.Coin.Amount, delta)
	if !ok {
		return nil, fmt.Errorf("claim %d exceeds escrowed amount %d", delta, od.Coin.Amount)
	}
	ctx := NewTransactionBuilder()
	if _, err = ctx.ConsumeOutput(od, par.Stream.ID); err != nil {
		return nil, err
	}
	if _, err = ctx.ProduceOutput(ledger.NewNativeCoin(remainder, od.Coin.Dest), ledger.AppState{par.App: next.Bytes()}); err != nil {
		return nil, err
	}
	if _, err = ctx.ProduceOutput(ledger.NewNativeCoin(delta, next.Beneficiary), nil); err != nil {
		return nil, err
	}
	in := &stream.IndexedState{Index: 0, State: prev}
	out := &stream.IndexedState{Index: 0, State: next}
	if err = stream.ValidateClaim(in, out, ctx.Transaction, par.Now); err != nil {
		return nil, err
	}
	return ctx.Transaction, nil
}
