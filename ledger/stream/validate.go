package stream

import (
	"bytes"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/easystream"
	"github.com/lunfardo314/easystream/ledger"
	"go.uber.org/multierr"
)

// Transition is the kind of state transition, determined by the number of stream states
// consumed and produced by the transaction
type Transition byte

const (
	TransitionUnsupported = Transition(iota)
	TransitionCreate
	TransitionClaim
)

func (t Transition) String() string {
	switch t {
	case TransitionCreate:
		return "create"
	case TransitionClaim:
		return "claim"
	default:
		return "unsupported"
	}
}

// Classify only (0,1) and (1,1) are supported, several streams per transaction are not
func Classify(numIns, numOuts int) Transition {
	switch {
	case numIns == 0 && numOuts == 1:
		return TransitionCreate
	case numIns == 1 && numOuts == 1:
		return TransitionClaim
	}
	return TransitionUnsupported
}

type check func() error

// firstFailure runs checks in order and stops at the first failed one
func firstFailure(checks []check) error {
	for _, c := range checks {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// allFailures runs all checks and combines distinct failures
func allFailures(checks []check) error {
	var ret error
	seen := make(map[string]struct{})
	for _, c := range checks {
		err := c()
		if err == nil {
			continue
		}
		if _, already := seen[err.Error()]; already {
			continue
		}
		seen[err.Error()] = struct{}{}
		ret = multierr.Append(ret, err)
	}
	return ret
}

// Validate projects stream states of the app and applies the transition rule selected by their number
func Validate(app ledger.AppID, tx *ledger.Transaction, now uint64) error {
	return validate(app, tx, now, firstFailure)
}

// Diagnose is Validate which does not stop at the first failure. Returns nil iff Validate returns nil
func Diagnose(app ledger.AppID, tx *ledger.Transaction, now uint64) error {
	return validate(app, tx, now, allFailures)
}

func validate(app ledger.AppID, tx *ledger.Transaction, now uint64, run func([]check) error) error {
	ins, outs := Project(app, tx)
	switch Classify(len(ins), len(outs)) {
	case TransitionCreate:
		return run(createChecks(outs[0], tx))
	case TransitionClaim:
		return run(claimChecks(ins[0], outs[0], tx, now))
	}
	return reject(ReasonUnsupportedArity, "unexpected number of stream states: in=%d, out=%d", len(ins), len(outs))
}

// ValidateCreate checks the stream state produced from nothing
func ValidateCreate(out *IndexedState, tx *ledger.Transaction) error {
	return firstFailure(createChecks(out, tx))
}

// ValidateClaim checks transition from prev, consumed, to next, produced, at the time now
func ValidateClaim(prev, next *IndexedState, tx *ledger.Transaction, now uint64) error {
	return firstFailure(claimChecks(prev, next, tx, now))
}

func createChecks(out *IndexedState, tx *ledger.Transaction) []check {
	s := out.State
	return []check{
		func() error {
			if s.TotalAmount == 0 {
				return reject(ReasonZeroTotal, "total_amount must be > 0")
			}
			return nil
		},
		func() error {
			if s.StartTime >= s.EndTime {
				return reject(ReasonBadSchedule, "start_time %d must be < end_time %d", s.StartTime, s.EndTime)
			}
			return nil
		},
		func() error {
			if s.ClaimedAmount != 0 {
				return reject(ReasonClaimedAtCreate, "claimed_amount must be 0 at create, got %d", s.ClaimedAmount)
			}
			return nil
		},
		func() error {
			if len(s.Beneficiary) == 0 {
				return reject(ReasonEmptyBeneficiary, "beneficiary can't be empty")
			}
			return nil
		},
		func() error {
			return coinOutsDeclared(tx)
		},
		func() error {
			coin, err := coinOut(tx, out.Index)
			if err != nil {
				return err
			}
			if coin.Amount != s.TotalAmount {
				return reject(ReasonEscrowMismatch, "escrow output #%d must hold exactly total_amount %d, got %d",
					out.Index, s.TotalAmount, coin.Amount)
			}
			return nil
		},
	}
}

func coinInsDeclared(tx *ledger.Transaction) error {
	if !tx.HasCoinIns() {
		return reject(ReasonNativeCoinsMissing, "native coin inputs missing or mismatched: %d coins for %d inputs",
			len(tx.CoinIns), len(tx.Inputs))
	}
	return nil
}

func coinOutsDeclared(tx *ledger.Transaction) error {
	if !tx.HasCoinOuts() {
		return reject(ReasonNativeCoinsMissing, "native coin outputs missing or mismatched: %d coins for %d outputs",
			len(tx.CoinOuts), len(tx.Outputs))
	}
	return nil
}

func coinIn(tx *ledger.Transaction, idx int) (ledger.NativeCoin, error) {
	if err := coinInsDeclared(tx); err != nil {
		return ledger.NativeCoin{}, err
	}
	ret, ok := tx.CoinIn(idx)
	if !ok {
		return ledger.NativeCoin{}, reject(ReasonNativeCoinsMissing, "no native coin for input #%d", idx)
	}
	return ret, nil
}

func coinOut(tx *ledger.Transaction, idx int) (ledger.NativeCoin, error) {
	if err := coinOutsDeclared(tx); err != nil {
		return ledger.NativeCoin{}, err
	}
	ret, ok := tx.CoinOut(idx)
	if !ok {
		return ledger.NativeCoin{}, reject(ReasonNativeCoinsMissing, "no native coin for output #%d", idx)
	}
	return ret, nil
}

// claimContext derives the conservation values of the claim. Each value is recomputed
// by every check which needs it, so checks are independent of each other
type claimContext struct {
	prev, next *IndexedState
	tx         *ledger.Transaction
}

func (c *claimContext) prevRemaining() (uint64, error) {
	ret, ok := c.prev.State.Remaining()
	if !ok {
		return 0, reject(ReasonArithmetic, "predecessor claimed_amount %d exceeds total_amount %d",
			c.prev.State.ClaimedAmount, c.prev.State.TotalAmount)
	}
	return ret, nil
}

func (c *claimContext) inputAmount() (uint64, error) {
	coin, err := coinIn(c.tx, c.prev.Index)
	if err != nil {
		return 0, err
	}
	return coin.Amount, nil
}

func (c *claimContext) delta() (uint64, error) {
	ret, ok := easystream.SubUint64(c.next.State.ClaimedAmount, c.prev.State.ClaimedAmount)
	if !ok {
		return 0, reject(ReasonArithmetic, "claimed delta underflow: %d - %d",
			c.next.State.ClaimedAmount, c.prev.State.ClaimedAmount)
	}
	return ret, nil
}

func (c *claimContext) remainingAfterClaim() (uint64, error) {
	inAmount, err := c.inputAmount()
	if err != nil {
		return 0, err
	}
	delta, err := c.delta()
	if err != nil {
		return 0, err
	}
	ret, ok := easystream.SubUint64(inAmount, delta)
	if !ok {
		return 0, reject(ReasonArithmetic, "claim %d exceeds escrowed amount %d", delta, inAmount)
	}
	return ret, nil
}

func (c *claimContext) expectedRemainder() uint64 {
	return easystream.SaturatingSub(c.next.State.TotalAmount, c.next.State.ClaimedAmount)
}

func claimChecks(prev, next *IndexedState, tx *ledger.Transaction, now uint64) []check {
	c := &claimContext{prev: prev, next: next, tx: tx}
	p, n := prev.State, next.State
	return []check{
		func() error {
			if now < p.StartTime {
				return reject(ReasonClaimBeforeStart, "cannot claim before stream start_time %d, now=%d", p.StartTime, now)
			}
			return nil
		},
		func() error {
			if n.TotalAmount != p.TotalAmount {
				return reject(ReasonScheduleChanged, "total_amount cannot change: %d -> %d", p.TotalAmount, n.TotalAmount)
			}
			if !p.sameSchedule(n) {
				return reject(ReasonScheduleChanged, "stream schedule cannot change: [%d, %d] -> [%d, %d]",
					p.StartTime, p.EndTime, n.StartTime, n.EndTime)
			}
			return nil
		},
		func() error {
			if n.ClaimedAmount < p.ClaimedAmount {
				return reject(ReasonClaimedDecreased, "claimed_amount cannot decrease: %d -> %d", p.ClaimedAmount, n.ClaimedAmount)
			}
			return nil
		},
		func() error {
			if n.ClaimedAmount > n.TotalAmount {
				return reject(ReasonClaimedExceedsTotal, "claimed_amount %d cannot exceed total_amount %d", n.ClaimedAmount, n.TotalAmount)
			}
			return nil
		},
		func() error {
			if vested := p.VestedAt(now); n.ClaimedAmount > vested {
				return reject(ReasonOverVested, "claimed_amount %d exceeds vested %d at now=%d", n.ClaimedAmount, vested, now)
			}
			return nil
		},
		func() error {
			if !p.sameBeneficiary(n) {
				return reject(ReasonBeneficiaryChanged, "beneficiary cannot change: %s -> %s",
					easyfl.Fmt(p.Beneficiary), easyfl.Fmt(n.Beneficiary))
			}
			if len(n.Beneficiary) == 0 {
				return reject(ReasonEmptyBeneficiary, "beneficiary can't be empty")
			}
			return nil
		},
		func() error {
			if err := coinInsDeclared(tx); err != nil {
				return err
			}
			return coinOutsDeclared(tx)
		},
		func() error {
			_, err := c.prevRemaining()
			return err
		},
		func() error {
			rem, err := c.prevRemaining()
			if err != nil {
				return err
			}
			inAmount, err := c.inputAmount()
			if err != nil {
				return err
			}
			if inAmount != rem {
				return reject(ReasonEscrowMismatch, "escrow input #%d holds %d, state implies %d", prev.Index, inAmount, rem)
			}
			return nil
		},
		func() error {
			_, err := c.delta()
			return err
		},
		func() error {
			_, err := c.remainingAfterClaim()
			return err
		},
		func() error {
			delta, err := c.delta()
			if err != nil {
				return err
			}
			if err = coinOutsDeclared(tx); err != nil {
				return err
			}
			for i, coin := range tx.CoinOuts {
				if i == next.Index {
					// the payout must be distinct from the escrow remainder
					continue
				}
				if coin.Amount == delta && bytes.Equal(coin.Dest, n.Beneficiary) {
					return nil
				}
			}
			return reject(ReasonPayoutMissing, "no payout output of exactly %d to beneficiary %s", delta, easyfl.Fmt(n.Beneficiary))
		},
		func() error {
			remaining, err := c.remainingAfterClaim()
			if err != nil {
				return err
			}
			if expected := c.expectedRemainder(); expected != remaining {
				return reject(ReasonRemainderMismatch, "state implies remainder %d, escrow after claim is %d", expected, remaining)
			}
			return nil
		},
		func() error {
			coin, err := coinOut(tx, next.Index)
			if err != nil {
				return err
			}
			if expected := c.expectedRemainder(); coin.Amount != expected {
				return reject(ReasonEscrowMismatch, "escrow output #%d must hold exactly %d, got %d", next.Index, expected, coin.Amount)
			}
			return nil
		},
	}
}
