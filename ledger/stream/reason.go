package stream

import (
	"errors"
	"fmt"
)

// Reason classifies why a transaction was rejected. The message of the Rejection is for humans only
type Reason byte

const (
	ReasonNone = Reason(iota)
	ReasonMalformedWitness
	ReasonNonEmptyPublicInput
	ReasonUnsupportedArity
	ReasonZeroTotal
	ReasonBadSchedule
	ReasonClaimedAtCreate
	ReasonEmptyBeneficiary
	ReasonNativeCoinsMissing
	ReasonEscrowMismatch
	ReasonClaimBeforeStart
	ReasonScheduleChanged
	ReasonClaimedDecreased
	ReasonClaimedExceedsTotal
	ReasonOverVested
	ReasonBeneficiaryChanged
	ReasonArithmetic
	ReasonPayoutMissing
	ReasonRemainderMismatch
	ReasonInternal
)

var reasonNames = map[Reason]string{
	ReasonNone:                "none",
	ReasonMalformedWitness:    "malformed_witness",
	ReasonNonEmptyPublicInput: "non_empty_public_input",
	ReasonUnsupportedArity:    "unsupported_arity",
	ReasonZeroTotal:           "zero_total",
	ReasonBadSchedule:         "bad_schedule",
	ReasonClaimedAtCreate:     "claimed_at_create",
	ReasonEmptyBeneficiary:    "empty_beneficiary",
	ReasonNativeCoinsMissing:  "native_coins_missing",
	ReasonEscrowMismatch:      "escrow_mismatch",
	ReasonClaimBeforeStart:    "claim_before_start",
	ReasonScheduleChanged:     "schedule_changed",
	ReasonClaimedDecreased:    "claimed_decreased",
	ReasonClaimedExceedsTotal: "claimed_exceeds_total",
	ReasonOverVested:          "over_vested",
	ReasonBeneficiaryChanged:  "beneficiary_changed",
	ReasonArithmetic:          "arithmetic",
	ReasonPayoutMissing:       "payout_missing",
	ReasonRemainderMismatch:   "remainder_mismatch",
	ReasonInternal:            "internal",
}

func (r Reason) String() string {
	if ret, ok := reasonNames[r]; ok {
		return ret
	}
	return fmt.Sprintf("reason(%d)", byte(r))
}

// Rejection is the error returned for every violated check
type Rejection struct {
	Reason Reason
	Msg    string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Msg)
}

func reject(reason Reason, format string, args ...interface{}) error {
	return &Rejection{
		Reason: reason,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// ReasonOf returns the reason of the first rejection in the error chain.
// nil error has ReasonNone, any other error is ReasonInternal
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ReasonInternal
}
