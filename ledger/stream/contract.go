package stream

import (
	"fmt"

	"github.com/lunfardo314/easystream"
	"github.com/lunfardo314/easystream/ledger"
	"github.com/lunfardo314/unitrie/common"
	"go.uber.org/zap"
)

type (
	Option func(*options)

	options struct {
		log *zap.SugaredLogger
	}
)

// WithLogger sets the logger for the diagnostics of rejected transactions
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func makeOptions(opts []Option) *options {
	ret := &options{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// EncodeWitness encodes the current time as it is expected by the contract
func EncodeWitness(now uint64) []byte {
	return easystream.Uint64Bytes(now)
}

// DecodeWitness the witness must be exactly 8 bytes of big-endian Unix seconds
func DecodeWitness(w []byte) (uint64, error) {
	now, err := easystream.Uint64From(w)
	if err != nil {
		return 0, reject(ReasonMalformedWitness, "witness must contain uint64 'now' timestamp: %v", err)
	}
	return now, nil
}

// AppContract is the predicate of the stream application: true if the transaction
// legally creates a stream or legally claims from it.
// The witness supplies the current time; it is trusted only as much as the embedding system makes it trusted
func AppContract(app ledger.AppID, tx *ledger.Transaction, publicInput, witness []byte, opts ...Option) bool {
	return Check(app, tx, publicInput, witness, opts...) == nil
}

// Check is AppContract which returns the reason of rejection
func Check(app ledger.AppID, tx *ledger.Transaction, publicInput, witness []byte, opts ...Option) error {
	log := makeOptions(opts).log

	err := common.CatchPanicOrError(func() error {
		return checkTx(app, tx, publicInput, witness)
	})
	if err == nil {
		log.Debugf("stream contract %s: accepted", app.String())
		return nil
	}
	if ReasonOf(err) == ReasonInternal {
		err = reject(ReasonInternal, "%v", err)
	}
	log.Infof("stream contract %s: rejected: %v", app.String(), err)
	return err
}

func checkTx(app ledger.AppID, tx *ledger.Transaction, publicInput, witness []byte) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	// public input is reserved
	if len(publicInput) != 0 {
		return reject(ReasonNonEmptyPublicInput, "public input must be empty, got %d bytes", len(publicInput))
	}
	now, err := DecodeWitness(witness)
	if err != nil {
		return err
	}
	return Validate(app, tx, now)
}
