package utxodb

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/easystream"
	"github.com/lunfardo314/easystream/ledger"
	"github.com/lunfardo314/easystream/ledger/indexer"
	"github.com/lunfardo314/easystream/ledger/stream"
	"github.com/lunfardo314/easystream/ledger/txbuilder"
	"github.com/lunfardo314/easystream/util/fifoqueue"
	"github.com/lunfardo314/unitrie/common"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// UTXODB is in-memory ledger of native coins with the stream application contract enforced.
// Genesis output holds the whole supply on the faucet address.
// There are no unlock rules: addresses are derived from ed25519 keys, but any plain output
// can be spent by any transaction

type (
	UTXODB struct {
		mutex          sync.RWMutex
		store          ledger.StateStore
		indexer        *indexer.Indexer
		app            ledger.AppID
		supply         uint64
		genesisAddress []byte
		recent         *fifoqueue.FIFOQueue[*TxRecord]
		numTx          atomic.Uint64
		log            *zap.SugaredLogger
	}

	// TxRecord is the entry of the log of recently added transactions
	TxRecord struct {
		ID      ledger.TransactionID
		Stream  bool
		Now     uint64
		Inputs  int
		Outputs int
	}

	Option func(*options)

	options struct {
		log       *zap.SugaredLogger
		supply    uint64
		maxRecent int
	}

	// stateView reads the state without locking
	stateView UTXODB
)

const (
	// for determinism
	originPrivateKey        = "8ec47313c15c3a4443c41619735109b56bc818f4a6b71d6a1f186ec96d15f28f14117899305d99fb4775de9223ce9886cfaa3195da1e40c5db47c61266f04dd2"
	deterministicSeed       = "1234567890987654321"
	supplyForTesting        = uint64(1_000_000_000_000)
	TokensFromFaucetDefault = uint64(1_000_000)
	maxRecentDefault        = 100
)

const (
	partitionUTXO = byte(iota)
	partitionTx
)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func WithSupply(supply uint64) Option {
	return func(o *options) {
		o.supply = supply
	}
}

// WithMaxRecent capacity of the log of recent transactions
func WithMaxRecent(n int) Option {
	return func(o *options) {
		o.maxRecent = n
	}
}

func New(app ledger.AppID, opts ...Option) *UTXODB {
	o := &options{
		log:       zap.NewNop().Sugar(),
		supply:    supplyForTesting,
		maxRecent: maxRecentDefault,
	}
	for _, opt := range opts {
		opt(o)
	}
	easyfl.Assert(o.supply > 0, "supply must be positive")

	originPrivateKeyBin, err := hex.DecodeString(originPrivateKey)
	easyfl.AssertNoError(err)
	originPubKey := ed25519.PrivateKey(originPrivateKeyBin).Public().(ed25519.PublicKey)

	ret := &UTXODB{
		store:          common.NewInMemoryKVStore(),
		indexer:        indexer.NewInMemory(),
		app:            app,
		supply:         o.supply,
		genesisAddress: AddressFromPublicKey(originPubKey),
		recent:         fifoqueue.New[*TxRecord](o.maxRecent),
		log:            o.log,
	}
	ret.initGenesis()
	return ret
}

// genesis output ID is all-0
func (u *UTXODB) initGenesis() {
	var genesisID ledger.OutputID
	out := &ledger.OutputData{Coin: ledger.NewNativeCoin(u.supply, u.genesisAddress)}
	batch := u.store.BatchedWriter()
	batch.Set(common.Concat(partitionUTXO, genesisID[:]), out.Bytes())
	txid := genesisID.TransactionID()
	batch.Set(common.Concat(partitionTx, txid[:]), []byte{0xff})
	easyfl.AssertNoError(batch.Commit())
	easyfl.AssertNoError(u.indexer.Update([]*indexer.IndexEntry{indexer.EntryFromOutput(genesisID, out, false)}))
}

// AddressFromPublicKey address is blake2b-256 of the public key
func AddressFromPublicKey(pub ed25519.PublicKey) []byte {
	ret := blake2b.Sum256(pub)
	return ret[:]
}

func (u *UTXODB) App() ledger.AppID {
	return u.app
}

func (u *UTXODB) Supply() uint64 {
	return u.supply
}

func (u *UTXODB) GenesisAddress() []byte {
	return u.genesisAddress
}

// GenerateAddress deterministic address number n
func (u *UTXODB) GenerateAddress(n uint16) []byte {
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], n)
	seed := blake2b.Sum256(common.Concat([]byte(deterministicSeed), u16[:]))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return AddressFromPublicKey(priv.Public().(ed25519.PublicKey))
}

func (v *stateView) GetUTXO(id *ledger.OutputID) ([]byte, bool) {
	ret := v.store.Get(common.Concat(partitionUTXO, id[:]))
	if len(ret) == 0 {
		return nil, false
	}
	return ret, true
}

func (v *stateView) HasTransaction(txid *ledger.TransactionID) bool {
	return v.store.Has(common.Concat(partitionTx, txid[:]))
}

func (u *UTXODB) view() *stateView {
	return (*stateView)(u)
}

func (u *UTXODB) GetUTXO(id *ledger.OutputID) ([]byte, bool) {
	u.mutex.RLock()
	defer u.mutex.RUnlock()

	return u.view().GetUTXO(id)
}

func (u *UTXODB) HasTransaction(txid *ledger.TransactionID) bool {
	u.mutex.RLock()
	defer u.mutex.RUnlock()

	return u.view().HasTransaction(txid)
}

// AddTransaction validates transaction against the ledger state and updates ledger state and indexer.
// The witness is passed to the stream contract if the transaction touches the app
func (u *UTXODB) AddTransaction(tx *ledger.Transaction, witness []byte) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	var consumed []*ledger.OutputData
	var touches bool
	err := common.CatchPanicOrError(func() error {
		var err error
		if consumed, err = u.checkLedgerRules(tx); err != nil {
			return err
		}
		if touches = touchesApp(u.app, tx); touches {
			return stream.Check(u.app, tx, nil, witness, stream.WithLogger(u.log))
		}
		return nil
	})
	if err != nil {
		u.log.Infof("UTXODB: transaction rejected: %v", err)
		return err
	}
	txid := tx.ID()
	if err = u.updateLedger(tx, txid, consumed); err != nil {
		return err
	}
	rec := &TxRecord{
		ID:      txid,
		Stream:  touches,
		Inputs:  len(tx.Inputs),
		Outputs: len(tx.Outputs),
	}
	if touches {
		rec.Now, _ = stream.DecodeWitness(witness)
	}
	u.recent.Write(rec)
	u.numTx.Inc()
	u.log.Debugf("UTXODB: added transaction %s", txid.String())
	return nil
}

func touchesApp(app ledger.AppID, tx *ledger.Transaction) bool {
	for i := range tx.Inputs {
		if _, ok := tx.Inputs[i].State.Get(app); ok {
			return true
		}
	}
	for i := range tx.Outputs {
		if _, ok := tx.Outputs[i].State.Get(app); ok {
			return true
		}
	}
	return false
}

// checkLedgerRules checks transaction is consistent with the ledger state and conserves native coins.
// Returns consumed outputs
func (u *UTXODB) checkLedgerRules(tx *ledger.Transaction) ([]*ledger.OutputData, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is nil")
	}
	if len(tx.Inputs) == 0 {
		return nil, fmt.Errorf("transaction must consume at least one output")
	}
	if len(tx.Inputs) > ledger.MaxNumInputs || len(tx.Outputs) > ledger.MaxNumOutputs {
		return nil, fmt.Errorf("too many inputs or outputs")
	}
	if !tx.HasCoinIns() || !tx.HasCoinOuts() {
		return nil, fmt.Errorf("native coins of all inputs and outputs must be declared")
	}
	consumed := make([]*ledger.OutputData, len(tx.Inputs))
	seen := make(map[ledger.OutputID]struct{})
	for i := range tx.Inputs {
		id := tx.Inputs[i].ID
		if _, already := seen[id]; already {
			return nil, fmt.Errorf("repeating input %s", id.String())
		}
		seen[id] = struct{}{}

		data, found := u.view().GetUTXO(&id)
		if !found {
			return nil, fmt.Errorf("input #%d: output %s does not exist", i, id.String())
		}
		o, err := ledger.OutputDataFromBytes(data)
		easyfl.AssertNoError(err)
		if o.Coin.Amount != tx.CoinIns[i].Amount || !bytes.Equal(o.Coin.Dest, tx.CoinIns[i].Dest) {
			return nil, fmt.Errorf("input #%d: declared coin %s, ledger has %s", i, tx.CoinIns[i].String(), o.Coin.String())
		}
		if !bytes.Equal(o.State.Bytes(), tx.Inputs[i].State.Bytes()) {
			return nil, fmt.Errorf("input #%d: application state differs from the ledger", i)
		}
		consumed[i] = o
	}
	for i := range tx.CoinOuts {
		if len(tx.CoinOuts[i].Dest) == 0 || len(tx.CoinOuts[i].Dest) > indexer.MaxDestLength {
			return nil, fmt.Errorf("output #%d: wrong destination length %d", i, len(tx.CoinOuts[i].Dest))
		}
	}
	in, err := sum(tx.CoinIns)
	if err != nil {
		return nil, err
	}
	out, err := sum(tx.CoinOuts)
	if err != nil {
		return nil, err
	}
	if in != out {
		return nil, fmt.Errorf("native coins not balanced: in %d, out %d", in, out)
	}
	return consumed, nil
}

func sum(coins []ledger.NativeCoin) (uint64, error) {
	ret := uint64(0)
	var ok bool
	for i := range coins {
		if ret, ok = easystream.AddUint64(ret, coins[i].Amount); !ok {
			return 0, fmt.Errorf("native amount overflow")
		}
	}
	return ret, nil
}

// updateLedger ledger state and indexer are updated in separate batches, so ledger state can
// succeed while indexer fails. In that case indexer can be rebuilt from the ledger state
func (u *UTXODB) updateLedger(tx *ledger.Transaction, txid ledger.TransactionID, consumed []*ledger.OutputData) error {
	entries := make([]*indexer.IndexEntry, 0, len(tx.Inputs)+len(tx.Outputs))
	batch := u.store.BatchedWriter()
	for i := range tx.Inputs {
		id := tx.Inputs[i].ID
		batch.Set(common.Concat(partitionUTXO, id[:]), nil)
		entries = append(entries, indexer.EntryFromOutput(id, consumed[i], true))
	}
	for i := range tx.Outputs {
		o, err := tx.ProducedOutputData(i)
		easyfl.AssertNoError(err)
		id := ledger.NewOutputID(txid, byte(i))
		batch.Set(common.Concat(partitionUTXO, id[:]), o.Bytes())
		entries = append(entries, indexer.EntryFromOutput(id, o, false))
	}
	batch.Set(common.Concat(partitionTx, txid[:]), []byte{0xff})
	if err := batch.Commit(); err != nil {
		return err
	}
	if err := u.indexer.Update(entries); err != nil {
		return fmt.Errorf("ledger state was updated but indexer update failed with '%v'", err)
	}
	return nil
}

// OutputsOf unspent outputs paying to the destination
func (u *UTXODB) OutputsOf(dest []byte) ([]*ledger.OutputDataWithID, error) {
	u.mutex.RLock()
	defer u.mutex.RUnlock()

	return u.indexer.GetUTXOsForDest(dest, u.view())
}

// StreamOutputs unspent outputs carrying state of the app
func (u *UTXODB) StreamOutputs() ([]*ledger.OutputDataWithID, error) {
	u.mutex.RLock()
	defer u.mutex.RUnlock()

	return u.indexer.GetUTXOsForApp(u.app, u.view())
}

func (u *UTXODB) account(dest []byte) (uint64, int) {
	outs, err := u.OutputsOf(dest)
	easyfl.AssertNoError(err)
	balance := uint64(0)
	for _, o := range outs {
		out, err := ledger.OutputDataFromBytes(o.OutputData)
		easyfl.AssertNoError(err)
		balance += out.Coin.Amount
	}
	return balance, len(outs)
}

func (u *UTXODB) Balance(dest []byte) uint64 {
	ret, _ := u.account(dest)
	return ret
}

func (u *UTXODB) NumUTXOs(dest []byte) int {
	_, ret := u.account(dest)
	return ret
}

// TokensFromFaucet transfers tokens from the genesis address
func (u *UTXODB) TokensFromFaucet(addr []byte, howMany ...uint64) error {
	amount := TokensFromFaucetDefault
	if len(howMany) > 0 && howMany[0] > 0 {
		amount = howMany[0]
	}
	tx, err := u.makeTransfer(u.genesisAddress, addr, amount)
	if err != nil {
		return fmt.Errorf("UTXODB faucet: %v", err)
	}
	return u.AddTransaction(tx, nil)
}

// makeTransfer consumes outputs of the source until amount is covered
func (u *UTXODB) makeTransfer(source, target []byte, amount uint64) (*ledger.Transaction, error) {
	outs, err := u.OutputsOf(source)
	if err != nil {
		return nil, err
	}
	ctx := txbuilder.NewTransactionBuilder()
	available := uint64(0)
	for _, o := range outs {
		if available >= amount {
			break
		}
		od, err := ledger.OutputDataFromBytes(o.OutputData)
		easyfl.AssertNoError(err)
		if len(od.State) > 0 {
			// outputs with application state are not spent by plain transfers
			continue
		}
		if _, err = ctx.ConsumeOutput(od, o.ID); err != nil {
			return nil, err
		}
		available += od.Coin.Amount
	}
	if available < amount {
		return nil, fmt.Errorf("not enough tokens in %s: needed %d, got %d", easyfl.Fmt(source), amount, available)
	}
	if _, err = ctx.ProduceOutput(ledger.NewNativeCoin(amount, target), nil); err != nil {
		return nil, err
	}
	if available > amount {
		if _, err = ctx.ProduceOutput(ledger.NewNativeCoin(available-amount, source), nil); err != nil {
			return nil, err
		}
	}
	return ctx.Transaction, nil
}

// MakeCreateStreamParams parameters of the stream funded from the outputs of the funder
func (u *UTXODB) MakeCreateStreamParams(funder []byte, total, start, end uint64, beneficiary []byte) (*txbuilder.CreateStreamParams, error) {
	outs, err := u.OutputsOf(funder)
	if err != nil {
		return nil, err
	}
	plain := outs[:0]
	for _, o := range outs {
		od, err := ledger.OutputDataFromBytes(o.OutputData)
		easyfl.AssertNoError(err)
		if len(od.State) == 0 {
			plain = append(plain, o)
		}
	}
	return txbuilder.NewCreateStreamParams(u.app, total, start, end, beneficiary).
		WithOutputs(plain).
		WithChangeDest(funder), nil
}

// CreateStream creates new stream funded by the funder. Returns ID of the stream output
func (u *UTXODB) CreateStream(funder []byte, total, start, end uint64, beneficiary []byte) (ledger.OutputID, error) {
	par, err := u.MakeCreateStreamParams(funder, total, start, end, beneficiary)
	if err != nil {
		return ledger.OutputID{}, err
	}
	tx, err := txbuilder.MakeCreateStreamTransaction(par)
	if err != nil {
		return ledger.OutputID{}, err
	}
	// creation does not depend on the time
	if err = u.AddTransaction(tx, stream.EncodeWitness(0)); err != nil {
		return ledger.OutputID{}, err
	}
	return tx.OutputID(0), nil
}

// Claim claims from the stream at the time now. Claims everything vested unless claimedAfter is specified.
// Returns ID of the successor stream output
func (u *UTXODB) Claim(streamID ledger.OutputID, now uint64, claimedAfter ...uint64) (ledger.OutputID, error) {
	data, found := u.GetUTXO(&streamID)
	if !found {
		return ledger.OutputID{}, fmt.Errorf("stream output %s not found", streamID.String())
	}
	par, err := txbuilder.NewClaimParams(u.app, &ledger.OutputDataWithID{ID: streamID, OutputData: data}, now)
	if err != nil {
		return ledger.OutputID{}, err
	}
	if len(claimedAfter) > 0 {
		par.WithClaimedAfter(claimedAfter[0])
	}
	tx, err := txbuilder.MakeClaimTransaction(par)
	if err != nil {
		return ledger.OutputID{}, err
	}
	if err = u.AddTransaction(tx, stream.EncodeWitness(now)); err != nil {
		return ledger.OutputID{}, err
	}
	return tx.OutputID(0), nil
}

// StreamState decodes the stream state of the output
func (u *UTXODB) StreamState(id ledger.OutputID) (*stream.State, error) {
	data, found := u.GetUTXO(&id)
	if !found {
		return nil, fmt.Errorf("output %s not found", id.String())
	}
	o, err := ledger.OutputDataFromBytes(data)
	if err != nil {
		return nil, err
	}
	s, ok := stream.StateFromAppState(u.app, o.State)
	if !ok {
		return nil, fmt.Errorf("output %s does not contain stream", id.String())
	}
	return s, nil
}

// RecentTransactions oldest first
func (u *UTXODB) RecentTransactions() []*TxRecord {
	return u.recent.Elements()
}

// NumTransactions number of transactions added since genesis
func (u *UTXODB) NumTransactions() uint64 {
	return u.numTx.Load()
}
