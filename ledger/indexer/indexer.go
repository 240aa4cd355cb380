package indexer

import (
	"bytes"
	"sort"
	"sync"

	"github.com/lunfardo314/easystream/ledger"
	"github.com/lunfardo314/unitrie/common"
)

// Indexer keeps references to outputs by the destination of their native coin
// and by the applications which have state in them.
// The referenced outputs themselves are in the ledger state
type Indexer struct {
	mutex *sync.RWMutex
	store ledger.IndexerStore
}

type IndexEntry struct {
	Dest     []byte
	Apps     []ledger.AppID
	OutputID ledger.OutputID
	Delete   bool
}

const (
	partitionDest = byte(iota)
	partitionApp
)

// MaxDestLength destination is prefixed with its length in the key
const MaxDestLength = 255

func NewIndexer(store ledger.IndexerStore) *Indexer {
	return &Indexer{
		mutex: &sync.RWMutex{},
		store: store,
	}
}

// NewInMemory mostly for testing
func NewInMemory() *Indexer {
	return NewIndexer(common.NewInMemoryKVStore())
}

func destPrefix(dest []byte) []byte {
	common.Assert(len(dest) <= MaxDestLength, "destination too long: %d bytes", len(dest))
	return common.Concat(partitionDest, byte(len(dest)), dest)
}

func appPrefix(app ledger.AppID) []byte {
	return common.Concat(partitionApp, app.Bytes())
}

// EntryFromOutput index entry of the output
func EntryFromOutput(id ledger.OutputID, o *ledger.OutputData, del bool) *IndexEntry {
	ret := &IndexEntry{
		Dest:     o.Coin.Dest,
		Apps:     make([]ledger.AppID, 0, len(o.State)),
		OutputID: id,
		Delete:   del,
	}
	for app := range o.State {
		ret.Apps = append(ret.Apps, app)
	}
	return ret
}

// GetUTXOsForDest returns outputs which pay to the destination. Order is by output ID
func (inr *Indexer) GetUTXOsForDest(dest []byte, state ledger.StateReadAccess) ([]*ledger.OutputDataWithID, error) {
	return inr.get(destPrefix(dest), state)
}

// GetUTXOsForApp returns outputs which carry state of the app. Order is by output ID
func (inr *Indexer) GetUTXOsForApp(app ledger.AppID, state ledger.StateReadAccess) ([]*ledger.OutputDataWithID, error) {
	return inr.get(appPrefix(app), state)
}

func (inr *Indexer) get(prefix []byte, state ledger.StateReadAccess) ([]*ledger.OutputDataWithID, error) {
	inr.mutex.RLock()
	defer inr.mutex.RUnlock()

	ret := make([]*ledger.OutputDataWithID, 0)
	var err error
	var found bool
	inr.store.Iterator(prefix).Iterate(func(k, v []byte) bool {
		o := &ledger.OutputDataWithID{}
		o.ID, err = ledger.OutputIDFromBytes(k[len(prefix):])
		if err != nil {
			return false
		}
		o.OutputData, found = state.GetUTXO(&o.ID)
		if !found {
			// stale entry, skip
			return true
		}
		ret = append(ret, o)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ret, func(i, j int) bool {
		return bytes.Compare(ret[i].ID[:], ret[j].ID[:]) < 0
	})
	return ret, nil
}

func (inr *Indexer) Update(entries []*IndexEntry) error {
	inr.mutex.Lock()
	defer inr.mutex.Unlock()

	w := inr.store.BatchedWriter()
	for _, e := range entries {
		var value []byte
		if !e.Delete {
			value = []byte{0xff}
		}
		w.Set(common.Concat(destPrefix(e.Dest), e.OutputID[:]), value)
		for _, app := range e.Apps {
			w.Set(common.Concat(appPrefix(app), e.OutputID[:]), value)
		}
	}
	return w.Commit()
}
