package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/easystream/lazyslice"
	"github.com/lunfardo314/unitrie/common"
)

const AppIDLength = 1 + 32 + 32

// AppID identifies the application (contract) an attached state belongs to.
// Several applications can attach state to the same output
type AppID struct {
	Tag      byte
	Identity [32]byte
	VK       [32]byte
}

// AppState is an application-state-by-identity lookup of one input or output
type AppState map[AppID][]byte

func NewAppID(tag byte, identity, vk [32]byte) AppID {
	return AppID{
		Tag:      tag,
		Identity: identity,
		VK:       vk,
	}
}

func AppIDFromBytes(data []byte) (ret AppID, err error) {
	if len(data) != AppIDLength {
		err = errors.New("AppIDFromBytes: wrong data length")
		return
	}
	ret.Tag = data[0]
	copy(ret.Identity[:], data[1:33])
	copy(ret.VK[:], data[33:])
	return
}

func (app AppID) Bytes() []byte {
	return common.Concat(app.Tag, app.Identity[:], app.VK[:])
}

func (app AppID) String() string {
	return fmt.Sprintf("%c/%s/%s", app.Tag, easyfl.Fmt(app.Identity[:]), easyfl.Fmt(app.VK[:]))
}

// Get returns state attached by the application, if any
func (s AppState) Get(app AppID) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	ret, ok := s[app]
	return ret, ok
}

// Bytes serializes the map as array of (app, data) pairs sorted by app bytes
func (s AppState) Bytes() []byte {
	keys := make([]AppID, 0, len(s))
	for app := range s {
		keys = append(keys, app)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0
	})
	arr := lazyslice.EmptyArray()
	for _, app := range keys {
		arr.Push(lazyslice.MakeArray(app.Bytes(), s[app]).Bytes())
	}
	return arr.Bytes()
}

func AppStateFromBytes(data []byte) (AppState, error) {
	arr, err := lazyslice.ParseArray(data)
	if err != nil {
		return nil, err
	}
	ret := make(AppState)
	arr.ForEach(func(i int, pairBin []byte) bool {
		var pair *lazyslice.Array
		if pair, err = lazyslice.ParseArrayExact(pairBin, 2); err != nil {
			return false
		}
		var app AppID
		if app, err = AppIDFromBytes(pair.At(0)); err != nil {
			return false
		}
		if _, already := ret[app]; already {
			err = fmt.Errorf("repeating app %s", app.String())
			return false
		}
		ret[app] = pair.At(1)
		return true
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
