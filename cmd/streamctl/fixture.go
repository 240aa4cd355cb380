package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/lunfardo314/easystream/ledger"
	"github.com/lunfardo314/easystream/ledger/stream"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// fixture describes transaction as seen by the stream contract.
// Byte strings are hex if prefixed with 0x, otherwise taken literally
type (
	fixture struct {
		App         appFixture     `yaml:"app"`
		Now         uint64         `yaml:"now"`
		PublicInput string         `yaml:"public_input"`
		Witness     string         `yaml:"witness"`
		Inputs      []*itemFixture `yaml:"inputs"`
		Outputs     []*itemFixture `yaml:"outputs"`
	}

	appFixture struct {
		Tag      string `yaml:"tag"`
		Identity string `yaml:"identity"`
		VK       string `yaml:"vk"`
	}

	itemFixture struct {
		ID     string            `yaml:"id"`
		Stream *streamFixture    `yaml:"stream"`
		Raw    string            `yaml:"raw"`
		Other  map[string]string `yaml:"other"`
		Coin   *coinFixture      `yaml:"coin"`
	}

	streamFixture struct {
		Total       uint64 `yaml:"total"`
		Claimed     uint64 `yaml:"claimed"`
		Start       uint64 `yaml:"start"`
		End         uint64 `yaml:"end"`
		Beneficiary string `yaml:"beneficiary"`
	}

	coinFixture struct {
		Amount uint64 `yaml:"amount"`
		Dest   string `yaml:"dest"`
	}
)

func decodeBytes(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") {
		return hex.DecodeString(s[2:])
	}
	return []byte(s), nil
}

// decode32 32 bytes from hex, any other string is hashed
func decode32(s string) ([32]byte, error) {
	if strings.HasPrefix(s, "0x") {
		var ret [32]byte
		data, err := hex.DecodeString(s[2:])
		if err != nil {
			return ret, err
		}
		if len(data) != 32 {
			return ret, fmt.Errorf("expected 32 bytes, got %d", len(data))
		}
		copy(ret[:], data)
		return ret, nil
	}
	return blake2b.Sum256([]byte(s)), nil
}

func (a *appFixture) appID() (ledger.AppID, error) {
	if len(a.Tag) != 1 {
		return ledger.AppID{}, fmt.Errorf("app tag must be one character")
	}
	identity, err := decode32(a.Identity)
	if err != nil {
		return ledger.AppID{}, fmt.Errorf("app identity: %v", err)
	}
	vk, err := decode32(a.VK)
	if err != nil {
		return ledger.AppID{}, fmt.Errorf("app vk: %v", err)
	}
	return ledger.NewAppID(a.Tag[0], identity, vk), nil
}

func (s *streamFixture) state() (*stream.State, error) {
	beneficiary, err := decodeBytes(s.Beneficiary)
	if err != nil {
		return nil, fmt.Errorf("beneficiary: %v", err)
	}
	ret := stream.NewState(s.Total, s.Start, s.End, beneficiary)
	ret.ClaimedAmount = s.Claimed
	return ret, nil
}

func (it *itemFixture) appState(app ledger.AppID) (ledger.AppState, error) {
	ret := ledger.AppState{}
	if it.Stream != nil && it.Raw != "" {
		return nil, fmt.Errorf("'stream' and 'raw' are mutually exclusive")
	}
	if it.Stream != nil {
		s, err := it.Stream.state()
		if err != nil {
			return nil, err
		}
		ret[app] = s.Bytes()
	}
	if it.Raw != "" {
		data, err := decodeBytes(it.Raw)
		if err != nil {
			return nil, fmt.Errorf("raw: %v", err)
		}
		ret[app] = data
	}
	for appHex, dataStr := range it.Other {
		appBin, err := decodeBytes(appHex)
		if err != nil {
			return nil, err
		}
		other, err := ledger.AppIDFromBytes(appBin)
		if err != nil {
			return nil, err
		}
		if ret[other], err = decodeBytes(dataStr); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// coins nil if no item has coin, error if only some have
func coins(items []*itemFixture) ([]ledger.NativeCoin, error) {
	n := 0
	for _, it := range items {
		if it.Coin != nil {
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}
	if n != len(items) {
		return nil, fmt.Errorf("coins must be declared for all items or for none")
	}
	ret := make([]ledger.NativeCoin, len(items))
	for i, it := range items {
		dest, err := decodeBytes(it.Coin.Dest)
		if err != nil {
			return nil, fmt.Errorf("coin #%d: %v", i, err)
		}
		ret[i] = ledger.NewNativeCoin(it.Coin.Amount, dest)
	}
	return ret, nil
}

func defaultInputID(i int) ledger.OutputID {
	return ledger.NewOutputID(blake2b.Sum256([]byte("streamctl fixture")), byte(i))
}

func (f *fixture) transaction() (ledger.AppID, *ledger.Transaction, error) {
	app, err := f.App.appID()
	if err != nil {
		return ledger.AppID{}, nil, err
	}
	tx := &ledger.Transaction{
		Inputs:  make([]ledger.Input, len(f.Inputs)),
		Outputs: make([]ledger.Output, len(f.Outputs)),
	}
	for i, it := range f.Inputs {
		tx.Inputs[i].ID = defaultInputID(i)
		if it.ID != "" {
			data, err := decodeBytes(it.ID)
			if err != nil {
				return app, nil, err
			}
			if tx.Inputs[i].ID, err = ledger.OutputIDFromBytes(data); err != nil {
				return app, nil, fmt.Errorf("input #%d: %v", i, err)
			}
		}
		if tx.Inputs[i].State, err = it.appState(app); err != nil {
			return app, nil, fmt.Errorf("input #%d: %v", i, err)
		}
	}
	for i, it := range f.Outputs {
		if tx.Outputs[i].State, err = it.appState(app); err != nil {
			return app, nil, fmt.Errorf("output #%d: %v", i, err)
		}
	}
	if tx.CoinIns, err = coins(f.Inputs); err != nil {
		return app, nil, fmt.Errorf("inputs: %v", err)
	}
	if tx.CoinOuts, err = coins(f.Outputs); err != nil {
		return app, nil, fmt.Errorf("outputs: %v", err)
	}
	return app, tx, nil
}

// witness explicit witness overrides 'now'
func (f *fixture) witness() ([]byte, error) {
	if f.Witness != "" {
		return decodeBytes(f.Witness)
	}
	return stream.EncodeWitness(f.Now), nil
}

func parseFixture(data []byte) (*fixture, error) {
	ret := &fixture{}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func loadFixture(fileName string) (*fixture, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	return parseFixture(data)
}
