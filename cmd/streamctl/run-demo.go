package main

import (
	"fmt"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/easystream/ledger"
	"github.com/lunfardo314/easystream/ledger/utxodb"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// demoApp identity of the stream application on the demo ledger
var demoApp = ledger.NewAppID('s', blake2b.Sum256([]byte("streamctl demo")), blake2b.Sum256([]byte("streamctl demo vk")))

const demoStart = 1_000_000

type demoStep struct {
	Now         uint64 `yaml:"now"`
	Claimed     uint64 `yaml:"claimed"`
	Beneficiary uint64 `yaml:"beneficiary_balance"`
	Escrow      uint64 `yaml:"escrow_balance"`
}

type demoResult struct {
	Stream       string     `yaml:"stream"`
	Steps        []demoStep `yaml:"steps"`
	Transactions uint64     `yaml:"transactions"`
}

func runDemo(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	res, err := demo(c.Uint64("total"), c.Uint64("duration"), c.Int("claims"), m.log)
	if err != nil {
		return err
	}
	return printYAML(m.w, res)
}

// demo creates stream and claims from it at equal intervals until the end
func demo(total, duration uint64, claims int, log *zap.SugaredLogger) (*demoResult, error) {
	if claims <= 0 || duration == 0 {
		return nil, fmt.Errorf("number of claims and duration must be positive")
	}
	u := utxodb.New(demoApp, utxodb.WithLogger(log))
	funder := u.GenerateAddress(0)
	beneficiary := u.GenerateAddress(1)
	if err := u.TokensFromFaucet(funder, total); err != nil {
		return nil, err
	}
	id, err := u.CreateStream(funder, total, demoStart, demoStart+duration, beneficiary)
	if err != nil {
		return nil, err
	}
	log.Infof("demo: created stream %s funded by %s", id.String(), easyfl.Fmt(funder))

	ret := &demoResult{
		Steps: make([]demoStep, 0, claims),
	}
	for i := 1; i <= claims; i++ {
		now := demoStart + duration*uint64(i)/uint64(claims)
		if id, err = u.Claim(id, now); err != nil {
			return nil, fmt.Errorf("claim at %d: %v", now, err)
		}
		s, err := u.StreamState(id)
		if err != nil {
			return nil, err
		}
		outs, err := u.StreamOutputs()
		if err != nil {
			return nil, err
		}
		escrow := uint64(0)
		for _, o := range outs {
			od, err := ledger.OutputDataFromBytes(o.OutputData)
			if err != nil {
				return nil, err
			}
			escrow += od.Coin.Amount
		}
		ret.Steps = append(ret.Steps, demoStep{
			Now:         now,
			Claimed:     s.ClaimedAmount,
			Beneficiary: u.Balance(beneficiary),
			Escrow:      escrow,
		})
		log.Debugf("demo: claim at %d: %s", now, s.String())
	}
	ret.Stream = id.String()
	ret.Transactions = u.NumTransactions()
	return ret, nil
}
