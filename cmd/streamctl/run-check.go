package main

import (
	"fmt"

	"github.com/lunfardo314/easystream/ledger/stream"
	"github.com/lunfardo314/easystream/ledger/txbuilder"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
)

type checkResult struct {
	Transaction string   `yaml:"transaction"`
	Accepted    bool     `yaml:"accepted"`
	Reason      string   `yaml:"reason,omitempty"`
	Errors      []string `yaml:"errors,omitempty"`
}

func runCheck(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	fileName := c.String("file")
	if fileName == "" {
		return fmt.Errorf("--file is required")
	}
	f, err := loadFixture(fileName)
	if err != nil {
		return fmt.Errorf("%s: %v", fileName, err)
	}
	if dump, err := transactionDump(f); err == nil {
		m.log.Debugf("%s:\n%s", fileName, dump)
	}
	res, err := checkFixture(f, c.Bool("all"), stream.WithLogger(m.log))
	if err != nil {
		return fmt.Errorf("%s: %v", fileName, err)
	}
	return printYAML(m.w, res)
}

func checkFixture(f *fixture, all bool, opts ...stream.Option) (*checkResult, error) {
	app, tx, err := f.transaction()
	if err != nil {
		return nil, err
	}
	publicInput, err := decodeBytes(f.PublicInput)
	if err != nil {
		return nil, fmt.Errorf("public input: %v", err)
	}
	witness, err := f.witness()
	if err != nil {
		return nil, fmt.Errorf("witness: %v", err)
	}
	txid := tx.ID()
	ret := &checkResult{Transaction: txid.String()}

	err = stream.Check(app, tx, publicInput, witness, opts...)
	if err == nil {
		ret.Accepted = true
		return ret, nil
	}
	ret.Reason = stream.ReasonOf(err).String()
	ret.Errors = []string{err.Error()}

	if !all {
		return ret, nil
	}
	switch stream.ReasonOf(err) {
	case stream.ReasonMalformedWitness, stream.ReasonNonEmptyPublicInput, stream.ReasonInternal:
		// the transaction itself was not checked
	default:
		now, _ := stream.DecodeWitness(witness)
		ret.Errors = ret.Errors[:0]
		for _, e := range multierr.Errors(stream.Diagnose(app, tx, now)) {
			ret.Errors = append(ret.Errors, e.Error())
		}
	}
	return ret, nil
}

func transactionDump(f *fixture) (string, error) {
	app, tx, err := f.transaction()
	if err != nil {
		return "", err
	}
	return txbuilder.TransactionToString(tx, app), nil
}
