package main

import (
	"fmt"

	"github.com/lunfardo314/easystream/ledger/stream"
	"github.com/urfave/cli"
)

func runVested(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	for _, name := range []string{"total", "start", "end", "now"} {
		if !c.IsSet(name) {
			return fmt.Errorf("--%s is required", name)
		}
	}
	s := stream.NewState(c.Uint64("total"), c.Uint64("start"), c.Uint64("end"), nil)
	now := c.Uint64("now")
	m.log.Debugf("vested: %s at %d", s.String(), now)

	out := struct {
		Total  uint64 `yaml:"total"`
		Start  uint64 `yaml:"start"`
		End    uint64 `yaml:"end"`
		Now    uint64 `yaml:"now"`
		Vested uint64 `yaml:"vested"`
	}{
		Total:  s.TotalAmount,
		Start:  s.StartTime,
		End:    s.EndTime,
		Now:    now,
		Vested: s.VestedAt(now),
	}
	return printYAML(m.w, out)
}
