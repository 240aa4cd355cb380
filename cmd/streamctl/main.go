package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type metadata struct {
	log *zap.SugaredLogger
	e   io.Writer
	w   io.Writer
}

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero"

func main() {
	app := cli.NewApp()
	app.Name = "streamctl"
	app.Usage = "inspect and exercise linear vesting streams"
	app.Version = version

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: " debug logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "vested",
			Usage: "vested amount of the stream at the given time",
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:  "total, t",
					Usage: "*total amount of the stream `AMOUNT`",
				},
				cli.Uint64Flag{
					Name:  "start, s",
					Usage: "*start time `UNIXSEC`",
				},
				cli.Uint64Flag{
					Name:  "end, e",
					Usage: "*end time `UNIXSEC`",
				},
				cli.Uint64Flag{
					Name:  "now, n",
					Usage: "*current time `UNIXSEC`",
				},
			},
			Action: runVested,
		},
		{
			Name:  "check",
			Usage: "run stream contract on the transaction described by the fixture",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "file, f",
					Value: "",
					Usage: "*transaction fixture `FILE` in YAML",
				},
				cli.BoolFlag{
					Name:  "all, a",
					Usage: " report all failed checks, not only the first",
				},
			},
			Action: runCheck,
		},
		{
			Name:  "demo",
			Usage: "create stream and claim from it on the in-memory ledger",
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:  "total, t",
					Value: 1000,
					Usage: " total amount of the stream `AMOUNT`",
				},
				cli.Uint64Flag{
					Name:  "duration",
					Value: 100,
					Usage: " duration of the stream `SECONDS`",
				},
				cli.IntFlag{
					Name:  "claims, c",
					Value: 4,
					Usage: " number of claims `N`",
				},
			},
			Action: runDemo,
		},
	}

	app.Before = func(c *cli.Context) error {
		c.App.Metadata = map[string]interface{}{
			"config": &metadata{
				log: newLogger(c.GlobalBool("debug")),
				e:   c.App.ErrWriter,
				w:   c.App.Writer,
			},
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("04:05.000")
	cfg.OutputPaths = []string{"stderr"}
	lvl := zapcore.WarnLevel
	if debug {
		lvl = zapcore.DebugLevel
	}
	log, err := cfg.Build(zap.IncreaseLevel(lvl), zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		panic(err)
	}
	return log.Sugar()
}

func printYAML(w io.Writer, message interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(message); err != nil {
		return err
	}
	return enc.Close()
}
