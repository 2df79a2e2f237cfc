package main

import (
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/imu/acquisition"
	"github.com/mklimuk/imu/cmd/imu/console"
	"github.com/mklimuk/imu/config"
)

var acquisitionFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "mode",
		Usage: "acquisition mode: polling or fifo",
	},
	&cli.IntFlag{
		Name:  "rate",
		Usage: "polling rate in Hz",
	},
	&cli.IntFlag{
		Name:  "fifo-rate",
		Usage: "FIFO sample rate in Hz",
	},
	&cli.DurationFlag{
		Name:  "interval",
		Usage: "FIFO drain interval",
	},
}

// acquisitionConfig applies acquisition flag overrides to cfg.
func acquisitionConfig(c *cli.Context, cfg config.Config) (acquisition.Config, error) {
	if c.IsSet("mode") {
		cfg.Mode = c.String("mode")
	}
	if c.IsSet("rate") {
		cfg.Rate = c.Int("rate")
	}
	if c.IsSet("fifo-rate") {
		cfg.FIFORate = c.Int("fifo-rate")
	}
	if c.IsSet("interval") {
		cfg.Interval = c.Duration("interval")
	}
	err := cfg.Validate()
	if err != nil {
		return acquisition.Config{}, console.Exit(console.ExitUsage, "%s", console.Red(err))
	}
	return cfg.Acquisition(), nil
}

var streamCmd = cli.Command{
	Name:  "stream",
	Usage: "acquire readings until interrupted",
	Flags: append([]cli.Flag{
		&cli.DurationFlag{
			Name:  "duration",
			Usage: "stop after this long",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print one JSON document per sample",
		},
	}, acquisitionFlags...),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		acq, err := acquisitionConfig(c, cfg)
		if err != nil {
			return err
		}
		acq.Duration = c.Duration("duration")
		ctx, stop := signal.NotifyContext(commandContext(c), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, release, err := openSensor(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()
		w := acquisition.Start(ctx, s, acq)
		enc := json.NewEncoder(console.Writer())
		start := time.Now()
		for sample := range w.Samples() {
			if c.Bool("json") {
				err = enc.Encode(sample)
				if err != nil {
					w.Detach()
					break
				}
				continue
			}
			console.Print(sample.String())
		}
		err = w.Wait()
		stats := w.Stats()
		console.PInfof(console.PictoFinish, "%s samples in %s (%s mode), %s lost in %d overflows",
			console.White(stats.Samples), console.White(time.Since(start).Round(time.Millisecond)),
			w.Mode(), console.Yellow(stats.Lost), stats.Overflows)
		if err != nil {
			return console.ExitErr("acquisition failed", err)
		}
		return nil
	},
}
