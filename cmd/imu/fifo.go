package main

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/imu/cmd/imu/console"
	"github.com/mklimuk/imu/mpu6050"
)

var fifoCmd = cli.Command{
	Name:  "fifo",
	Usage: "on-device FIFO diagnostics",
	Subcommands: cli.Commands{
		&fifoStatusCmd,
		&fifoCountCmd,
		&fifoCollectCmd,
	},
}

type fifoStatus struct {
	Registers   mpu6050.RegisterSnapshot `yaml:"registers"`
	Sleeping    bool                     `yaml:"sleeping"`
	ClockSource byte                     `yaml:"clock_source"`
	DLPF        byte                     `yaml:"dlpf"`
	SampleRate  int                      `yaml:"sample_rate"`
	Routed      bool                     `yaml:"accel_gyro_routed"`
	Enabled     bool                     `yaml:"fifo_enabled"`
	Count       int                      `yaml:"count"`
}

var fifoStatusCmd = cli.Command{
	Name:  "status",
	Usage: "enable the FIFO and dump the acquisition registers",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "rate",
			Value: mpu6050.MaxFIFORate,
			Usage: "FIFO sample rate in Hz",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		s, release, err := openSensor(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()
		defer s.Close(ctx)

		err = s.EnableFIFO(ctx, c.Int("rate"))
		if err != nil {
			return console.ExitErr("could not enable FIFO", err)
		}
		snap, err := s.ReadRegisterSnapshot(ctx)
		if err != nil {
			return console.ExitErr("could not read registers", err)
		}
		count, err := s.FIFOCount(ctx)
		if err != nil {
			return console.ExitErr("could not read FIFO count", err)
		}
		enc := yaml.NewEncoder(console.Writer())
		defer enc.Close()
		err = enc.Encode(fifoStatus{
			Registers:   snap,
			Sleeping:    snap.Sleeping(),
			ClockSource: snap.ClockSource(),
			DLPF:        snap.DLPF(),
			SampleRate:  snap.SampleRate(),
			Routed:      snap.AccelGyroRouted(),
			Enabled:     snap.FIFOEnabled(),
			Count:       count,
		})
		if err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var fifoCountCmd = cli.Command{
	Name:  "count",
	Usage: "watch the FIFO fill up",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "rate",
			Value: 100,
			Usage: "FIFO sample rate in Hz",
		},
		&cli.DurationFlag{
			Name:  "every",
			Value: 100 * time.Millisecond,
		},
		&cli.IntFlag{
			Name:  "times",
			Value: 10,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		s, release, err := openSensor(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()
		defer s.Close(ctx)

		err = s.EnableFIFO(ctx, c.Int("rate"))
		if err != nil {
			return console.ExitErr("could not enable FIFO", err)
		}
		for i := 0; i < c.Int("times"); i++ {
			time.Sleep(c.Duration("every"))
			count, err := s.FIFOCount(ctx)
			if err != nil {
				return console.ExitErr("could not read FIFO count", err)
			}
			console.PInfof(console.PictoPin, "%4d bytes, %3d records", count, count/mpu6050.RecordSize)
		}
		return nil
	},
}

var fifoCollectCmd = cli.Command{
	Name:      "collect",
	Usage:     "collect an exact number of samples through the FIFO",
	ArgsUsage: "<count>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "rate",
			Value: mpu6050.MaxFIFORate,
			Usage: "FIFO sample rate in Hz",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the samples as JSON",
		},
	},
	Action: func(c *cli.Context) error {
		n := 1000
		if c.Args().Len() > 0 {
			var err error
			n, err = strconv.Atoi(c.Args().First())
			if err != nil {
				return console.Exit(console.ExitUsage, "invalid sample count %q", c.Args().First())
			}
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		s, release, err := openSensor(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()
		defer s.Close(ctx)

		start := time.Now()
		samples, err := s.CollectSamplesFIFO(ctx, c.Int("rate"), n)
		if err != nil {
			return console.ExitErr("collection failed", err)
		}
		elapsed := time.Since(start)
		if c.Bool("json") {
			return json.NewEncoder(console.Writer()).Encode(samples)
		}
		for _, r := range samples {
			console.Print(r.String())
		}
		console.PInfof(console.PictoFinish, "%s samples in %s, %.1f Hz effective",
			console.White(len(samples)), console.White(elapsed.Round(time.Millisecond)), float64(len(samples))/elapsed.Seconds())
		return nil
	},
}
