package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/imu"
	"github.com/mklimuk/imu/adapter"
	"github.com/mklimuk/imu/cmd/imu/console"
	"github.com/mklimuk/imu/config"
	"github.com/mklimuk/imu/ftdi"
	"github.com/mklimuk/imu/i2c"
	"github.com/mklimuk/imu/mpu6050"
	"github.com/mklimuk/imu/sim"
	"github.com/mklimuk/imu/snsctx"
)

// loadConfig reads the configuration file and applies global flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, console.Exit(console.ExitUsage, "configuration error: %s", console.Red(err))
	}
	if c.IsSet("adapter") {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("channel") {
		cfg.Channel = c.Int("channel")
	}
	err = cfg.Validate()
	if err != nil {
		return cfg, console.Exit(console.ExitUsage, "configuration error: %s", console.Red(err))
	}
	return cfg, nil
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

// newBus builds the binding selected by cfg. The returned release func frees adaptor resources
// held beyond the channel.
func newBus(cfg config.Config) (imu.Bus, func(), error) {
	noop := func() {}
	switch cfg.Adapter {
	case config.AdapterFT232H:
		b, err := ftdi.NewBus()
		return b, noop, err
	case config.AdapterMCP2221:
		return adapter.NewBus(), noop, nil
	case config.AdapterI2CDev:
		b, err := i2c.NewHostBus(cfg.Device)
		return b, noop, err
	case config.AdapterNanoPi:
		b, err := i2c.NewNeoBus(cfg.Bus)
		if err != nil {
			return nil, noop, err
		}
		return b, func() { _ = b.Close() }, nil
	case config.AdapterSim:
		return sim.NewBus(simulatedDevice()), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown adapter %q", cfg.Adapter)
}

// simulatedDevice lies flat and turns slowly around Z.
func simulatedDevice() *sim.Device {
	dev := sim.NewDevice(sim.WithGenerator(func(i int) sim.Sample {
		phase := float64(i) / 1000
		return sim.Sample{
			int16(400 * math.Sin(phase)),
			int16(400 * math.Cos(phase)),
			16384,
			0,
			0,
			int16(131 * 10 * math.Sin(phase/4)),
		}
	}))
	dev.SetSample(sim.Sample{0, 400, 16384, 0, 0, 0})
	dev.SetTemperature(-521)
	return dev
}

// openSensor opens the configured sensor. Callers close the sensor and then call release.
func openSensor(ctx context.Context, cfg config.Config) (*mpu6050.Sensor, func(), error) {
	bus, release, err := newBus(cfg)
	if err != nil {
		return nil, nil, console.ExitErr("could not set up adapter", err)
	}
	opts := []mpu6050.Opt{mpu6050.WithLatency(time.Millisecond)}
	if cfg.ClockRate > 0 {
		opts = append(opts, mpu6050.WithClockRate(cfg.ClockRate))
	}
	if cfg.ExactBursts {
		opts = append(opts, mpu6050.WithExactBursts(true))
	}
	s, err := mpu6050.Open(ctx, bus, cfg.Channel, opts...)
	if err != nil {
		release()
		return nil, nil, console.ExitErr("could not open sensor", err)
	}
	return s, release, nil
}
