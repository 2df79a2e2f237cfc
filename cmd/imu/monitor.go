package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/imu/acquisition"
	"github.com/mklimuk/imu/cmd/imu/console"
	"github.com/mklimuk/imu/mpu6050"
)

// full scale of the default ranges
const (
	accelLimit = 2
	gyroLimit  = 250
)

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "live view of the sensor axes",
	Flags: append([]cli.Flag{
		&cli.DurationFlag{
			Name:  "refresh",
			Value: 100 * time.Millisecond,
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
		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()
		s, release, err := openSensor(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()

		w := acquisition.Start(ctx, s, acq)
		var latest lastSample
		go func() {
			for sample := range w.Samples() {
				latest.set(sample)
			}
		}()

		err = ui.Init()
		if err != nil {
			w.Detach()
			<-w.Done()
			return console.Exit(console.ExitFailure, "could not initialize terminal: %s", console.Red(err))
		}
		defer ui.Close()

		table := widgets.NewTable()
		table.Title = fmt.Sprintf(" MPU-6050 (%s) ", cfg.Adapter)
		table.ColumnWidths = []int{8, 12, 44}
		table.RowSeparator = false
		status := widgets.NewParagraph()
		status.Title = " acquisition "
		layout := func(width int) {
			table.SetRect(0, 0, width, 9)
			status.SetRect(0, 9, width, 13)
		}
		width, _ := ui.TerminalDimensions()
		layout(width)

		ticker := time.NewTicker(c.Duration("refresh"))
		defer ticker.Stop()
		events := ui.PollEvents()
		for {
			select {
			case e := <-events:
				switch e.ID {
				case "q", "<C-c>", "<Escape>":
					w.Stop()
					<-w.Done()
					return nil
				case "<Resize>":
					payload := e.Payload.(ui.Resize)
					layout(payload.Width)
					ui.Clear()
				}
			case <-w.Done():
				if err := w.Wait(); err != nil {
					return console.ExitErr("acquisition failed", err)
				}
				return nil
			case <-ticker.C:
				sample, ok := latest.get()
				if !ok {
					continue
				}
				table.Rows = axisRows(sample.Reading)
				stats := w.Stats()
				status.Text = fmt.Sprintf("mode %s  t=%.2fs  samples %d  lost %d  overflows %d  pending %d\npress q to quit",
					w.Mode(), sample.Timestamp, stats.Samples, stats.Lost, stats.Overflows, stats.Pending)
				ui.Render(table, status)
			}
		}
	},
}

func axisRows(r mpu6050.Reading) [][]string {
	ax, ay, az := r.Accel()
	gx, gy, gz := r.Gyro()
	row := func(name string, v, limit float32, unit string) []string {
		return []string{name, fmtValue(v) + " " + unit, console.Bar(v, limit, 41)}
	}
	return [][]string{
		{"axis", "value", "-full scale | +full scale"},
		row("accel x", ax, accelLimit, "g"),
		row("accel y", ay, accelLimit, "g"),
		row("accel z", az, accelLimit, "g"),
		row("gyro x", gx, gyroLimit, "°/s"),
		row("gyro y", gy, gyroLimit, "°/s"),
		row("gyro z", gz, gyroLimit, "°/s"),
	}
}

type lastSample struct {
	mx     sync.Mutex
	sample acquisition.Sample
	ok     bool
}

func (l *lastSample) set(s acquisition.Sample) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.sample = s
	l.ok = true
}

func (l *lastSample) get() (acquisition.Sample, bool) {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.sample, l.ok
}
