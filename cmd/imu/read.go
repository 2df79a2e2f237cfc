package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/imu/cmd/imu/console"
	"github.com/mklimuk/imu/mpu6050"
)

var readCmd = cli.Command{
	Name:  "read",
	Usage: "take a single reading",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "separate",
			Usage: "read accelerometer and gyroscope in two transfers",
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "print raw counts",
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

		var r mpu6050.Reading
		if c.Bool("separate") {
			r.AccelX, r.AccelY, r.AccelZ, err = s.ReadAccel(ctx)
			if err == nil {
				r.GyroX, r.GyroY, r.GyroZ, err = s.ReadGyro(ctx)
			}
		} else {
			r, err = s.ReadAll(ctx)
		}
		if err != nil {
			return console.ExitErr("read failed", err)
		}
		if c.Bool("raw") {
			enc := yaml.NewEncoder(console.Writer())
			defer enc.Close()
			return enc.Encode(r)
		}
		printReading(r)
		return nil
	},
}

func printReading(r mpu6050.Reading) {
	ax, ay, az := r.Accel()
	gx, gy, gz := r.Gyro()
	console.PInfof(console.PictoCompass, "accel %s g  %s g  %s g", console.White(fmtValue(ax)), console.White(fmtValue(ay)), console.White(fmtValue(az)))
	console.PInfof(console.PictoCompass, "gyro  %s °/s  %s °/s  %s °/s", console.White(fmtValue(gx)), console.White(fmtValue(gy)), console.White(fmtValue(gz)))
}

func fmtValue(v float32) string {
	return fmt.Sprintf("%+8.3f", v)
}
