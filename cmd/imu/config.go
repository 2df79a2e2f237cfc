package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/imu/cmd/imu/console"
	"github.com/mklimuk/imu/config"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "manage the configuration file",
	Subcommands: cli.Commands{
		&configInitCmd,
		&configShowCmd,
	},
}

var configInitCmd = cli.Command{
	Name:  "init",
	Usage: "write a configuration template",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Value:   config.DefaultPath(),
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "overwrite without asking",
		},
	},
	Action: func(c *cli.Context) error {
		path := c.String("output")
		if _, err := os.Stat(path); err == nil && !c.Bool("yes") {
			answer, err := console.Prompt(path+" exists, overwrite?", console.No, console.Yes)
			if err != nil {
				return console.Exit(console.ExitFailure, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "left %s untouched", path)
				return nil
			}
		}
		cfg := config.Default()
		if c.IsSet("adapter") {
			cfg.Adapter = c.String("adapter")
		}
		err := config.WriteTemplate(path, cfg)
		if err != nil {
			return console.Exit(console.ExitFailure, "%s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "configuration written to %s", console.White(path))
		return nil
	},
}

var configShowCmd = cli.Command{
	Name:  "show",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if used := config.Used(c.String("config")); used != "" {
			console.PInfof(console.PictoPin, "from %s", console.White(used))
		}
		enc := yaml.NewEncoder(console.Writer())
		defer enc.Close()
		return enc.Encode(cfg)
	},
}
