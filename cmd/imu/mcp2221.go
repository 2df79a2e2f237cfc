package main

import (
	"context"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/imu/adapter"
	"github.com/mklimuk/imu/cmd/imu/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 bridge maintenance",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
	},
}

func openMCP2221(c *cli.Context) (*adapter.MCP2221, error) {
	ctx := commandContext(c)
	ch, err := adapter.NewBus().Open(ctx, c.Int("channel"))
	if err != nil {
		return nil, console.ExitErr("could not open adapter", err)
	}
	return ch.(*adapter.MCP2221), nil
}

func printStatus(status *adapter.MCP2221Status) error {
	enc := yaml.NewEncoder(console.Writer())
	defer enc.Close()
	err := enc.Encode(status)
	if err != nil {
		return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) error {
			status, err := a.Status(ctx)
			if err != nil {
				return console.ExitErr("adapter communication error", err)
			}
			return printStatus(status)
		})
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a stuck transfer and free the I2C engine",
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) error {
			status, err := a.ReleaseBus(ctx)
			if err != nil {
				return console.ExitErr("adapter communication error", err)
			}
			return printStatus(status)
		})
	},
}

func withMCP2221(c *cli.Context, fn func(context.Context, *adapter.MCP2221) error) error {
	a, err := openMCP2221(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(commandContext(c), a)
}
