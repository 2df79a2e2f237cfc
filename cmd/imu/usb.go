package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/imu/adapter"
	"github.com/mklimuk/imu/cmd/imu/console"
	"github.com/mklimuk/imu/ftdi"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "find USB-I2C bridges",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
	},
}

var usbLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list HID and FTDI devices",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")
		for _, dev := range hid.Enumerate(0, 0) {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		_ = w.Flush()

		_, err := ftdi.NewBus()
		if err != nil {
			console.Warnf("FTDI drivers unavailable: %s", err)
			return nil
		}
		w = tabwriter.NewWriter(os.Stdout, 12, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "INDEX\tNAME\tTYPE\tVENDOR\tDEVICE\tOPENED\n")
		for _, dev := range ftdi.List() {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%#x\t%#x\t%t\n",
				dev.Index, dev.Name, dev.Type, dev.Vendor, dev.Device, dev.Opened)
		}
		_ = w.Flush()
		return nil
	},
}

var usbDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list supported bridges with their adapter name and channel",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(os.Stdout, 16, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "ADAPTER\tCHANNEL\tVENDOR\tPRODUCT\tDEVICE\n")
		for i, dev := range hid.Enumerate(adapter.VendorID, adapter.ProductID) {
			_, _ = fmt.Fprintf(w, "mcp2221\t%d\t%#x\t%#x\t%s\n", i, dev.VendorID, dev.ProductID, dev.Path)
		}
		if _, err := ftdi.NewBus(); err == nil {
			channel := 0
			for _, dev := range ftdi.List() {
				if dev.Type != "FT232H" {
					continue
				}
				_, _ = fmt.Fprintf(w, "ft232h\t%d\t%#x\t%#x\t%s\n", channel, dev.Vendor, dev.Device, dev.Name)
				channel++
			}
		}
		_ = w.Flush()
		return nil
	},
}
