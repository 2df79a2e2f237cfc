package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var goRunCLI = []string{"go", "run", "./cmd/imu"}

// smokeRuns exercises every acquisition mode; streaming runs last for duration.
func smokeRuns(duration string) [][]string {
	return [][]string{
		{"read"},
		{"fifo", "status"},
		{"fifo", "collect", "500"},
		{"stream", "--mode", "polling", "--rate", "200", "--duration", duration},
		{"stream", "--mode", "fifo", "--fifo-rate", "1000", "--duration", duration},
	}
}

// runCLI invokes the cli once per run against adapter and stops at the first failure.
func runCLI(ctx context.Context, cli []string, adapter string, runs [][]string) error {
	for _, run := range runs {
		args := append(append([]string{}, cli[1:]...), "--adapter", adapter)
		args = append(args, run...)
		slog.Info("running", "adapter", adapter, "args", run)
		c := exec.CommandContext(ctx, cli[0], args...)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		err := c.Run()
		if err != nil {
			return fmt.Errorf("%s run %v failed: %w", adapter, run, err)
		}
	}
	return nil
}

// SmokeCmd runs the cli against the simulated sensor in every acquisition mode.
func SmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the imu cli against the simulated sensor",
		RunE: func(cmd *cobra.Command, args []string) error {
			duration, err := cmd.Flags().GetString("duration")
			if err != nil {
				return fmt.Errorf("could not get duration flag: %w", err)
			}
			return runCLI(cmd.Context(), goRunCLI, "sim", smokeRuns(duration))
		},
	}
	cmd.Flags().String("duration", "1s", "duration of each streaming run")
	return cmd
}
