package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// TestCmd runs the unit tests and optionally follows them with the simulated smoke runs.
func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run unit tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			smoke, err := cmd.Flags().GetBool("smoke")
			if err != nil {
				return fmt.Errorf("could not get smoke flag: %w", err)
			}
			if !smoke {
				return nil
			}
			duration, err := cmd.Flags().GetString("duration")
			if err != nil {
				return fmt.Errorf("could not get duration flag: %w", err)
			}
			return runCLI(cmd.Context(), goRunCLI, "sim", smokeRuns(duration))
		},
	}
	cmd.Flags().Bool("smoke", false, "also run the cli against the simulated sensor")
	cmd.Flags().String("duration", "500ms", "duration of each streaming smoke run")
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// IntegrationTestCmd runs the integration suite, then reads the attached sensor through
// each adapter passed with --adapter.
func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			adapters, err := cmd.Flags().GetStringSlice("adapter")
			if err != nil {
				return fmt.Errorf("could not get adapter flag: %w", err)
			}
			for _, adapter := range adapters {
				err = runCLI(cmd.Context(), goRunCLI, adapter, [][]string{{"read"}, {"fifo", "status"}})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("adapter", nil, "hardware adapters to check against a connected sensor (ft232h, mcp2221, i2cdev, nanopi)")
	return cmd
}
