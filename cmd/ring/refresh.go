package main

import (
	"fmt"

	"github.com/Veraticus/the-alarm-must-ring/internal/cli"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/spf13/cobra"
)

func refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle",
		Long: `Match upcoming calendar events against the enabled rules and bring the
alarm table in line with the result.

Alarms armed here only ring while the daemon runs; the daemon re-arms any
persisted alarm that is missing when it next refreshes.`,
		RunE: runRefresh,
	}

	cmd.Flags().String("trigger", string(model.TriggerImmediate), "trigger to record (PERIODIC, IMMEDIATE, BOOT, TIMEZONE_CHANGE)")

	return cmd
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("trigger")
	trigger, err := model.ParseTrigger(name)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.RunRefreshCycle(ctx, trigger)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderResult(result))
	return nil
}
