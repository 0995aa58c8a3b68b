package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/cli"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/spf13/cobra"
)

func alarmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alarms",
		Short: "Inspect and manage scheduled alarms",
	}

	cmd.AddCommand(alarmsListCmd())
	cmd.AddCommand(alarmsDismissCmd())
	cmd.AddCommand(alarmsTestCmd())
	cmd.AddCommand(alarmsResetDayCmd())

	return cmd
}

func alarmsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted alarms, soonest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, provider, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			filter := model.AlarmFilter{}
			filter.RuleID, _ = cmd.Flags().GetInt64("rule")
			filter.OnlyDismissed, _ = cmd.Flags().GetBool("dismissed")

			alarms, err := store.ListAlarms(ctx, filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderAlarms(alarms, provider.Location()))
			return nil
		},
	}

	cmd.Flags().Int64("rule", 0, "only alarms created by this rule")
	cmd.Flags().Bool("dismissed", false, "only dismissed alarms")

	return cmd
}

func alarmsDismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <alarm-id>",
		Short: "Silence an alarm until its event changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Dismiss(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Dismissed "+args[0]))
			return nil
		},
	}
}

func alarmsTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Schedule a one-off alarm that no rule owns",
		Long: `Schedule a one-off alarm. It rings from the daemon, which re-arms it on
start, and is removed once it has fired.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, _ := cmd.Flags().GetDuration("in")
			title, _ := cmd.Flags().GetString("title")

			ctx := cmd.Context()
			a, err := openApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			alarm, err := a.engine.ScheduleAdHoc(ctx, title, time.Now().Add(in))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s at %s (%s)",
				alarm.EventTitle,
				alarm.AlarmTime.In(a.provider.Location()).Format("Mon 15:04:05"),
				alarm.ID)))
			return nil
		},
	}

	cmd.Flags().Duration("in", time.Minute, "how long from now to ring")
	cmd.Flags().String("title", "Test alarm", "alarm title")

	return cmd
}

func alarmsResetDayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-day",
		Short: "Forget today's first-event-of-day consumption and refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.engine.ResetDay(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderResult(result))
			return nil
		},
	}
}
