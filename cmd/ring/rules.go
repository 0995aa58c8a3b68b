package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/Veraticus/the-alarm-must-ring/internal/cli"
	"github.com/Veraticus/the-alarm-must-ring/internal/config"
	"github.com/Veraticus/the-alarm-must-ring/internal/pattern"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage keyword rules",
		Long: `Keyword rules decide which events get an alarm and how far ahead.

A pattern containing any of . * + ? ^ $ ( ) [ ] { } | \ is a
case-insensitive regular expression; anything else is a case-insensitive
substring. Changes take effect on the next refresh.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesDeleteCmd())
	cmd.AddCommand(rulesToggleCmd("enable", true))
	cmd.AddCommand(rulesToggleCmd("disable", false))
	cmd.AddCommand(rulesImportCmd())
	cmd.AddCommand(rulesExportCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rules, err := store.ListRules(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderRules(rules))
			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add a rule",
		Example: `  ring rules add meeting --lead 15
  ring rules add "stand.?up" --lead 10 --calendar work --first-of-day`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			lead, _ := cmd.Flags().GetInt("lead")
			calendars, _ := cmd.Flags().GetStringSlice("calendar")
			firstOfDay, _ := cmd.Flags().GetBool("first-of-day")
			disabled, _ := cmd.Flags().GetBool("disabled")

			if name == "" {
				name = args[0]
			}
			rule := pattern.NewRule(name, args[0], lead, calendars, firstOfDay)
			rule.Enabled = !disabled
			if err := pattern.NewValidator().ValidateRule(rule); err != nil {
				return err
			}

			ctx := cmd.Context()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.CreateRule(ctx, &rule); err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}
			slog.Info("Rule created", "rule_id", rule.ID, "pattern", rule.KeywordPattern, "regex", rule.IsRegex)
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %d (%s)", rule.ID, rule.Name)))
			return nil
		},
	}

	cmd.Flags().String("name", "", "display name (default: the pattern)")
	cmd.Flags().Int("lead", 15, "minutes before the event to ring")
	cmd.Flags().StringSlice("calendar", nil, "restrict to calendar IDs (repeatable)")
	cmd.Flags().Bool("first-of-day", false, "only the first matching event of each day")
	cmd.Flags().Bool("disabled", false, "create the rule disabled")

	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule, err := store.GetRule(ctx, id)
			if err != nil {
				return err
			}

			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				ok, err := cli.NewConfirmer(cmd.InOrStdin(), cmd.OutOrStdout()).
					Confirm(ctx, fmt.Sprintf("Delete rule %d (%s)?", rule.ID, rule.Name))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Kept"))
					return nil
				}
			}

			if err := store.DeleteRule(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted rule %d", id)))
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "skip confirmation")

	return cmd
}

func rulesToggleCmd(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("%s a rule", verb),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SetRuleEnabled(ctx, id, enabled); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %d %sd", id, verb)))
			return nil
		},
	}
}

func rulesImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from a YAML file",
		Long: `Import rules from a YAML file of the form:

  rules:
    - name: Meetings
      pattern: meeting
      lead_time_minutes: 15
    - name: Standups
      pattern: "stand.?up"
      lead_time_minutes: 10
      calendars: [work]
      first_event_of_day_only: true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := config.LoadRulesFile(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if replace, _ := cmd.Flags().GetBool("replace"); replace {
				if err := store.ReplaceRules(ctx, rules); err != nil {
					return err
				}
			} else {
				for i := range rules {
					if err := store.CreateRule(ctx, &rules[i]); err != nil {
						return fmt.Errorf("rule %d (%s): %w", i+1, rules[i].Name, err)
					}
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d rules", len(rules))))
			return nil
		},
	}

	cmd.Flags().Bool("replace", false, "replace all existing rules")

	return cmd
}

func rulesExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write rules as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rules, err := store.ListRules(ctx)
			if err != nil {
				return err
			}
			data, err := config.MarshalRules(rules)
			if err != nil {
				return err
			}

			if out, _ := cmd.Flags().GetString("output"); out != "" {
				return os.WriteFile(config.ExpandPath(out), data, 0o600)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringP("output", "o", "", "write to file instead of stdout")

	return cmd
}

func parseRuleID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid rule id %q", s)
	}
	return id, nil
}
