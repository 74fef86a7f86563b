package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/intake/internal/record"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change the chat switches",
	Long: `Each conversation kind has an on/off switch. A disabled chat answers every
message with a fixed notice and stores nothing.

Kinds: interview, survey.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [kind]",
	Short: "Show whether chats are enabled",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := []record.Kind{record.KindInterview, record.KindSurvey}
		if len(args) == 1 {
			k, err := parseKindArg(args[0])
			if err != nil {
				return err
			}
			kinds = []record.Kind{k}
		}

		a, err := openApp(openOpts{logMode: "quiet"})
		if err != nil {
			return err
		}
		defer a.close()

		for _, k := range kinds {
			on, err := a.engine.Enabled(cmd.Context(), k)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, onOff(on))
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <kind> <on|off>",
	Short: "Enable or disable a chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKindArg(args[0])
		if err != nil {
			return err
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return err
		}

		a, err := openApp(openOpts{logMode: "quiet"})
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.engine.SetEnabled(cmd.Context(), kind, on); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", kind, onOff(on))
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func parseKindArg(s string) (record.Kind, error) {
	k, ok := record.ParseKind(s)
	if !ok {
		return "", fmt.Errorf("unknown kind %q (use interview or survey)", s)
	}
	return k, nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "enable", "enabled":
		return true, nil
	case "off", "disable", "disabled":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid switch value %q (use on or off)", s)
	}
	return b, nil
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
