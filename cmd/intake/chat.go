package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hurttlocker/intake/internal/intake"
	"github.com/hurttlocker/intake/internal/record"
)

var (
	chatSurvey  bool
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the intake assistant in the terminal",
	Long: `Start an interactive conversation. Each line you type is one message;
the assistant's reply and the record's progress are printed after it.

Pass --session to resume an earlier conversation. Type "exit" or press
Ctrl-D to stop.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatSurvey, "survey", false, "run the socioeconomic survey instead of the interview")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id to resume (default: new session)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := openApp(openOpts{needProvider: true, logMode: "quiet"})
	if err != nil {
		return err
	}
	defer a.close()

	session := strings.TrimSpace(chatSession)
	if session == "" {
		session = uuid.NewString()
	}
	return chatLoop(cmd.Context(), a.engine, kindFlag(chatSurvey), session, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop sends every non-blank input line as one turn until EOF, "exit" or
// ctx is done.
func chatLoop(ctx context.Context, eng *intake.Engine, kind record.Kind, session string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Session %s (%s). Type \"exit\" to stop.\n", session, kind)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		res, err := eng.HandleTurn(ctx, kind, session, line, intake.TurnMeta{UserAgent: "intake-cli/" + version})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n\n", res.Response)
		switch res.Status {
		case intake.StatusOK:
			fmt.Fprintf(out, "[progress %d%%", res.Progress)
			if len(res.Written) > 0 {
				fmt.Fprintf(out, ", saved: %s", strings.Join(res.Written, ", "))
			}
			if res.Completed {
				fmt.Fprint(out, ", completed")
			}
			fmt.Fprintln(out, "]")
		case intake.StatusDisabled, intake.StatusLimitReached:
			fmt.Fprintf(out, "[%s]\n", res.Status)
			return nil
		default:
			fmt.Fprintf(out, "[%s, progress %d%%]\n", res.Status, res.Progress)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
