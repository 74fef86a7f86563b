package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/intake/internal/catalog"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the job catalog",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(openOpts{logMode: "quiet"})
		if err != nil {
			return err
		}
		defer a.close()
		return printJobs(cmd.OutOrStdout(), a.catalog.List())
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <filename>",
	Short: "Print one job's full description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(openOpts{logMode: "quiet"})
		if err != nil {
			return err
		}
		defer a.close()
		e, err := a.catalog.Get(args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n%s\n", e.Title, e.Description)
		return nil
	},
}

var jobsAddCmd = &cobra.Command{
	Use:   "add <title> <description>",
	Short: "Add a job to the catalog",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(openOpts{logMode: "quiet"})
		if err != nil {
			return err
		}
		defer a.close()
		e, err := a.catalog.Create(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", e.Title, e.Filename)
		return nil
	},
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove <filename>",
	Short: "Remove a job from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(openOpts{logMode: "quiet"})
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.catalog.Delete(args[0]); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsAddCmd, jobsRemoveCmd)
	rootCmd.AddCommand(jobsCmd)
}

func printJobs(w io.Writer, jobs []catalog.Entry) error {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs in catalog.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tFILE\tDESCRIPTION")
	for _, j := range jobs {
		desc := strings.Join(strings.Fields(j.Description), " ")
		if r := []rune(desc); len(r) > 60 {
			desc = string(r[:60]) + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", j.Title, j.Filename, desc)
	}
	return tw.Flush()
}
