package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/rql"
)

var cursorFlag int // --cursor: byte offset for completion, default end of input

var checkCmd = &cobra.Command{
	Use:   "check <rql>",
	Short: "Validate a query and show how it would run",
	Long: `Parse and compile a query without touching the database. Prints the
canonical form, the in-memory predicate and the SQL the store would run,
or a positioned diagnostic when the query is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkQuery(cmd.OutOrStdout(), cmd.ErrOrStderr(), strings.Join(args, " "))
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <rql>",
	Short: "List completions at the cursor",
	Long: `Print completion candidates for the token under the cursor, one per line
as "text<TAB>kind<TAB>detail". Meant for shell and editor integrations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		cursor := len(input)
		if cmd.Flags().Changed("cursor") {
			cursor = cursorFlag
		}
		writeCompletions(cmd.OutOrStdout(), rql.Complete(input, cursor))
		return nil
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the :preset shortcuts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		writePresets(cmd.OutOrStdout())
	},
}

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the labels usable with # and labels any/all",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range rql.LabelVocabulary() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

var subsystemsCmd = &cobra.Command{
	Use:   "subsystems",
	Short: "List the broker subsystems entries are attributed to",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range analysis.SubsystemNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	completeCmd.Flags().IntVar(&cursorFlag, "cursor", 0, "Byte offset of the cursor (default: end of input)")

	rootCmd.AddCommand(checkCmd, completeCmd, presetsCmd, labelsCmd, subsystemsCmd)
}

func checkQuery(stdout, stderr io.Writer, input string) error {
	q, err := rql.Parse(input)
	if err != nil {
		return reportQueryError(stderr, input, err)
	}
	compiler := rql.Compiler{DefaultLimit: cfg.Query.DefaultLimit}
	cq, err := compiler.Compile(q)
	if err != nil {
		return reportQueryError(stderr, input, err)
	}

	where, args := cq.WhereClause()
	plan := cq.Plan()
	fmt.Fprintf(stdout, "query:       %s\n", q.String())
	fmt.Fprintf(stdout, "predicate:   %s\n", cq.Predicate)
	fmt.Fprintf(stdout, "sql:         %s\n", plan.SQL("entries", "*", where))
	fmt.Fprintf(stdout, "args:        %v\n", append(args, plan.Args()...))
	fmt.Fprintf(stdout, "post-filter: %t\n", cq.PostFilter)
	fmt.Fprintf(stdout, "pushed:      %d of %d stages\n", plan.Pushed, len(cq.Pipeline))
	return nil
}

func writeCompletions(w io.Writer, completions []rql.Completion) {
	for _, c := range completions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Text, c.Kind, c.Detail)
	}
}

func writePresets(w io.Writer) {
	width := 0
	for _, name := range rql.PresetNames() {
		width = max(width, len(name)+1)
	}
	for _, p := range rql.AllPresets() {
		fmt.Fprintf(w, "%-*s  %s\n", width, ":"+p.Name(), p.Description())
		fmt.Fprintf(w, "%-*s    %s\n", width, "", p.QueryString())
	}
}
