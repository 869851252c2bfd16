package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var placeholdersCmd = &cobra.Command{
	Use:   "placeholders",
	Short: "List the valid placeholders of the current workfile in load order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ps, err := s.builder.Placeholders()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ORDER\tNODE\tTYPE\tFAMILY\tREPRESENTATION\tLOADER")
		for _, p := range ps {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				p.Order, p.Node, p.BuilderType, orAny(p.Family), orAny(p.Representation), p.Loader)
		}
		return tw.Flush()
	},
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func init() {
	rootCmd.AddCommand(placeholdersCmd)
}
