package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ncbproc/internal/ruleset"
	"ncbproc/internal/services"
)

func (c *cli) rulesetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rulesets",
		Short: "List the built-in rulesets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTATUS\tDESCRIPTION")
			for _, rs := range services.Rulesets() {
				desc := rs.Description
				if rs.Message != "" {
					desc = rs.Message
				}
				marker := ""
				if rs.Name == c.cfg.Processing.Ruleset {
					marker = " (default)"
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\n", rs.Name, marker, rs.Status, desc)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print the YAML of a built-in ruleset",
		Long: `Show prints the YAML source of a built-in ruleset. Save it to a file, edit
it and pass the file with --ruleset-file to process a new export layout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := ruleset.BuiltinSource(args[0])
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(data)
			return err
		},
	})
	return cmd
}
