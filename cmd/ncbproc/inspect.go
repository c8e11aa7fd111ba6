package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ncbproc/internal/dataprocessing"
	"ncbproc/internal/validation"
)

func (c *cli) inspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show how a workbook's columns are discovered",
		Long: `Inspect loads the data sheet of a workbook and reports its columns, the
role each one was matched to and how the transaction codes would be
classified. Unlike process it does not fail when roles are missing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := validation.NewFileValidator(c.logger).ValidateExcelFile(path); err != nil {
				return err
			}
			svc, err := c.newService(nil)
			if err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			report, err := svc.Inspect(cmd.Context(), f, "")
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printInspect(c.stdout, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printInspect(out io.Writer, r *dataprocessing.InspectReport) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Ruleset:\t%s\n", r.Ruleset)
	fmt.Fprintf(tw, "Sheets:\t%s\n", strings.Join(r.Sheets, ", "))
	fmt.Fprintf(tw, "Data sheet:\t%s (header row %d, %d data rows)\n", r.Sheet, r.HeaderRow+1, r.Rows)
	if len(r.AdminColumns) > 0 {
		fmt.Fprintf(tw, "Admin columns:\t%s\n", strings.Join(r.AdminColumns, "; "))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ROLE\tCOLUMN\tHEADER\tMATCHED BY")
	for _, role := range r.ColumnMap.Roles() {
		ref := r.ColumnMap[role]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", role, ref.Letter, ref.Name, ref.Source)
	}
	for _, role := range r.Missing {
		fmt.Fprintf(tw, "%s\t-\t-\tnot found\n", role)
	}
	if r.Problem != "" {
		fmt.Fprintf(tw, "\nProblem:\t%s\n", r.Problem)
	}

	if len(r.TransactionValues) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "TRANSACTION\tCOUNT\tBUCKET")
		for _, v := range r.TransactionValues {
			bucket := string(v.Bucket)
			if bucket == "" {
				bucket = "(unclassified)"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", v.Value, v.Count, bucket)
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "COLUMN\tHEADER\tNON-BLANK\tNUMERIC\tSAMPLES")
	for _, col := range r.Columns {
		name := col.Name
		if col.Placeholder {
			name = "(blank)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", col.Letter, name, col.NonBlank, col.Numeric, strings.Join(col.Samples, " | "))
	}
}
