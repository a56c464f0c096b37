package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vitebski/booking-admin/internal/form"
	"github.com/vitebski/booking-admin/internal/generator"
	"github.com/vitebski/booking-admin/internal/populator"
	"github.com/vitebski/booking-admin/internal/render"
	"github.com/vitebski/booking-admin/internal/utils"
	"github.com/vitebski/booking-admin/pkg/models"
)

type runner func(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error

func printOutcome(w io.Writer, outcome *form.Outcome) {
	if outcome.NotFound {
		fmt.Fprintf(w, "Nothing changed: %s\n", outcome.Message)
		return
	}
	fmt.Fprintf(w, "OK: %s\n", outcome.Message)
}

// parseAssignments turns repeated column=value flags into raw form input
func parseAssignments(pairs []string) (map[string]string, error) {
	raw := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected column=value, got %q", pair)
		}
		if _, dup := raw[name]; dup {
			return nil, fmt.Errorf("column %s given more than once", name)
		}
		raw[name] = value
	}
	return raw, nil
}

func newTablesCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the database",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			tables, err := a.engine.Tables(ctx)
			if err != nil {
				return err
			}
			render.Tables(cmd.OutOrStdout(), tables)
			return nil
		}),
	}
}

func newColumnsCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "Describe the columns of the table",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			columns, err := a.engine.Columns(ctx)
			if err != nil {
				return err
			}
			render.Columns(cmd.OutOrStdout(), columns)
			return nil
		}),
	}
}

func newFormCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "form",
		Short: "Show the fields a new booking is entered with",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			view, err := a.engine.Form(ctx)
			if err != nil {
				return err
			}
			render.Fields(cmd.OutOrStdout(), view.Fields)
			return nil
		}),
	}
}

func newListCmd(run runner) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every row of the table",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			set, err := a.engine.Rows(ctx)
			if err != nil {
				return err
			}
			return render.Rows(cmd.OutOrStdout(), set, format)
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, csv)")
	return cmd
}

func newShowCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "show <reference-number>",
		Short: "Show one booking",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			row, found, err := a.engine.Row(ctx, args[0])
			if err != nil {
				return err
			}
			if !found {
				return &models.OpError{Op: "show", Kind: models.ErrNotFound, Err: fmt.Errorf("no row matched %s", args[0])}
			}
			view, err := a.engine.Form(ctx)
			if err != nil {
				return err
			}
			columns := make([]string, 0, len(view.Fields))
			for _, f := range view.Fields {
				columns = append(columns, f.Column.Name)
			}
			render.Record(cmd.OutOrStdout(), columns, row)
			return nil
		}),
	}
}

func newCreateCmd(run runner) *cobra.Command {
	var assignments []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a booking from column=value pairs",
		Example: `  booking-admin create --set reference_number=100001 --set event_type=Wedding --set budget=5000`,
		Args: cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			raw, err := parseAssignments(assignments)
			if err != nil {
				return err
			}
			outcome, err := a.engine.Create(ctx, raw)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
	cmd.Flags().StringArrayVarP(&assignments, "set", "s", nil, "column=value, repeatable")
	return cmd
}

func newUpdateCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "update <reference-number> <column> <value>",
		Short: "Change one field of a booking",
		Args:  cobra.ExactArgs(3),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			outcome, err := a.engine.UpdateField(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
}

func newDeleteCmd(run runner) *cobra.Command {
	var where, value string
	cmd := &cobra.Command{
		Use:   "delete [reference-number]",
		Short: "Delete a booking, or every row matching --where/--value",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var outcome *form.Outcome
			var err error
			switch {
			case len(args) == 1 && where == "":
				outcome, err = a.engine.Delete(ctx, args[0])
			case len(args) == 0 && where != "":
				outcome, err = a.engine.DeleteWhere(ctx, where, value)
			default:
				return fmt.Errorf("give either a reference number or --where with --value")
			}
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", "Column to filter on")
	cmd.Flags().StringVarP(&value, "value", "v", "", "Value the column must equal")
	return cmd
}

func newAddColumnCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:     "add-column <name> <type>",
		Short:   "Add a column to the table",
		Example: `  booking-admin add-column notes TEXT`,
		Args:    cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			outcome, err := a.engine.AddColumn(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
}

func newDropColumnCmd(run runner) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "drop-column <name>",
		Short: "Drop a column and all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			outcome, err := a.engine.DropColumn(ctx, args[0], confirm)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "Confirmation phrase (default: DROP)")
	return cmd
}

func newRenameColumnCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "rename-column <old> <new>",
		Short: "Rename a column",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			outcome, err := a.engine.RenameColumn(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
}

func newChangeTypeCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:     "change-type <name> <type>",
		Short:   "Change the type of a column",
		Example: `  booking-admin change-type budget "NUMERIC(10,2)"`,
		Args:    cobra.ExactArgs(2),
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			outcome, err := a.engine.ChangeType(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), outcome)
			return nil
		}),
	}
}

func newExportCmd(run runner) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every row as CSV",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) (err error) {
			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("failed to create %s: %w", output, createErr)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("failed to write %s: %w", output, cerr)
					}
				}()
				w = f
			}

			n, err := a.engine.ExportCSV(ctx, w)
			if err != nil {
				return err
			}
			a.logger.Infof("Exported %d rows", n)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (default: stdout)")
	return cmd
}

func newSeedCmd(run runner) *cobra.Command {
	var records, maxRetries int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert generated sample bookings",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if records <= 0 {
				return fmt.Errorf("--records must be positive")
			}
			dataGenerator := generator.NewDataGenerator(a.validator, a.logger)
			dbPopulator := populator.NewDatabasePopulator(a.engine, dataGenerator, records, maxRetries, a.logger)

			result, err := dbPopulator.PopulateTable(ctx)
			if result != nil {
				utils.PrintSummary(cmd.OutOrStdout(), a.cfg.Table, result)
			}
			if err != nil {
				return err
			}
			if result.Inserted < result.Requested {
				return fmt.Errorf("inserted %d of %d records", result.Inserted, result.Requested)
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&records, "records", "r", utils.GetEnvInt("ADMIN_SEED_RECORDS", 10), "Number of records to generate")
	cmd.Flags().IntVarP(&maxRetries, "max-retries", "m", 5, "Maximum retries per record on duplicate reference numbers")
	return cmd
}
