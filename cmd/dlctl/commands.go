package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"datalogger/internal/app"
	"datalogger/internal/model"
	"datalogger/internal/report"
	"datalogger/internal/service"
	"datalogger/internal/transfer"
)

func newSeedCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Apply seed DSL and option catalogs (idempotent by name)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				res, err := a.Seed(cmd.Context())
				if err != nil {
					var se *service.SeedError
					if errors.As(err, &se) {
						for _, is := range se.Issues {
							fmt.Fprintln(cmd.ErrOrStderr(), is.Error())
						}
					}
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "fields created: %d\n", len(res.FieldsCreated))
				fmt.Fprintf(w, "entities created: %d\n", len(res.EntitiesCreated))
				fmt.Fprintf(w, "skipped: %d\n", len(res.Skipped))
				if res.ConfigApplied {
					fmt.Fprintln(w, "config applied")
				}
				return nil
			})
		},
	}
}

func newExportCmd(open opener) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export fields, entities and records as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			write := transfer.ExportJSON
			switch strings.ToLower(format) {
			case "json":
			case "csv":
				write = transfer.ExportCSV
			default:
				return fmt.Errorf("unknown format %q (allowed: json|csv)", format)
			}
			return withApp(cmd, open, func(a *app.App) error {
				snap, err := a.Service.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					return write(cmd.OutOrStdout(), snap)
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := write(f, snap); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json|csv)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newImportCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the whole store with an exported JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readImport(args[0], cmd.InOrStdin())
			if err != nil {
				var ie *transfer.ImportError
				if errors.As(err, &ie) {
					for _, p := range ie.Problems {
						fmt.Fprintln(cmd.ErrOrStderr(), p)
					}
				}
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				if err := a.Service.Import(cmd.Context(), snap); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d fields, %d entities, %d records\n",
					len(snap.Fields), len(snap.Entities), len(snap.Records))
				return nil
			})
		},
	}
}

// readImport: "-" читает stdin.
func readImport(path string, stdin io.Reader) (model.Snapshot, error) {
	if path == "-" {
		return transfer.DecodeImport(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer f.Close()
	return transfer.DecodeImport(f)
}

func newArchiveCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Store a JSON export in the configured blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				snap, err := a.Service.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				obj, err := transfer.Archive(cmd.Context(), a.Blob, snap, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", obj.Key, obj.Size, obj.SHA256)
				return nil
			})
		},
	}
}

type reportOpts struct {
	field    string
	agg      string
	entities []string
	from     string
	to       string
	category string
	asJSON   bool
}

func newReportCmd(open opener) *cobra.Command {
	o := &reportOpts{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate a numeric field by entity or by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				q, err := o.query(cmd.Context(), a.Service)
				if err != nil {
					return err
				}
				rep, err := a.Service.RunReport(cmd.Context(), q)
				if err != nil {
					return err
				}
				if o.asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(rep)
				}
				return printReport(cmd.OutOrStdout(), rep)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.field, "field", "", "Numeric field id or name")
	f.StringVar(&o.agg, "agg", "sum", "Aggregation (sum|average)")
	f.StringSliceVar(&o.entities, "entity", nil, "Entity id or name (repeatable; default all)")
	f.StringVar(&o.from, "from", "", "From date YYYY-MM-DD (inclusive)")
	f.StringVar(&o.to, "to", "", "To date YYYY-MM-DD (inclusive)")
	f.StringVar(&o.category, "category", "", "Group by this field id or name")
	f.BoolVar(&o.asJSON, "json", false, "Print the report as JSON")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func (o *reportOpts) query(ctx context.Context, svc *service.Service) (report.Query, error) {
	agg, err := report.ParseAggregation(o.agg)
	if err != nil {
		return report.Query{}, err
	}
	from, err := report.ParseDate(o.from)
	if err != nil {
		return report.Query{}, fmt.Errorf("--from: %w", err)
	}
	to, err := report.ParseDate(o.to)
	if err != nil {
		return report.Query{}, fmt.Errorf("--to: %w", err)
	}
	fieldID, err := resolveField(ctx, svc, o.field)
	if err != nil {
		return report.Query{}, err
	}
	q := report.Query{
		ValueFieldID: fieldID,
		Aggregation:  agg,
		Filters:      report.Filters{From: from, To: to},
	}
	if o.category != "" {
		if q.CategoryFieldID, err = resolveField(ctx, svc, o.category); err != nil {
			return report.Query{}, err
		}
	}
	for _, ref := range o.entities {
		id, err := resolveEntity(ctx, svc, ref)
		if err != nil {
			return report.Query{}, err
		}
		q.Filters.EntityIDs = append(q.Filters.EntityIDs, id)
	}
	return q, nil
}

// resolveField принимает id или имя (без учёта регистра).
func resolveField(ctx context.Context, svc *service.Service, ref string) (string, error) {
	if f, err := svc.GetField(ctx, ref); err == nil {
		return f.ID, nil
	} else if !errors.Is(err, service.ErrNotFound) {
		return "", err
	}
	f, ok, err := svc.FindFieldByName(ctx, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("field %q not found", ref)
	}
	return f.ID, nil
}

func resolveEntity(ctx context.Context, svc *service.Service, ref string) (string, error) {
	if e, err := svc.GetEntity(ctx, ref); err == nil {
		return e.ID, nil
	} else if !errors.Is(err, service.ErrNotFound) {
		return "", err
	}
	e, ok, err := svc.FindEntityByName(ctx, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("entity %q not found", ref)
	}
	return e.ID, nil
}

func printReport(w io.Writer, rep *report.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	group := "ENTITY"
	if rep.CategoryFieldName != "" {
		group = strings.ToUpper(rep.CategoryFieldName)
	}
	fmt.Fprintf(tw, "%s\t%s (%s)\tCOUNT\n", group, rep.FieldName, rep.Aggregation)
	for _, b := range rep.Buckets {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", b.Name, formatNumber(b.Value), b.Count)
	}
	total := rep.Totals.Sum
	if rep.Aggregation == report.Average {
		total = rep.Totals.Average
	}
	fmt.Fprintf(tw, "TOTAL\t%s\t%d\n", formatNumber(total), rep.Totals.Count)
	return tw.Flush()
}

func formatNumber(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List action names accepted by POST /api/actions/:action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, a := range service.Actions() {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}
}
