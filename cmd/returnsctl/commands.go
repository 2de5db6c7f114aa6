package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"returns-service/config"
	"returns-service/internal/extractor"
	"returns-service/internal/models"
	"returns-service/internal/report"
	"returns-service/internal/seed"
	"returns-service/internal/service"
	"returns-service/internal/store"
	"returns-service/internal/util"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds what every subcommand shares
type app struct {
	cfg        *config.Config
	dbPath     string
	reportPath string
	verbose    bool
	logger     *zap.Logger
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	root := &cobra.Command{
		Use:   "returnsctl",
		Short: "Manage the product returns database",
		Long: `returnsctl works directly on the returns SQLite file.

It creates and seeds the table, records returns from flags or free text,
lists what is stored and writes the spreadsheet report.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logCfg := zap.NewProductionConfig()
			logCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if a.verbose {
				logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := logCfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			util.SetLogger(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", cfg.Database.Path, "path to the returns database")
	root.PersistentFlags().StringVar(&a.reportPath, "report", cfg.Report.Path, "path of the generated report")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.initCmd(),
		a.seedCmd(),
		a.listCmd(),
		a.addCmd(),
		a.extractCmd(),
		a.reportCmd(),
	)
	return root
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.NewStore(a.dbPath)
	if err != nil {
		return nil, err
	}
	if err := st.Initialize(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func (a *app) seedSource(url string) store.SeedSource {
	if url == "" {
		return nil
	}
	return seed.NewCSVSource(url, time.Duration(a.cfg.Seed.TimeoutSeconds)*time.Second, a.logger)
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the returns table and seed it when empty",
		Long: `Creates the returns table if it does not exist and, when SEED_CSV_URL is
set, loads the reference rows into an empty table. Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := service.NewStartup(st, a.seedSource(a.cfg.Seed.CSVURL), nil).Run(ctx); err != nil {
				return err
			}

			n, err := st.CountReturns(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s (%d records)\n", st.Path(), n)
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference rows from a CSV URL into an empty table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return fmt.Errorf("no seed URL: pass --url or set SEED_CSV_URL")
			}

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.SeedIfEmpty(ctx, a.seedSource(url))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d records\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", a.cfg.Seed.CSVURL, "CSV export to load")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every stored return",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := service.NewIngestionService(st, nil, nil).ListReturns(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	var (
		req  service.SubmitReturnRequest
		cost string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a return from flags",
		Long: `Records a return. The order id is assigned by the database.

Example:
  returnsctl add --product "Wireless Charger" --store "Taipei Xinyi" --reason Overheats --cost 12.50 --approved Yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cost != "" {
				d, err := decimal.NewFromString(cost)
				if err != nil {
					return fmt.Errorf("invalid --cost %q: %w", cost, err)
				}
				req.Cost = d
			}

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := service.NewIngestionService(st, nil, nil).Submit(ctx, &req)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created return for order %d (%d records total)\n", result.OrderID, len(result.Records))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Product, "product", "", "product name")
	cmd.Flags().StringVar(&req.StoreName, "store", "", "store name")
	cmd.Flags().StringVar(&req.ReturnReason, "reason", "", "return reason")
	cmd.Flags().StringVar(&req.Category, "category", "", "product category")
	cmd.Flags().StringVar(&req.ApprovedFlag, "approved", "", "approval flag, Yes or No")
	cmd.Flags().StringVar(&cost, "cost", "", "return cost")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "extract [text]",
		Short: "Record a return described in free text",
		Long: `Extracts product, store, cost and reason from free text and records the
return. Missing fields fall back to Unknown or 0.

Examples:
  returnsctl extract "add a return for order 1101, product is 'Desk Lamp', store is 'Taichung'" --provider pattern
  returnsctl extract "The desk lamp from Taichung came back broken, refund 18 dollars"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := extractor.New(provider, extractor.GeminiConfig{
				APIKey:  a.cfg.Extraction.APIKey,
				Model:   a.cfg.Extraction.Model,
				BaseURL: a.cfg.Extraction.BaseURL,
				Timeout: time.Duration(a.cfg.Extraction.TimeoutSeconds) * time.Second,
			}, a.logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := service.NewIngestionService(st, nil, nil).SubmitFromExtraction(ctx, strings.Join(args, " "), ex)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created return for order %d (%d records total)\n", result.OrderID, len(result.Records))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", a.cfg.Extraction.Provider, "extractor to use: gemini or pattern")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Write the Summary and Findings spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			reports := service.NewReportService(report.NewGenerator(st, a.reportPath, a.logger), nil)
			result, err := reports.Generate(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report written to %s\n", result.Path)
			fmt.Fprintf(out, "  Total Returns:     %d\n", result.Summary.TotalReturns)
			fmt.Fprintf(out, "  Distinct Stores:   %d\n", result.Summary.DistinctStores)
			fmt.Fprintf(out, "  Approved Returns:  %d\n", result.Summary.ApprovedReturns)
			fmt.Fprintf(out, "  Total Return Cost: %s\n", result.Summary.TotalCostText)
			return nil
		},
	}
}

func printRecords(w io.Writer, records []models.ReturnRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(models.Columns, "\t"))
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.OrderID, r.Product, r.Category, r.ReturnReason,
			r.Cost.StringFixed(2), r.ApprovedFlag, r.StoreName, r.Date)
	}
	return tw.Flush()
}

// describe spells out validation failures one per line
func describe(err error) error {
	var validationErr *service.ValidationError
	if !errors.As(err, &validationErr) {
		return err
	}
	return fmt.Errorf("return rejected:\n  - %s", strings.Join(validationErr.Violations, "\n  - "))
}
