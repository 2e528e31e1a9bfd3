package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/spending-tracker/importer"
	"github.com/warp/spending-tracker/ledger"
	"github.com/warp/spending-tracker/logger"
	"github.com/warp/spending-tracker/workbook"
)

// errImportRejected is returned after the row errors have been printed.
var errImportRejected = errors.New("workbook has invalid rows")

func newImportCommand(a *app) *cobra.Command {
	var accounts, categories, transactions string

	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Reconcile an .xlsx workbook into the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := importer.ParseOptions(accounts, categories, transactions)
			if err != nil {
				return fmt.Errorf("import strategy: %w", err)
			}
			return runImport(cmd, a, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&accounts, "accounts", string(importer.StrategySkip), "existing accounts: skip, update or error")
	cmd.Flags().StringVar(&categories, "categories", string(importer.StrategySkip), "existing categories: skip, update or error")
	cmd.Flags().StringVar(&transactions, "transactions", string(importer.StrategySkip), "duplicate transactions: skip, update or error")

	return cmd
}

func runImport(cmd *cobra.Command, a *app, path string, opts importer.Options) error {
	out := cmd.OutOrStdout()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := workbook.CheckUpload(path, info.Size(), a.cfg.Import.MaxBytes); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	parsed, err := workbook.ParseUpload(path, f)
	if err != nil {
		return err
	}
	if len(parsed.Errors) > 0 {
		for _, e := range parsed.Errors {
			fmt.Fprintf(out, "%s row %d: %s\n", e.Sheet, e.Row, e.Message)
		}
		return errImportRejected
	}

	store, err := a.openStore()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	ctx := logger.WithContext(cmd.Context(), a.log)
	res, err := importer.New(store).Import(ctx, parsed.Data, opts)
	if err != nil {
		return err
	}

	printStats(out, "accounts", res.Accounts)
	printStats(out, "categories", res.Categories)
	printStats(out, "transactions", res.Transactions)

	a.log.Info().
		Str("file", path).
		Bool("success", res.Success).
		Int("errors", res.ErrorCount()).
		Msg("import finished")
	return nil
}

func printStats(out io.Writer, sheet string, s importer.Stats) {
	fmt.Fprintf(out, "%-13s created %d, updated %d, skipped %d, errors %d\n",
		sheet+":", s.Created, s.Updated, s.Skipped, len(s.Errors))
	for _, e := range s.Errors {
		fmt.Fprintf(out, "  row %d: %s\n", e.Row, e.Message)
	}
}

func newExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.xlsx]",
		Short: "Write every record to an .xlsx workbook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := workbook.Filename(time.Now())
			if len(args) > 0 {
				path = args[0]
			}
			return runExport(cmd, a, path)
		},
	}
}

func runExport(cmd *cobra.Command, a *app, path string) error {
	store, err := a.openStore()
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	snap, err := workbook.Load(cmd.Context(), store)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := workbook.Write(&buf, snap); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %d accounts, %d categories, %d transactions to %s\n",
		len(snap.Accounts), len(snap.Categories), len(snap.Transactions), path)
	return nil
}

func newSeedCommand(a *app) *cobra.Command {
	var scenario string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the default categories, or reset and load a demo scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer store.Close()

			ctx := logger.WithContext(cmd.Context(), a.log)
			out := cmd.OutOrStdout()

			if scenario != "" {
				if err := a.handler(store).LoadScenario(ctx, scenario); err != nil {
					return err
				}
				fmt.Fprintf(out, "loaded scenario %s\n", scenario)
				return nil
			}

			n, err := ledger.NewCategories(store).SeedDefaults(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "created %d categories\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "", "demo scenario to load (resets the database)")

	return cmd
}
