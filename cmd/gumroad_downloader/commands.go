package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/gumroad_downloader/internal/catalog"
	"github.com/italolelis/gumroad_downloader/internal/config"
	"github.com/italolelis/gumroad_downloader/internal/transfer"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath  string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gumroad_downloader",
		Short: "Mirror your Gumroad library to local disk",
		Long: `gumroad_downloader keeps a local copy of the products you bought on Gumroad.

Without a subcommand it refreshes the catalog (unless refresh is false) and downloads every file that
is missing or incomplete. Re-running is safe: files that already have the announced size are skipped.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				var report transfer.Report

				if a.cfg.ShouldRefresh() {
					syncReport, err := a.synchronize(ctx)
					report.Merge(onlyFailures(syncReport))

					if err != nil {
						a.finish(ctx, "Run interrupted", report)

						return err
					}
				}

				dlReport, err := a.download(ctx)
				report.Merge(dlReport)

				if err != nil {
					a.finish(ctx, "Run interrupted", report)

					return err
				}

				a.finish(ctx, "Run finished", report)

				return nil
			})
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultFile, "path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address while running")

	cmd.AddCommand(
		newSyncCmd(opts),
		newDownloadCmd(opts),
		newCreatorsCmd(opts),
	)

	return cmd
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the local catalog from your library without downloading",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				report, err := a.synchronize(ctx)
				a.finish(ctx, "Catalog synchronized", report)

				return err
			})
		},
	}
}

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download files already known to the local catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				report, err := a.download(ctx)
				a.finish(ctx, "Downloads finished", report)

				return err
			})
		},
	}
}

func newCreatorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "creators",
		Short: "List the creators in the local catalog",
		Long:  "List the creators in the local catalog with their IDs, ready to be copied into the creators setting.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				creators, err := a.store.GetCreators(ctx)
				if err != nil {
					return fmt.Errorf("failed to read creators: %w", err)
				}

				configured := make(map[string]bool, len(a.cfg.Creators))
				for _, c := range a.cfg.Creators {
					configured[c.ID] = true
				}

				products := make(map[string]int, len(creators))

				for _, c := range creators {
					details, err := a.store.GetProductDetails(ctx, c.ID)
					if err != nil {
						return fmt.Errorf("failed to read products of creator %s: %w", c.ID, err)
					}

					products[c.ID] = len(details)
				}

				printCreators(cmd.OutOrStdout(), creators, products, configured)

				return nil
			})
		},
	}
}

func withApp(ctx context.Context, opts *rootOptions, fn func(context.Context, *app) error) error {
	ctx, a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	return fn(ctx, a)
}

// onlyFailures keeps product refresh failures in the run report without counting refreshed products as files.
func onlyFailures(r transfer.Report) transfer.Report {
	return transfer.Report{Failed: r.Failed, Failures: r.Failures}
}

func printReport(w io.Writer, title string, report transfer.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Done", "Skipped", "Failed", "Written"})
	t.AppendRow(table.Row{report.Done, report.Skipped, report.Failed, humanize.Bytes(uint64(report.Bytes))})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(report.Failures) == 0 {
		return
	}

	f := table.NewWriter()
	f.SetOutputMirror(w)
	f.AppendHeader(table.Row{"Failed item", "Kind", "Error"})

	for _, r := range report.Failures {
		f.AppendRow(table.Row{r.Name, r.Kind, r.Err})
	}

	f.SetStyle(table.StyleRounded)
	f.Render()
}

func printCreators(w io.Writer, creators []catalog.Creator, products map[string]int, configured map[string]bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Name", "Purchases", "Products", "Configured"})

	for _, c := range creators {
		mark := ""
		if configured[c.ID] {
			mark = "yes"
		}

		t.AppendRow(table.Row{c.ID, c.Name, len(c.PurchaseIDs), products[c.ID], mark})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
