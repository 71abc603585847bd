package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sentinel/internal/app"
)

func newScanCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <url>",
		Short: "Analyze a URL and print the threat report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app.App) error {
				res, err := a.Scanner.RunScan(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent scans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app.App) error {
				items := a.Scanner.History()
				if asJSON {
					return printJSON(cmd.OutOrStdout(), items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "no scans recorded")
					return nil
				}
				for _, it := range items {
					fmt.Fprintf(out, "%s  %-9s %3d  %d threat(s)  %s\n",
						it.Timestamp.Local().Format("2006-01-02 15:04:05"),
						strings.ToUpper(it.ThreatLevel), it.RiskScore, it.ThreatCount, it.URL)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newStatsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print scan counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Scanner.Stats())
			})
		},
	}
}
