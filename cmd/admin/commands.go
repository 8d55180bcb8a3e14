package main

import (
	"campusskill/backend/internal/ledger"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type ledgerOpener func() (*ledger.Ledger, error)

func newRootCmd(open ledgerOpener, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "CampusSkill operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().Bool("json", false, "output JSON")

	root.AddCommand(
		leaderboardCmd(open),
		statsCmd(open),
		recomputeCmd(open),
	)
	return root
}

func leaderboardCmd(open ledgerOpener) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top users by total points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			standings, err := l.Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), standings)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Rank", "Name", "Role", "Total", "Credit", "Rating", "Completed", "Avg"})
			for _, s := range standings {
				tw.AppendRow(table.Row{
					s.Rank, s.Name, s.Role, s.TotalPoints, s.CreditPoints, s.RatingPoints,
					s.TasksCompleted, fmt.Sprintf("%.2f", s.AverageRating),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of users to show")
	return cmd
}

func statsCmd(open ledgerOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <userID>",
		Short: "Show the ledger of one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			return printStats(cmd, l, args[0])
		},
	}
}

func recomputeCmd(open ledgerOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <userID>",
		Short: "Recompute the derived ledger fields of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			if err := l.Recompute(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printStats(cmd, l, args[0])
		},
	}
}

func printStats(cmd *cobra.Command, l *ledger.Ledger, userID string) error {
	stats, err := l.Stats(cmd.Context(), userID)
	if err != nil {
		return err
	}
	if asJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), stats)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRows([]table.Row{
		{"rank", stats.Rank},
		{"totalPoints", stats.TotalPoints},
		{"creditPoints", stats.CreditPoints},
		{"ratingPoints", stats.RatingPoints},
		{"tasksCompleted", stats.TasksCompleted},
		{"tasksPosted", stats.TasksPosted},
		{"averageRating", fmt.Sprintf("%.2f", stats.AverageRating)},
		{"totalRatings", stats.TotalRatings},
	})
	tw.Render()
	return nil
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
