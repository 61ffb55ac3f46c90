package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/eval-studio/internal/config"
	"github.com/stellarlinkco/eval-studio/internal/store"
)

func newListCmd(st *cliState) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored evaluation runs",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			st.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			stor, err := store.Open(st.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stor.Close() }()

			listings, err := stor.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCASES\tAVG_SCORE\tCREATED")
			for _, l := range listings {
				avg := "-"
				if l.AvgScore != nil {
					avg = fmt.Sprintf("%.2f", *l.AvgScore)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					l.ID, l.Name, l.Status, l.ResultCount, avg,
					l.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}
