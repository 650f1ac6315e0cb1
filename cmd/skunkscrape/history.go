package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/skunkworks/skunkscrape/internal/store"
)

func newHistoryCmd(global *globalOptions) *cobra.Command {
	var (
		limit   int
		plugin  string
		batchID string
	)

	cmd := &cobra.Command{
		Use:               "history",
		Short:             "Show recent plugin runs",
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := global.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			if cfg.Paths.HistoryDB == "" {
				return errors.New("run history is disabled: set history_db in the [paths] section")
			}

			st, err := store.New(cfg.Resolve(cfg.Paths.HistoryDB))
			if err != nil {
				return err
			}
			defer st.Close()

			var runs []*store.Run
			switch {
			case batchID != "":
				runs, err = st.Runs().ListByBatch(batchID)
			case plugin != "":
				runs, err = st.Runs().ListByPlugin(plugin, limit)
			default:
				runs, err = st.Runs().List(limit)
			}
			if err != nil {
				return err
			}

			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show, 0 for all")
	cmd.Flags().StringVar(&plugin, "plugin", "", "only show runs of this plugin")
	cmd.Flags().StringVar(&batchID, "batch", "", "show every run of one batch in launch order")
	return cmd
}

func printRuns(w io.Writer, runs []*store.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Started", "Plugin", "Status", "Proxy", "Duration", "ID"})
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = fmt.Sprintf("failed (%d)", r.ExitCode)
		}
		proxy := r.Proxy
		if proxy == "" {
			proxy = "-"
		}
		t.AppendRow(table.Row{
			r.StartedAt.Local().Format(time.DateTime),
			r.Plugin,
			status,
			proxy,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.ID,
		})
	}

	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return nil
}
