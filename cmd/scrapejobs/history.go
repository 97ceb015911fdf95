package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently searched queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(c.cfg, c.logger, c.transport)
			if err != nil {
				return err
			}
			history, err := a.client.SearchHistory(cmd.Context(), c.cfg.HistoryLimit)
			if err != nil {
				return fmt.Errorf("fetch search history: %w", err)
			}
			if len(history) == 0 {
				fmt.Fprintln(c.stdout, "No searches yet")
				return nil
			}
			for i, query := range history {
				fmt.Fprintf(c.stdout, "%2d. %s\n", i+1, query)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&c.cfg.HistoryLimit, "limit", c.cfg.HistoryLimit, "Number of queries to show")
	return cmd
}
