package main

import (
	"fmt"
	"text/tabwriter"

	"insurance-charge/internal/money"
	"insurance-charge/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently recorded quotes from the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadSettings()
		if c.DataPath == "" {
			return fmt.Errorf("DATA_PATH is not configured")
		}

		store, err := storage.New(c.DataPath)
		if err != nil {
			return err
		}
		defer store.Close()

		quotes, err := store.RecentQuotes(historyLimit)
		if err != nil {
			return err
		}
		total, err := store.Count()
		if err != nil {
			log.Warn().Err(err).Msg("failed to count quotes")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tQUOTE\tAGE\tSEX\tBMI\tCHILDREN\tSMOKER\tREGION\tCHARGE")
		for _, q := range quotes {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2f\t%d\t%s\t%s\t%s\n",
				q.Timestamp.Local().Format("2006-01-02 15:04:05"), q.ID,
				q.Input.Age, q.Input.Sex, q.Input.BMI, q.Input.Children, q.Input.Smoker, q.Input.Region,
				money.Format(q.Charge))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d quotes\n", len(quotes), total)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of quotes to show")
}
