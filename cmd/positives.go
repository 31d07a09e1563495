package cmd

import (
	"encoding/csv"
	"os"

	"github.com/spf13/cobra"

	"go.uber.org/zap"
)

// newPositivesCmd creates the 'positives' subcommand, which prints
// the identifiers with a positive outcome. The enrichment pipeline
// downstream consumes this as its input.
func newPositivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "positives",
		Short: "Lists identifiers with a detected branch relationship as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := st.Close(); cerr != nil {
					logger.Warn("close store", zap.Error(cerr))
				}
			}()

			records, err := st.ListPositive(cmd.Context())
			if err != nil {
				return err
			}

			w := csv.NewWriter(os.Stdout)
			if err := w.Write([]string{"kvk_number", "company_name"}); err != nil {
				return err
			}
			for _, rec := range records {
				if err := w.Write([]string{rec.Number.String(), rec.Name}); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		},
	}
}
