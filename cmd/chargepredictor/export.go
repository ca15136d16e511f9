package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"insurance-charge/internal/features"
	"insurance-charge/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	exportDays   int
	exportOutput string
)

// exportRow is one newline-delimited JSON record: the raw applicant
// attributes, the encoded columns by name, and the served charge.
type exportRow struct {
	QuoteID      string             `json:"quote_id"`
	Timestamp    time.Time          `json:"timestamp"`
	Input        features.RawRecord `json:"input"`
	Features     map[string]float64 `json:"features"`
	Charge       float64            `json:"charge"`
	ModelVersion string             `json:"model_version"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded quotes as newline-delimited JSON",
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

		end := time.Now().UTC()
		start := time.Unix(0, 0).UTC()
		if exportDays > 0 {
			start = end.AddDate(0, 0, -exportDays)
		}

		quotes, err := store.GetQuotesInRange(start, end)
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		n, err := writeQuotes(out, quotes)
		if err != nil {
			return err
		}
		log.Info().Int("records", n).Int("skipped", len(quotes)-n).Time("from", start).Msg("export complete")
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportDays, "days", 30, "number of days to export (0 for all)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "-", "output file, - for stdout")
}

// writeQuotes skips records whose feature vector does not match the current
// schema width, such as quotes served by an older encoder.
func writeQuotes(w io.Writer, quotes []storage.QuoteRecord) (int, error) {
	enc := json.NewEncoder(w)
	written := 0
	for _, q := range quotes {
		if len(q.Features) != features.NumFeatures {
			log.Warn().Str("quote_id", q.ID).Int("width", len(q.Features)).Msg("skipping quote with stale feature vector")
			continue
		}

		named := make(map[string]float64, features.NumFeatures)
		for i, name := range features.Schema {
			named[name] = q.Features[i]
		}

		if err := enc.Encode(exportRow{
			QuoteID:      q.ID,
			Timestamp:    q.Timestamp,
			Input:        q.Input,
			Features:     named,
			Charge:       q.Charge,
			ModelVersion: q.ModelVersion,
		}); err != nil {
			return written, fmt.Errorf("failed to write record: %w", err)
		}
		written++
	}
	return written, nil
}
