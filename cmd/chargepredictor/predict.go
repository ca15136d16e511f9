package main

import (
	"fmt"

	"insurance-charge/internal/features"

	"github.com/spf13/cobra"
)

var (
	predictRecord features.RawRecord
	predictQuiet  bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the annual charge for one applicant using the local model",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadSettings()
		p := loadPredictor(c)
		defer p.Model().Close()

		pred, err := p.Predict(cmd.Context(), predictRecord)
		if err != nil {
			return fmt.Errorf("prediction failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if !predictQuiet {
			printRecord(out, predictRecord)
			printFeatures(out, features.Schema[:], func(name string) float64 {
				v, _ := pred.Features.Get(name)
				return v
			})
		}
		printCharge(out, pred.Charge, pred.UnknownCategories)
		return nil
	},
}

func init() {
	recordFlags(predictCmd, &predictRecord)
	predictCmd.Flags().BoolVarP(&predictQuiet, "quiet", "q", false, "print only the predicted charge")
}
