package main

import (
	"fmt"
	"io"

	"insurance-charge/internal/features"
	"insurance-charge/internal/money"

	"github.com/spf13/cobra"
)

// recordFlags binds the six applicant attributes to a command. Defaults
// describe a 30 year old obese male smoker in the southeast.
func recordFlags(cmd *cobra.Command, rec *features.RawRecord) {
	cmd.Flags().IntVar(&rec.Age, "age", 30, "age in years")
	cmd.Flags().StringVar(&rec.Sex, "sex", "male", "sex: female or male")
	cmd.Flags().Float64Var(&rec.BMI, "bmi", 35.5, "body mass index")
	cmd.Flags().IntVar(&rec.Children, "children", 1, "number of dependents")
	cmd.Flags().StringVar(&rec.Smoker, "smoker", "yes", "smoker: no or yes")
	cmd.Flags().StringVar(&rec.Region, "region", "southeast", "region: northeast, northwest, southeast or southwest")
}

func printRecord(w io.Writer, rec features.RawRecord) {
	fmt.Fprintln(w, "Input Data:")
	fmt.Fprintf(w, "  age=%d sex=%s bmi=%.2f children=%d smoker=%s region=%s\n",
		rec.Age, rec.Sex, rec.BMI, rec.Children, rec.Smoker, rec.Region)
}

func printFeatures(w io.Writer, names []string, values func(string) float64) {
	fmt.Fprintln(w, "Features:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-22s %g\n", name, values(name))
	}
}

func printCharge(w io.Writer, charge float64, unknown []string) {
	for _, attr := range unknown {
		fmt.Fprintf(w, "Warning: unrecognized %s value, treated as the reference category\n", attr)
	}
	fmt.Fprintf(w, "Predicted Annual Charge: %s\n", money.Format(charge))
}
