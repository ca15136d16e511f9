package main

import (
	"fmt"
	"sort"

	"insurance-charge/internal/client"
	"insurance-charge/internal/features"

	"github.com/spf13/cobra"
)

var (
	remoteRecord features.RawRecord
	remoteServer string
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Request a prediction from a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadSettings()
		if remoteServer == "" {
			remoteServer = c.ServerURL
		}

		resp, err := client.New(remoteServer, c.RequestTimeout).Predict(cmd.Context(), remoteRecord)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printRecord(out, remoteRecord)
		names := make([]string, 0, len(resp.Features))
		for name := range resp.Features {
			names = append(names, name)
		}
		sort.Strings(names)
		printFeatures(out, names, func(name string) float64 { return resp.Features[name] })
		printCharge(out, resp.Charge, resp.UnknownCategories)
		fmt.Fprintf(out, "Model %s, request %s, %.2fms\n", resp.ModelVersion, resp.RequestID, resp.Latency)
		return nil
	},
}

func init() {
	recordFlags(remoteCmd, &remoteRecord)
	remoteCmd.Flags().StringVar(&remoteServer, "server", "", "server base URL (overrides SERVER_URL)")
}
