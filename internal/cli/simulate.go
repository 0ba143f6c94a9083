package cli

import (
	"github.com/spf13/cobra"

	"basis-monitor/internal/app"
)

var (
	simulateCurrency   string
	simulateInstrument string
	simulateTenor      float64
	simulateContract   float64
	simulateReference  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic observation through the alert path",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Currency:       simulateCurrency,
			Instrument:     simulateInstrument,
			TenorDays:      simulateTenor,
			ContractPrice:  simulateContract,
			ReferencePrice: simulateReference,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCurrency, "currency", "BTC", "Currency of the simulated contract")
	simulateCmd.Flags().StringVar(&simulateInstrument, "instrument", "", "Instrument name (defaults to a synthetic one)")
	simulateCmd.Flags().Float64Var(&simulateTenor, "tenor-days", 30, "Days until simulated expiry")
	simulateCmd.Flags().Float64Var(&simulateContract, "contract-price", 0, "Simulated futures price")
	simulateCmd.Flags().Float64Var(&simulateReference, "reference-price", 0, "Simulated reference price")
}
