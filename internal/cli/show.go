package cli

import (
	"github.com/spf13/cobra"

	"basis-monitor/internal/app"
)

var (
	showCurrency string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the latest term structure for a currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ShowOptions{
			Currency: showCurrency,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showCurrency, "currency", "BTC", "Currency to display")
}
