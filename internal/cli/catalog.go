package cli

import (
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List forecastable targets and trained models",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Catalog(cmd.Context())
	},
}
