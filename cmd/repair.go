package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/haulboard/app"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Run one cut info repair pass and print the number of corrected rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *app.Service) error {
			n, err := svc.Repair(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)
}
