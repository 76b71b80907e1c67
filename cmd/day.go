package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/haulboard/app"
	"github.com/kilianp07/haulboard/core/model"
)

var (
	dayDate string
	dayJSON bool
)

var dayCmd = &cobra.Command{
	Use:   "day",
	Short: "Print the plan of a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		day := model.Day(time.Now())
		if dayDate != "" {
			d, err := model.ParseDay(dayDate)
			if err != nil {
				return err
			}
			day = d
		}
		return withService(func(ctx context.Context, svc *app.Service) error {
			plan, err := svc.Board.ListDay(ctx, day)
			if err != nil {
				return err
			}
			if dayJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			return printPlan(ctx, cmd.OutOrStdout(), svc, plan)
		})
	},
}

func init() {
	dayCmd.Flags().StringVar(&dayDate, "date", "", "day to print (YYYY-MM-DD), defaults to today")
	dayCmd.Flags().BoolVar(&dayJSON, "json", false, "print the plan as JSON")
	rootCmd.AddCommand(dayCmd)
}

func printPlan(ctx context.Context, w io.Writer, svc *app.Service, plan model.DayPlan) error {
	if _, err := fmt.Fprintf(w, "%s\n", plan.Date.Format(model.DayLayout)); err != nil {
		return err
	}
	for _, sp := range plan.Slots {
		driver := svc.Registry.DisplayName(ctx, model.KindDriver, model.StrVal(sp.Slot.DriverID))
		truck := svc.Registry.DisplayName(ctx, model.KindTruck, model.StrVal(sp.Slot.TruckID))
		if _, err := fmt.Fprintf(w, "  slot %d  driver=%q truck=%q\n", sp.Slot.Number, driver, truck); err != nil {
			return err
		}
		for _, at := range sp.Transports {
			sent := ""
			if at.Transport.SentToDriver {
				sent = " (sent)"
			}
			if _, err := fmt.Fprintf(w, "    %d. %s%s\n", at.Assignment.SlotOrder, at.Transport.Reference, sent); err != nil {
				return err
			}
		}
	}
	if len(plan.Unassigned) > 0 {
		if _, err := fmt.Fprintf(w, "  unassigned: %d\n", len(plan.Unassigned)); err != nil {
			return err
		}
	}
	return nil
}
