/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/fleetrota/internal/clock"
	"github.com/friendsincode/fleetrota/internal/dispatch"
	"github.com/friendsincode/fleetrota/internal/models"
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Rebuild today's slot inventory",
	Long:  "Discard today's slots and generate a fresh set, optionally anchored on one vehicle's history",
	RunE:  runRegenerate,
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List claimable slots",
	RunE:  runSlots,
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest the next slot for a vehicle",
	RunE:  runSuggest,
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim a departure for a vehicle and driver",
	RunE:  runClaim,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [assignment-id]",
	Short: "Cancel a committed assignment",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var (
	regenerateVehicle string

	suggestVehicle string
	suggestDriver  string

	claimVehicle  string
	claimDriver   string
	claimRoute    string
	claimAt       string
	claimOperator string
)

func init() {
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(cancelCmd)

	regenerateCmd.Flags().StringVar(&regenerateVehicle, "vehicle", "", "Vehicle whose history anchors the rotation")

	suggestCmd.Flags().StringVar(&suggestVehicle, "vehicle", "", "Vehicle id (required)")
	suggestCmd.Flags().StringVar(&suggestDriver, "driver", "", "Driver id (required)")
	_ = suggestCmd.MarkFlagRequired("vehicle")
	_ = suggestCmd.MarkFlagRequired("driver")

	claimCmd.Flags().StringVar(&claimVehicle, "vehicle", "", "Vehicle id (required)")
	claimCmd.Flags().StringVar(&claimDriver, "driver", "", "Driver id (required)")
	claimCmd.Flags().StringVar(&claimRoute, "route", "", "Route id (required)")
	claimCmd.Flags().StringVar(&claimAt, "at", "", "Departure as HH:MM today or RFC3339 (required)")
	claimCmd.Flags().StringVar(&claimOperator, "operator", "", "Operator recording the claim")
	for _, name := range []string{"vehicle", "driver", "route", "at"} {
		_ = claimCmd.MarkFlagRequired(name)
	}
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	batch, err := app.Engine.Inventory.Rebuild(cmd.Context(), regenerateVehicle, dispatch.ReasonManual)
	if err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "day %s: %d slots, %d purged\n", batch.Day, len(batch.Slots), batch.Purged)
	if batch.RotationStart != "" {
		fmt.Fprintf(out, "rotation starts with %s\n", batch.RotationStart)
	}
	return nil
}

func runSlots(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	slots, err := app.Engine.Inventory.ListClaimable(cmd.Context())
	if err != nil {
		return fmt.Errorf("list slots: %w", err)
	}
	if len(slots) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no claimable slots")
		return nil
	}
	return printSlots(cmd.OutOrStdout(), slots, app.Location)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	sug, err := app.Engine.Suggestions.Suggest(cmd.Context(), suggestVehicle, suggestDriver)
	if err != nil {
		return fmt.Errorf("suggest: %w", err)
	}

	out := cmd.OutOrStdout()
	if sug.Rebuilt {
		fmt.Fprintf(out, "inventory regenerated (%s)\n", sug.RebuildReason)
	}
	if sug.Empty() {
		fmt.Fprintln(out, "no slot available")
		return nil
	}
	fmt.Fprintln(out, "best:")
	if err := printSlots(out, []models.Slot{*sug.Best}, app.Location); err != nil {
		return err
	}
	if len(sug.Alternatives) > 0 {
		fmt.Fprintln(out, "alternatives:")
		return printSlots(out, sug.Alternatives, app.Location)
	}
	return nil
}

func runClaim(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	departure, err := parseDeparture(claimAt, app.Today(), app.Location)
	if err != nil {
		return err
	}

	a, err := app.Engine.Assignments.Claim(cmd.Context(), dispatch.ClaimRequest{
		VehicleID:   claimVehicle,
		DriverID:    claimDriver,
		RouteID:     claimRoute,
		DepartureAt: departure,
		OperatorID:  claimOperator,
	})
	if err != nil {
		return describeClaimError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "assignment %s: %s %s at %s\n",
		a.ID, a.VehicleID, a.RouteName, a.DepartureAt.In(app.Location).Format("15:04"))
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Engine.Assignments.Cancel(cmd.Context(), args[0]); err != nil {
		return describeClaimError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "assignment %s cancelled\n", args[0])
	return nil
}

// parseDeparture accepts HH:MM on the given service day or a full RFC3339 instant.
func parseDeparture(value, day string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if len(value) == len("15:04") {
		return clock.AtHour(day, value, loc)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid departure %q: want HH:MM or RFC3339", value)
	}
	return t, nil
}

func describeClaimError(err error) error {
	switch dispatch.KindOf(err) {
	case dispatch.KindPastDeparture:
		return fmt.Errorf("departure already passed: %w", err)
	case dispatch.KindInsufficientLeadTime:
		return fmt.Errorf("departure too close, inventory was refreshed: %w", err)
	case dispatch.KindScheduleConflict:
		var de *dispatch.Error
		if errors.As(err, &de) && de.Entity != "" {
			return fmt.Errorf("%s already busy around that time: %w", de.Entity, err)
		}
		// Route-level clashes carry their own detail.
		return fmt.Errorf("claim: %w", err)
	case "":
		return fmt.Errorf("claim: %w", err)
	}
	return err
}

func printSlots(w io.Writer, slots []models.Slot, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPARTURE\tROUTE\tPRIORITY\tREASON")
	for _, s := range slots {
		route := s.RouteName
		if s.External {
			route += " (ext)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.DepartureAt.In(loc).Format("15:04"), route, s.Priority, s.Reason)
	}
	return tw.Flush()
}
