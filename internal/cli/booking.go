package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/uma-arai/sbcntr-booking/internal/model"
	"github.com/uma-arai/sbcntr-booking/internal/service/booking"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newBookCmd() *cobra.Command {
	var (
		name, email, phone string
		date, at           string
		partySize          int
		requests           string
	)

	c := &cobra.Command{
		Use:   "book",
		Short: "Request a reservation (admitted as pending when the slot has room)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := parseBookingInput(name, email, phone, date, at, partySize, requests)
			if err != nil {
				return err
			}
			return withController(cmd, func(ctx context.Context, ac *booking.AdmissionController) error {
				res, err := ac.CreateBooking(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	c.Flags().StringVar(&name, "name", "", "customer name")
	c.Flags().StringVar(&email, "email", "", "customer e-mail")
	c.Flags().StringVar(&phone, "phone", "", "customer phone number")
	c.Flags().StringVar(&date, "date", "", "reservation date (YYYY-MM-DD)")
	c.Flags().StringVar(&at, "time", "", "reservation time (HH:MM)")
	c.Flags().IntVar(&partySize, "party-size", 2, "number of guests")
	c.Flags().StringVar(&requests, "requests", "", "special requests")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("time")

	return c
}

// parseBookingInput はフラグの値から予約リクエストを作成します
func parseBookingInput(name, email, phone, date, at string, partySize int, requests string) (model.BookingInput, error) {
	d, err := model.ParseDate(date)
	if err != nil {
		return model.BookingInput{}, &model.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	t, err := model.ParseTimeOfDay(at)
	if err != nil {
		return model.BookingInput{}, &model.ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	return model.BookingInput{
		CustomerName:    name,
		Email:           email,
		Phone:           phone,
		Date:            d,
		Time:            t,
		PartySize:       partySize,
		SpecialRequests: requests,
	}, nil
}

func newLookupCmd() *cobra.Command {
	var (
		id, email, status, date string
		bySchedule              bool
		limit                   int
	)

	c := &cobra.Command{
		Use:   "lookup",
		Short: "Find reservations by id, e-mail, status or date",
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria := model.Criteria{
				ID:         id,
				Email:      email,
				Status:     model.Status(status),
				BySchedule: bySchedule,
				Limit:      limit,
			}
			if date != "" {
				d, err := model.ParseDate(date)
				if err != nil {
					return &model.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
				}
				criteria.Date = &d
			}
			return withController(cmd, func(ctx context.Context, ac *booking.AdmissionController) error {
				list, err := ac.Lookup(ctx, criteria)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}

	c.Flags().StringVar(&id, "id", "", "reservation id")
	c.Flags().StringVar(&email, "email", "", "customer e-mail")
	c.Flags().StringVar(&status, "status", "", "pending, confirmed, cancelled or completed")
	c.Flags().StringVar(&date, "date", "", "reservation date (YYYY-MM-DD)")
	c.Flags().BoolVar(&bySchedule, "by-schedule", false, "order by reservation date and time instead of creation time")
	c.Flags().IntVar(&limit, "limit", 0, "maximum number of reservations (0 = no limit)")

	return c
}

func newStatusCmd() *cobra.Command {
	var notes string

	c := &cobra.Command{
		Use:   "status <id> <pending|confirmed|cancelled|completed>",
		Short: "Change the status of a reservation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := model.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withController(cmd, func(ctx context.Context, ac *booking.AdmissionController) error {
				res, err := ac.UpdateStatus(ctx, args[0], to, notes)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	c.Flags().StringVar(&notes, "notes", "", "admin notes (kept unchanged when empty)")

	return c
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, func(ctx context.Context, ac *booking.AdmissionController) error {
				if err := ac.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show today's bookings, pending bookings and the most recent reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, func(ctx context.Context, ac *booking.AdmissionController) error {
				stats, err := ac.Dashboard(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newAvailabilityCmd() *cobra.Command {
	var date string

	c := &cobra.Command{
		Use:   "availability",
		Short: "Show remaining capacity of each hourly slot on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := model.ParseDate(date)
			if err != nil {
				return &model.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
			}
			return withController(cmd, func(ctx context.Context, ac *booking.AdmissionController) error {
				slots, err := ac.Availability(ctx, d)
				if err != nil {
					return err
				}
				return printAvailability(cmd.OutOrStdout(), slots)
			})
		},
	}
	c.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	_ = c.MarkFlagRequired("date")

	return c
}

func printAvailability(w io.Writer, slots []model.SlotAvailability) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tOCCUPIED\tCAPACITY\tREMAINING")
	for _, s := range slots {
		fmt.Fprintf(tw, "%02d:00\t%d\t%d\t%d\n", s.Slot.Hour, s.Occupied, s.Capacity, s.Remaining())
	}
	return tw.Flush()
}
