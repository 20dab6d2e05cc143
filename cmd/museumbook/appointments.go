package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/wolfman30/museumbook/internal/booking"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/internal/release"
)

func releaseCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("release")
	museum := flagSet.String("museum", "", "use this museum's configured release time")
	asJSON := flagSet.Bool("json", false, "print the status as JSON")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}

	window, err := release.New(a.cfg.ReleaseTime, a.cfg.ReleaseWindow, a.cfg.ReleaseTimezone)
	if err != nil {
		return err
	}
	if *museum != "" {
		if window, err = a.museumWindow(ctx, window, booking.Museum(*museum)); err != nil {
			return err
		}
	}

	status := window.Status(time.Now())
	if *asJSON {
		return json.NewEncoder(a.stdout).Encode(status)
	}
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Status:\t%s\n", status.Phase.Label())
	fmt.Fprintf(w, "Can book:\t%t\n", status.CanBook)
	fmt.Fprintf(w, "Current time:\t%s\n", status.CurrentTime.Format(time.DateTime))
	fmt.Fprintf(w, "Release time:\t%s (%s)\n", status.ReleaseTime, window.Location())
	if status.TimeUntilRelease > 0 {
		fmt.Fprintf(w, "Until release:\t%s\n", release.FormatCountdown(status.TimeUntilRelease))
	}
	fmt.Fprintf(w, "Next release:\t%s\n", status.NextRelease.Format(time.DateTime))
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "\n%s\n", status.Notice())
	return nil
}

// museumWindow replaces the release clock with the one configured for museum.
func (a *app) museumWindow(ctx context.Context, window *release.Window, museum booking.Museum) (*release.Window, error) {
	rt, err := a.runtime(ctx)
	if err != nil {
		return nil, err
	}
	configs, err := rt.API.MuseumConfigs(ctx)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.Museum != museum || cfg.TicketReleaseTime == "" {
			continue
		}
		return window.WithClock(cfg.TicketReleaseTime)
	}
	a.logger.Warn("no release time configured for museum, using default", "museum", museum)
	return window, nil
}

func slotsCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("slots")
	museum := flagSet.String("museum", string(booking.MainMuseum), "museum (main or qin_han)")
	date := flagSet.String("date", "", "visit date YYYY-MM-DD (default: the booking lead date)")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	m := booking.Museum(*museum)
	if !m.Valid() {
		return fmt.Errorf("slots: unknown museum %q", *museum)
	}
	visitDate := *date
	if visitDate == "" {
		visitDate = booking.VisitDateIn(time.Now(), a.cfg.BookingLeadDays)
	}

	rt, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	slots, err := rt.API.TimeSlots(ctx, m, visitDate)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s, %s\n%s\n\n", m.Label(), visitDate, m.Address())
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tAVAILABLE\tCAPACITY\tOPEN")
	for _, s := range slots {
		fmt.Fprintf(w, "%s\t%d\t%d\t%t\n", s.TimeSlot, s.Available, s.Capacity, s.IsAvailable)
	}
	return w.Flush()
}

func appointmentsCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("appointments")
	status := flagSet.String("status", "", "filter by status (pending, confirmed, cancelled, completed)")
	museum := flagSet.String("museum", "", "filter by museum")
	date := flagSet.String("date", "", "filter by visit date YYYY-MM-DD")
	search := flagSet.String("search", "", "search visitor name or id number")
	page := flagSet.Int("page", 1, "page number")
	limit := flagSet.Int("limit", 20, "page size")
	all := flagSet.Bool("all", false, "list every account's appointments (admin only)")
	asJSON := flagSet.Bool("json", false, "print the page as JSON")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	q := museumapi.AppointmentQuery{
		Page:   *page,
		Limit:  *limit,
		Search: *search,
		Status: booking.AppointmentStatus(*status),
		Museum: booking.Museum(*museum),
		Date:   *date,
	}
	if q.Status != "" && !q.Status.Valid() {
		return fmt.Errorf("appointments: unknown status %q", *status)
	}

	rt, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	lister := rt.Lister()
	var result *museumapi.AppointmentPage
	if *all {
		if !rt.Session.IsAdmin() {
			return errors.New("appointments: --all requires an admin account")
		}
		result, err = lister.AdminList(ctx, q)
	} else {
		result, err = lister.List(ctx, q)
	}
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printAppointments(a, result)
}

func printAppointments(a *app, result *museumapi.AppointmentPage) error {
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tID NUMBER\tMUSEUM\tDATE\tSLOT\tSTATUS\tCONFIRMATION")
	for _, appt := range result.Appointments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			appt.ID, appt.VisitorName, appt.IDNumber, appt.Museum,
			appt.VisitDate, appt.TimeSlot, appt.Status, appt.ConfirmationCode)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if p := result.Pagination; p.TotalPages > 0 {
		fmt.Fprintf(a.stdout, "\nPage %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
	}
	return nil
}

func cancelCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("cancel")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("cancel: expected an appointment id")
	}

	rt, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	appt, err := rt.API.CancelAppointment(ctx, flagSet.Arg(0))
	if err != nil {
		return err
	}
	a.invalidateListings(ctx)
	fmt.Fprintf(a.stdout, "Appointment %s is now %s\n", flagSet.Arg(0), appt.Status)
	return nil
}

// invalidateListings drops cached appointment pages after a mutation.
func (a *app) invalidateListings(ctx context.Context) {
	if a.rt == nil || a.rt.Cache == nil {
		return
	}
	if err := a.rt.Cache.Invalidate(ctx); err != nil {
		a.logger.Warn("failed to invalidate listing cache", "error", err)
	}
}
