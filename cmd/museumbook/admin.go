package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/wolfman30/museumbook/internal/app/bootstrap"
	"github.com/wolfman30/museumbook/internal/booking"
	"github.com/wolfman30/museumbook/internal/museumapi"
)

var adminCommands = map[string]func(ctx context.Context, a *app, rt *bootstrap.Runtime, args []string) error{
	"dashboard":   adminDashboard,
	"health":      adminHealth,
	"confirm-all": adminConfirmAll,
	"status":      adminStatus,
	"users":       adminUsers,
	"configs":     adminConfigs,
}

func adminCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		names := make([]string, 0, len(adminCommands))
		for name := range adminCommands {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(a.stderr, "Usage: museumbook admin <%s>\n", strings.Join(names, "|"))
		return nil
	}
	sub, ok := adminCommands[args[0]]
	if !ok {
		return fmt.Errorf("admin: unknown command %q", args[0])
	}

	rt, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	if !rt.Session.IsAdmin() {
		return errors.New("admin: this account is not an administrator")
	}
	return sub(ctx, a, rt, args[1:])
}

func adminDashboard(ctx context.Context, a *app, rt *bootstrap.Runtime, args []string) error {
	if ok, err := parseFlags(a.newFlagSet("admin dashboard"), args); !ok {
		return err
	}
	stats, err := rt.API.Dashboard(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total appointments:\t%d\n", stats.TotalAppointments)
	fmt.Fprintf(w, "Today:\t%d\n", stats.TodayAppointments)
	fmt.Fprintf(w, "Users:\t%d\n", stats.TotalUsers)
	fmt.Fprintf(w, "Pending:\t%d\n", stats.StatusBreakdown.Pending)
	fmt.Fprintf(w, "Confirmed:\t%d\n", stats.StatusBreakdown.Confirmed)
	fmt.Fprintf(w, "Cancelled:\t%d\n", stats.StatusBreakdown.Cancelled)
	fmt.Fprintf(w, "Completed:\t%d\n", stats.StatusBreakdown.Completed)
	museums := make([]string, 0, len(stats.MuseumBreakdown))
	for m := range stats.MuseumBreakdown {
		museums = append(museums, m)
	}
	sort.Strings(museums)
	for _, m := range museums {
		fmt.Fprintf(w, "%s:\t%d\n", booking.Museum(m).Label(), stats.MuseumBreakdown[m])
	}
	return w.Flush()
}

func adminHealth(ctx context.Context, a *app, rt *bootstrap.Runtime, args []string) error {
	if ok, err := parseFlags(a.newFlagSet("admin health"), args); !ok {
		return err
	}
	h, err := rt.API.Health(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(h)
}

func adminConfirmAll(ctx context.Context, a *app, rt *bootstrap.Runtime, args []string) error {
	if ok, err := parseFlags(a.newFlagSet("admin confirm-all"), args); !ok {
		return err
	}
	result, err := rt.API.ConfirmAllPending(ctx)
	if err != nil {
		return err
	}
	a.invalidateListings(ctx)
	fmt.Fprintf(a.stdout, "Confirmed %d pending appointments\n", result.Confirmed)
	return nil
}

func adminStatus(ctx context.Context, a *app, rt *bootstrap.Runtime, args []string) error {
	flagSet := a.newFlagSet("admin status")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	if flagSet.NArg() != 2 {
		return errors.New("admin status: expected <appointment id> <status>")
	}
	appt, err := rt.API.UpdateAppointmentStatus(ctx, flagSet.Arg(0), booking.AppointmentStatus(flagSet.Arg(1)))
	if err != nil {
		return err
	}
	a.invalidateListings(ctx)
	fmt.Fprintf(a.stdout, "Appointment %s is now %s\n", flagSet.Arg(0), appt.Status)
	return nil
}

func adminUsers(ctx context.Context, a *app, rt *bootstrap.Runtime, args []string) error {
	flagSet := a.newFlagSet("admin users")
	role := flagSet.String("role", "", "filter by role (admin or user)")
	search := flagSet.String("search", "", "search by email")
	page := flagSet.Int("page", 1, "page number")
	limit := flagSet.Int("limit", 20, "page size")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}
	result, err := rt.API.Users(ctx, museumapi.UserQuery{
		Page:   *page,
		Limit:  *limit,
		Search: *search,
		Role:   museumapi.Role(*role),
	})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tROLE\tACTIVE")
	for _, u := range result.Users {
		active := "yes"
		if u.IsActive != nil && !*u.IsActive {
			active = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Identifier(), u.Email, u.Role, active)
	}
	return w.Flush()
}

func adminConfigs(ctx context.Context, a *app, rt *bootstrap.Runtime, args []string) error {
	if ok, err := parseFlags(a.newFlagSet("admin configs"), args); !ok {
		return err
	}
	configs, err := rt.API.AdminMuseumConfigs(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MUSEUM\tNAME\tCAPACITY\tADVANCE DAYS\tRELEASE\tACTIVE\tSLOTS")
	for _, c := range configs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%t\t%s\n",
			c.Museum, c.Name, c.MaxDailyCapacity, c.BookingAdvanceDays,
			c.TicketReleaseTime, c.IsActive, strings.Join(c.RegularTimeSlots, " "))
	}
	return w.Flush()
}
