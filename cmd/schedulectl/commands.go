package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-scheduler/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/calendar"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/dashboard"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// cli holds what every subcommand needs. now is swapped in tests.
type cli struct {
	out     io.Writer
	cfg     *appconfig.Config
	backend string
	token   string
	now     func() time.Time
}

func newRootCmd(out io.Writer) *cobra.Command {
	return (&cli{out: out, cfg: appconfig.Load(), now: time.Now}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schedulectl",
		Short:         "Inspect the clinic calendar and availability from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.backend, "backend", c.cfg.BackendBaseURL, "Clinic backend base URL")
	root.PersistentFlags().StringVar(&c.token, "token", "", "Bearer token forwarded to the backend")

	root.AddCommand(c.calendarCmd(calendar.UnitWeek), c.calendarCmd(calendar.UnitMonth), c.doctorsCmd(), c.slotsCmd(), c.queueCmd())
	return root
}

func (c *cli) client() *clinicapi.Client {
	cfg := *c.cfg
	cfg.BackendBaseURL = c.backend
	client := mainconfig.NewClinicClient(&cfg, nil, logging.New("error"))
	if c.token != "" {
		client = client.WithSession(clinicapi.Session{Token: c.token})
	}
	return client
}

func (c *cli) service(client *clinicapi.Client) *dashboard.Service {
	logger := logging.New("error")
	feed := dashboard.NewFeed(client, dashboard.NewMemoryCache(), 0, nil, logger)
	return dashboard.NewService(client, feed, dashboard.Options{
		Grid:    mainconfig.GridConfig(c.cfg),
		Builder: &calendar.Builder{Location: c.cfg.Location(), Now: c.now},
	}, logger)
}

func (c *cli) calendarCmd(unit calendar.Unit) *cobra.Command {
	var offset int
	var ref string
	cmd := &cobra.Command{
		Use:   string(unit),
		Short: fmt.Sprintf("Show the %s calendar with placed appointments", unit),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := dashboard.ViewRequest{Unit: unit, Offset: offset}
			if ref != "" {
				t, err := time.ParseInLocation(appointments.DateLayout, ref, c.cfg.Location())
				if err != nil {
					return fmt.Errorf("--ref must be YYYY-MM-DD: %w", err)
				}
				req.Ref = t
			}
			view, err := c.service(c.client()).CalendarView(cmd.Context(), req)
			if err != nil {
				return err
			}
			if unit == calendar.UnitMonth {
				return c.printMonth(view)
			}
			return c.printWeek(view)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Periods to move from the reference date (negative for the past)")
	cmd.Flags().StringVar(&ref, "ref", "", "Reference date YYYY-MM-DD (default today)")
	return cmd
}

func (c *cli) printWeek(view *dashboard.CalendarView) error {
	fmt.Fprintln(c.out, view.Header)
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for i, cell := range view.Cells {
		marker := ""
		if cell.IsToday {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s %s%s\t", view.Weekdays[i], cell.Date.Format("Jan 2"), marker)
		var entries []string
		for _, p := range view.Placed {
			if p.DayIndex != i || p.Record.Time == nil {
				continue
			}
			entries = append(entries, fmt.Sprintf("%s #%d %s (%s)", p.Record.Time.Format(appointments.TimeLayout), p.Record.ID, p.Record.Type, p.Record.Status))
		}
		if len(entries) == 0 {
			entries = []string{"-"}
		}
		fmt.Fprintf(tw, "%s\n", strings.Join(entries, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	c.printDrops(view.Dropped)
	fmt.Fprintf(c.out, "pending consultations %d, open lab tests %d\n", view.Stats.PendingConsultations, view.Stats.OpenLabTests)
	return nil
}

func (c *cli) printMonth(view *dashboard.CalendarView) error {
	counts := make(map[int]int)
	for _, mp := range view.MonthPlaced {
		counts[mp.CellIndex]++
	}
	fmt.Fprintln(c.out, view.Month)
	tw := tabwriter.NewWriter(c.out, 0, 4, 1, ' ', tabwriter.AlignRight)
	for _, wd := range view.Weekdays {
		fmt.Fprintf(tw, "%s\t", wd)
	}
	fmt.Fprintln(tw)
	for i, cell := range view.Cells {
		label := ""
		if !cell.Blank {
			label = fmt.Sprintf("%d", cell.Date.Day())
			if n := counts[i]; n > 0 {
				label += fmt.Sprintf("(%d)", n)
			}
		}
		fmt.Fprintf(tw, "%s\t", label)
		if i%7 == 6 {
			fmt.Fprintln(tw)
		}
	}
	if len(view.Cells)%7 != 0 {
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func (c *cli) printDrops(dropped map[string]int) {
	if len(dropped) == 0 {
		return
	}
	reasons := make([]string, 0, len(dropped))
	for r := range dropped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%s=%d", r, dropped[r]))
	}
	fmt.Fprintf(c.out, "not shown: %s\n", strings.Join(parts, " "))
}

func (c *cli) doctorsCmd() *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "List bookable doctors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doctors, err := c.client().ListDoctors(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDEPARTMENT")
			for _, d := range doctors {
				if department != "" && !strings.EqualFold(d.Department, department) {
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", d.ID, d.FullName, d.Department)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "Only doctors in this department")
	return cmd
}

func (c *cli) slotsCmd() *cobra.Command {
	var doctorID int64
	var date string
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show a doctor's open slots on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date == "" {
				date = c.now().In(c.cfg.Location()).Format(appointments.DateLayout)
			}
			slots, err := c.client().Slots(cmd.Context(), doctorID, date)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				fmt.Fprintf(c.out, "no availability on %s\n", date)
				return nil
			}
			fmt.Fprintf(c.out, "%s: %s\n", date, strings.Join(slots, " "))
			return nil
		},
	}
	cmd.Flags().Int64Var(&doctorID, "doctor", 0, "Doctor ID")
	cmd.Flags().StringVar(&date, "date", "", "Date YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func (c *cli) queueCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show the oldest pending appointments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.BackendTimeout+5*time.Second)
			defer cancel()
			records, err := c.service(c.client()).Pending(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPATIENT\tTYPE\tWHEN")
			for _, r := range records {
				when := "-"
				if r.Time != nil {
					when = r.Time.Format("2006-01-02 15:04")
				}
				name := r.PatientName
				if name == "" {
					name = fmt.Sprintf("#%d", r.PatientID)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, name, r.Type, when)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum rows")
	return cmd
}
