package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/calendar"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const defaultPendingLimit = 5

// StaffBackend is the clinic API surface the staff view uses.
type StaffBackend interface {
	AppointmentLister
	ListDoctors(ctx context.Context) ([]clinicapi.Doctor, error)
	ListPatients(ctx context.Context) ([]clinicapi.Patient, error)
	UpdateStatus(ctx context.Context, update appointments.StatusUpdate) error
	BookForPatient(ctx context.Context, req clinicapi.StaffBookingRequest) (*clinicapi.BookingResult, error)
	BookLabForPatient(ctx context.Context, req clinicapi.StaffLabRequest) (*clinicapi.BookingResult, error)
}

// Announcer tells other gateway instances that appointments changed.
type Announcer interface {
	Announce(ctx context.Context, eventType string) error
}

// PlacementObserver receives per-reason drop counts of each layout.
type PlacementObserver interface {
	ObservePlacementDrops(dropped map[string]int)
}

// Options configure a Service.
type Options struct {
	Grid         calendar.GridConfig
	Builder      *calendar.Builder
	PendingLimit int
	Announcer    Announcer
	Observer     PlacementObserver
}

// Service answers staff dashboard requests.
type Service struct {
	backend      StaffBackend
	feed         *Feed
	grid         calendar.GridConfig
	builder      *calendar.Builder
	pendingLimit int
	announcer    Announcer
	observer     PlacementObserver
	tracer       trace.Tracer
	logger       *logging.Logger
}

// NewService creates a dashboard over feed. Grid.Location defaults to the
// builder's location so placements and "today" agree.
func NewService(backend StaffBackend, feed *Feed, opts Options, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Builder == nil {
		opts.Builder = calendar.NewBuilder(opts.Grid.Location)
	}
	if opts.Grid.Location == nil {
		opts.Grid.Location = opts.Builder.Location
	}
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = defaultPendingLimit
	}
	return &Service{
		backend:      backend,
		feed:         feed,
		grid:         opts.Grid,
		builder:      opts.Builder,
		pendingLimit: opts.PendingLimit,
		announcer:    opts.Announcer,
		observer:     opts.Observer,
		tracer:       otel.Tracer("clinic.internal.dashboard"),
		logger:       logger.Component("dashboard"),
	}
}

// ViewRequest selects a calendar window. A zero Ref means today.
type ViewRequest struct {
	Unit   calendar.Unit
	Offset int
	Ref    time.Time
}

// CalendarView is a rendered window: cells plus either week placements or
// month placements, and the labels around them.
type CalendarView struct {
	Unit        calendar.Unit             `json:"unit"`
	Offset      int                       `json:"offset"`
	Header      string                    `json:"header"`
	Month       string                    `json:"month,omitempty"`
	Weekdays    []string                  `json:"weekdays"`
	HourLabels  []string                  `json:"hour_labels,omitempty"`
	HourHeight  float64                   `json:"hour_height,omitempty"`
	Cells       []calendar.Cell           `json:"cells"`
	Placed      []calendar.Placed         `json:"placed,omitempty"`
	MonthPlaced []calendar.MonthPlacement `json:"month_placed,omitempty"`
	Dropped     map[string]int            `json:"dropped,omitempty"`
	Stats       appointments.QueueStats   `json:"stats"`
}

// CalendarView lays the current feed out on the requested window.
func (s *Service) CalendarView(ctx context.Context, req ViewRequest) (*CalendarView, error) {
	if req.Unit == "" {
		req.Unit = calendar.UnitWeek
	}
	ctx, span := s.tracer.Start(ctx, "dashboard.calendar_view")
	defer span.End()
	span.SetAttributes(attribute.String("calendar.unit", string(req.Unit)), attribute.Int("calendar.offset", req.Offset))

	records, err := s.feed.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: load appointments: %w", err)
	}

	cells := s.builder.Window(req.Ref, req.Offset, req.Unit)
	rng := calendar.RangeOf(cells)
	view := &CalendarView{
		Unit:     req.Unit,
		Offset:   req.Offset,
		Header:   calendar.HeaderLabel(rng, s.builder.Today()),
		Weekdays: calendar.WeekdayLabels(),
		Cells:    cells,
		Stats:    appointments.ComputeStats(records),
	}

	switch req.Unit {
	case calendar.UnitMonth:
		view.Month = calendar.MonthLabel(rng)
		view.MonthPlaced = calendar.PlaceInMonth(records, cells, s.grid)
	default:
		placed, report := calendar.PlaceWithReport(records, rng, s.grid)
		view.Placed = placed
		view.HourLabels = calendar.HourLabels(s.grid.StartHour, s.grid.EndHour)
		view.HourHeight = s.grid.HourHeight
		view.Dropped = make(map[string]int, len(report.Dropped))
		for reason, n := range report.Dropped {
			view.Dropped[string(reason)] = n
		}
		if s.observer != nil {
			s.observer.ObservePlacementDrops(view.Dropped)
		}
	}
	return view, nil
}

// Overview is the staff sidebar: counters, the first pending requests and
// the lookup lists for the booking form.
type Overview struct {
	Stats    appointments.QueueStats `json:"stats"`
	Pending  []appointments.Record   `json:"pending"`
	Doctors  []clinicapi.Doctor      `json:"doctors"`
	Patients []clinicapi.Patient     `json:"patients"`
}

// Overview loads the feed, doctors and patients in parallel.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var (
		records  []appointments.Record
		doctors  []clinicapi.Doctor
		patients []clinicapi.Patient
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.feed.Load(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		doctors, err = s.backend.ListDoctors(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		patients, err = s.backend.ListPatients(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: overview: %w", err)
	}
	if doctors == nil {
		doctors = []clinicapi.Doctor{}
	}
	if patients == nil {
		patients = []clinicapi.Patient{}
	}
	return &Overview{
		Stats:    appointments.ComputeStats(records),
		Pending:  appointments.PendingConsultations(records, s.pendingLimit),
		Doctors:  doctors,
		Patients: patients,
	}, nil
}

// Appointments returns the feed, optionally narrowed to one status.
func (s *Service) Appointments(ctx context.Context, status appointments.Status) ([]appointments.Record, error) {
	records, err := s.feed.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: load appointments: %w", err)
	}
	if status == "" {
		return records, nil
	}
	return appointments.Filter(records, func(r appointments.Record) bool { return r.Status == status }), nil
}

// Pending returns up to limit pending consultations, earliest first.
func (s *Service) Pending(ctx context.Context, limit int) ([]appointments.Record, error) {
	if limit <= 0 {
		limit = s.pendingLimit
	}
	records, err := s.feed.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: load appointments: %w", err)
	}
	return appointments.PendingConsultations(records, limit), nil
}

// UpdateStatus validates and applies a staff status change, then drops the
// cached feed. Validation failures never reach the backend.
func (s *Service) UpdateStatus(ctx context.Context, update appointments.StatusUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "dashboard.update_status")
	defer span.End()
	span.SetAttributes(attribute.Int64("clinic.appointment_id", update.ItemID), attribute.String("clinic.status", string(update.NewStatus)))

	if err := s.backend.UpdateStatus(ctx, update); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dashboard: update status: %w", err)
	}
	s.logger.Info("appointment status updated", "appointment_id", update.ItemID, "status", update.NewStatus, "new_date", update.NewDate, "new_time", update.NewTime, "has_result", update.NewResult != "")
	s.changed(ctx, notify.EventStatusUpdate)
	return nil
}

// Act applies a named staff action. The action decides the status; the
// rest of update (reschedule date and time, lab result) is sent as given.
func (s *Service) Act(ctx context.Context, action appointments.Action, update appointments.StatusUpdate) error {
	status, ok := appointments.StatusFor(action)
	if !ok {
		return fmt.Errorf("%w: action %q", appointments.ErrUnknownStatus, action)
	}
	update.NewStatus = status
	return s.UpdateStatus(ctx, update)
}

// BookForPatient books on behalf of a walk-in patient.
func (s *Service) BookForPatient(ctx context.Context, req clinicapi.StaffBookingRequest) (*clinicapi.BookingResult, error) {
	res, err := s.backend.BookForPatient(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dashboard: book for patient: %w", err)
	}
	s.logger.Info("staff booking created", "doctor_id", req.DoctorID, "date", req.Date, "slot", req.TimeSlot)
	s.changed(ctx, notify.EventNewAppointment)
	return res, nil
}

// BookLabForPatient orders a lab test for a walk-in patient.
func (s *Service) BookLabForPatient(ctx context.Context, req clinicapi.StaffLabRequest) (*clinicapi.BookingResult, error) {
	res, err := s.backend.BookLabForPatient(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dashboard: book lab test: %w", err)
	}
	s.logger.Info("lab test ordered", "test", req.TestName, "lab_id", res.ID)
	s.changed(ctx, notify.EventNewAppointment)
	return res, nil
}

// Refresh drops the cached feed, as a push event would.
func (s *Service) Refresh(ctx context.Context) {
	s.feed.Invalidate(ctx)
}

func (s *Service) changed(ctx context.Context, eventType string) {
	s.feed.Invalidate(ctx)
	if s.announcer == nil {
		return
	}
	if err := s.announcer.Announce(ctx, eventType); err != nil {
		s.logger.Warn("announce change failed", "event", eventType, "error", err)
	}
}
