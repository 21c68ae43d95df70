package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const defaultFetchTimeout = 15 * time.Second

// Slot fetch and booking outcomes reported to the Observer.
const (
	FetchApplied = "applied"
	FetchStale   = "stale"
	FetchError   = "error"

	BookingSucceeded = "success"
	BookingFailed    = "failed"
	BookingDiscarded = "discarded"
)

// Backend is the part of the clinic API the wizard needs.
type Backend interface {
	ListDoctors(ctx context.Context) ([]clinicapi.Doctor, error)
	Slots(ctx context.Context, doctorID int64, date string) ([]string, error)
	Book(ctx context.Context, req clinicapi.BookingRequest) (*clinicapi.BookingResult, error)
}

// Observer receives wizard outcomes, typically for metrics.
type Observer interface {
	ObserveSlotFetch(outcome string)
	ObserveBooking(outcome string)
}

// Options configure a Wizard.
type Options struct {
	Pricing      Pricing
	Departments  []string
	Location     *time.Location
	Now          func() time.Time
	FetchTimeout time.Duration
	Observer     Observer
}

type slotKey struct {
	doctorID int64
	date     string
}

// Wizard is one patient's booking flow. All methods are safe for
// concurrent use; slot fetches run in the background and only the most
// recent request may update the visible slot set.
type Wizard struct {
	backend  Backend
	session  clinicapi.Session
	pricing  Pricing
	depts    []string
	loc      *time.Location
	now      func() time.Time
	timeout  time.Duration
	observer Observer
	logger   *logging.Logger
	tracer   trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	idle         *sync.Cond
	inflight     int
	step         Step
	draft        Draft
	doctors      []clinicapi.Doctor
	slots        []string
	slotState    SlotState
	slotKey      slotKey
	slotGen      uint64
	submitting   bool
	notice       *Notice
	confirmation *Confirmation
}

// New starts a fresh flow for session. The draft date defaults to today in
// the clinic's location and the consultation type to online.
func New(backend Backend, session clinicapi.Session, opts Options, logger *logging.Logger) *Wizard {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Pricing == (Pricing{}) {
		opts.Pricing = DefaultPricing()
	}
	if len(opts.Departments) == 0 {
		opts.Departments = DefaultDepartments
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Wizard{
		backend:   backend,
		session:   session,
		pricing:   opts.Pricing,
		depts:     slices.Clone(opts.Departments),
		loc:       opts.Location,
		now:       opts.Now,
		timeout:   opts.FetchTimeout,
		observer:  opts.Observer,
		logger:    logger.Component("booking"),
		tracer:    otel.Tracer("clinic.internal.booking"),
		ctx:       ctx,
		cancel:    cancel,
		slotState: SlotIdle,
	}
	w.idle = sync.NewCond(&w.mu)
	w.draft = w.freshDraft()
	return w
}

func (w *Wizard) freshDraft() Draft {
	return Draft{
		Date: w.today(),
		Type: appointments.TypeOnlineVideo,
	}
}

func (w *Wizard) today() string {
	return w.now().In(w.loc).Format(appointments.DateLayout)
}

// LoadDoctors fetches the doctor list. A failure leaves the previous list
// in place and surfaces a backend notice.
func (w *Wizard) LoadDoctors(ctx context.Context) error {
	doctors, err := w.backend.ListDoctors(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.notice = backendNotice(err)
		w.logger.Warn("doctor list load failed", "error", err)
		return fmt.Errorf("booking: load doctors: %w", err)
	}
	w.doctors = doctors
	return nil
}

// SelectDepartment picks a department and moves to specialist selection.
// Any previously chosen doctor, slot and availability are dropped.
func (w *Wizard) SelectDepartment(dept string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		return ErrTerminal
	}
	if w.submitting {
		return ErrSubmitInProgress
	}
	canonical, ok := w.matchDepartment(dept)
	if !ok {
		return w.rejectLocked(fmt.Errorf("%w: %q", ErrUnknownDepartment, dept))
	}
	w.draft.Department = canonical
	w.draft.Doctor = nil
	w.draft.Slot = ""
	w.resetSlotsLocked()
	w.notice = nil
	w.step = StepSelectSpecialist
	return nil
}

func (w *Wizard) matchDepartment(dept string) (string, bool) {
	dept = strings.TrimSpace(dept)
	for _, d := range w.depts {
		if strings.EqualFold(d, dept) {
			return d, true
		}
	}
	return "", false
}

// Specialists lists the loaded doctors in the selected department.
func (w *Wizard) Specialists() []clinicapi.Doctor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.specialistsLocked()
}

func (w *Wizard) specialistsLocked() []clinicapi.Doctor {
	out := make([]clinicapi.Doctor, 0)
	if w.draft.Department == "" {
		return out
	}
	for _, d := range w.doctors {
		if strings.EqualFold(d.Department, w.draft.Department) {
			out = append(out, d)
		}
	}
	return out
}

// SelectDoctor picks a specialist. From specialist selection it moves to
// the schedule step; on the schedule step it replaces the doctor. Either
// way the slot is cleared and exactly one fetch starts for the new doctor
// and the current date.
func (w *Wizard) SelectDoctor(doctorID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		return ErrTerminal
	}
	if w.step != StepSelectSpecialist && w.step != StepSelectSchedule {
		return ErrWrongStep
	}
	var doc *clinicapi.Doctor
	for i := range w.doctors {
		if w.doctors[i].ID == doctorID {
			d := w.doctors[i]
			doc = &d
			break
		}
	}
	if doc == nil {
		return w.rejectLocked(fmt.Errorf("%w: %d", ErrUnknownDoctor, doctorID))
	}
	if !strings.EqualFold(doc.Department, w.draft.Department) {
		return w.rejectLocked(fmt.Errorf("%w: %s is in %s", ErrDepartmentMismatch, doc.FullName, doc.Department))
	}
	w.draft.Doctor = doc
	w.draft.Slot = ""
	w.notice = nil
	w.step = StepSelectSchedule
	w.startSlotFetchLocked()
	return nil
}

// SelectDate changes the appointment date on the schedule step. The slot
// is cleared and availability refetched; picking the current date again
// changes nothing.
func (w *Wizard) SelectDate(date string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		return ErrTerminal
	}
	if w.step != StepSelectSchedule {
		return ErrWrongStep
	}
	date = strings.TrimSpace(date)
	day, err := time.ParseInLocation(appointments.DateLayout, date, w.loc)
	if err != nil {
		return w.rejectLocked(fmt.Errorf("%w: %q", ErrInvalidDate, date))
	}
	if date < w.today() {
		return w.rejectLocked(fmt.Errorf("%w: %s", ErrDateInPast, day.Format(appointments.DateLayout)))
	}
	if date == w.draft.Date {
		return nil
	}
	w.draft.Date = date
	w.draft.Slot = ""
	w.notice = nil
	if w.draft.Doctor != nil {
		w.startSlotFetchLocked()
	}
	return nil
}

// RefreshSlots refetches availability for the current doctor and date,
// typically after a failed fetch.
func (w *Wizard) RefreshSlots() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		return ErrTerminal
	}
	if w.step != StepSelectSchedule || w.draft.Doctor == nil {
		return ErrWrongStep
	}
	w.draft.Slot = ""
	w.notice = nil
	w.startSlotFetchLocked()
	return nil
}

// SelectSlot picks a time from the most recently fetched availability.
func (w *Wizard) SelectSlot(slot string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		return ErrTerminal
	}
	if w.step != StepSelectSchedule {
		return ErrWrongStep
	}
	slot = strings.TrimSpace(slot)
	if w.slotState != SlotReady || !slices.Contains(w.slots, slot) {
		return w.rejectLocked(fmt.Errorf("%w: %q", ErrSlotUnavailable, slot))
	}
	w.draft.Slot = slot
	w.notice = nil
	return nil
}

// SetType chooses online or clinic. The price follows on the next read.
func (w *Wizard) SetType(t string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		return ErrTerminal
	}
	if w.submitting {
		return ErrSubmitInProgress
	}
	typ, err := appointments.ParseType(t)
	if err == nil {
		_, err = w.pricing.For(typ)
	}
	if err != nil {
		return w.rejectLocked(fmt.Errorf("%w: %q", ErrUnsupportedType, t))
	}
	w.draft.Type = typ
	return nil
}

// Price is the fee for the draft's current consultation type.
func (w *Wizard) Price() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.priceLocked()
}

func (w *Wizard) priceLocked() int64 {
	cents, _ := w.pricing.For(w.draft.Type)
	return cents
}

// Advance moves to the next step when the current step's required field
// is set. It reports whether the step changed; a blocked advance is not an
// error and only leaves a validation notice.
func (w *Wizard) Advance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready bool
	var missing string
	switch w.step {
	case StepSelectDepartment:
		ready, missing = w.draft.Department != "", "select a department"
	case StepSelectSpecialist:
		ready, missing = w.draft.Doctor != nil, "select a specialist"
	case StepSelectSchedule:
		ready, missing = w.draft.Slot != "", "select a time slot"
	default:
		return false
	}
	if !ready {
		w.notice = &Notice{Kind: NoticeValidation, Message: missing}
		return false
	}
	w.notice = nil
	w.step++
	return true
}

// Back returns to the previous step, keeping the draft. Going back from
// the first step cancels the flow.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		return ErrTerminal
	}
	if w.submitting {
		return ErrSubmitInProgress
	}
	w.notice = nil
	if w.step == StepSelectDepartment {
		w.endLocked(StepCancelled)
		return nil
	}
	w.step--
	return nil
}

// Cancel ends the flow from any non-terminal step and discards the draft.
// In-flight slot responses are ignored when they arrive.
func (w *Wizard) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step.Terminal() {
		return ErrTerminal
	}
	w.endLocked(StepCancelled)
	return nil
}

// Submit books the draft. It only runs from the confirm step with a
// complete draft and a patient session; on backend failure the wizard
// stays on confirm with its draft intact and a retryable notice.
func (w *Wizard) Submit(ctx context.Context) (*Confirmation, error) {
	w.mu.Lock()
	if w.step.Terminal() {
		w.mu.Unlock()
		return nil, ErrTerminal
	}
	if w.step != StepConfirm {
		w.mu.Unlock()
		return nil, ErrWrongStep
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	if !w.session.IsPatient() {
		err := w.rejectLocked(ErrNoSession)
		w.mu.Unlock()
		return nil, err
	}
	if !w.draft.complete() {
		err := w.rejectLocked(ErrIncompleteDraft)
		w.mu.Unlock()
		return nil, err
	}
	draft := w.draft
	price := w.priceLocked()
	req := clinicapi.BookingRequest{
		PatientID: w.session.PatientID,
		DoctorID:  draft.Doctor.ID,
		Date:      draft.Date,
		TimeSlot:  draft.Slot,
		Type:      draft.Type,
	}
	w.submitting = true
	w.notice = nil
	w.mu.Unlock()

	ctx, span := w.tracer.Start(ctx, "booking.submit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("clinic.doctor_id", req.DoctorID),
		attribute.String("clinic.date", req.Date),
		attribute.String("clinic.slot", req.TimeSlot),
		attribute.String("clinic.type", string(req.Type)),
	)

	res, err := w.backend.Book(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if w.step != StepConfirm {
		// Cancelled while the request was in flight.
		w.observeBooking(BookingDiscarded)
		w.logger.Warn("booking response after cancel", "doctor_id", req.DoctorID, "date", req.Date, "slot", req.TimeSlot, "error", err)
		return nil, ErrCancelled
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking rejected")
		w.notice = backendNotice(err)
		w.observeBooking(BookingFailed)
		w.logger.Warn("booking submission failed", "doctor_id", req.DoctorID, "date", req.Date, "slot", req.TimeSlot, "error", err)
		return nil, fmt.Errorf("booking: submit: %w", err)
	}

	conf := &Confirmation{
		Doctor:     *draft.Doctor,
		Date:       draft.Date,
		Slot:       draft.Slot,
		Type:       draft.Type,
		PriceCents: price,
	}
	if res != nil {
		conf.Record = res.Record
		conf.Message = res.Message
		if res.Record != nil {
			conf.MeetingURL = res.Record.MeetingLink
		}
	}
	w.confirmation = conf
	w.endLocked(StepSuccess)
	w.observeBooking(BookingSucceeded)
	w.logger.Info("appointment booked", "patient_id", req.PatientID, "doctor_id", req.DoctorID, "date", req.Date, "slot", req.TimeSlot, "type", req.Type)
	return conf, nil
}

// Snapshot copies the current state for rendering.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	draft := w.draft
	if draft.Doctor != nil {
		d := *draft.Doctor
		draft.Doctor = &d
	}
	price := w.priceLocked()
	snap := Snapshot{
		Step:         w.step,
		Departments:  slices.Clone(w.depts),
		Draft:        draft,
		Specialists:  w.specialistsLocked(),
		Slots:        slices.Clone(w.slots),
		SlotState:    w.slotState,
		PriceCents:   price,
		PriceLabel:   FormatCents(price),
		Submitting:   w.submitting,
		Confirmation: w.confirmation,
	}
	if snap.Slots == nil {
		snap.Slots = []string{}
	}
	if w.notice != nil {
		n := *w.notice
		snap.Notice = &n
	}
	return snap
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Wait blocks until no slot fetch is in flight.
// Selections made while Wait blocks are waited for too.
func (w *Wizard) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.inflight > 0 {
		w.idle.Wait()
	}
}

// Close abandons outstanding fetches and waits for their goroutines.
func (w *Wizard) Close() {
	w.cancel()
	w.Wait()
}

func (w *Wizard) rejectLocked(err error) error {
	w.notice = validationNotice(err)
	return err
}

func (w *Wizard) resetSlotsLocked() {
	w.slotGen++
	w.slots = nil
	w.slotState = SlotIdle
	w.slotKey = slotKey{}
}

func (w *Wizard) endLocked(step Step) {
	w.step = step
	w.resetSlotsLocked()
	if step == StepCancelled {
		w.confirmation = nil
	}
	w.draft = Draft{}
}

func (w *Wizard) startSlotFetchLocked() {
	w.slotGen++
	gen := w.slotGen
	key := slotKey{doctorID: w.draft.Doctor.ID, date: w.draft.Date}
	w.slotKey = key
	w.slots = nil
	w.slotState = SlotLoading

	w.inflight++
	go w.fetchSlots(gen, key)
}

func (w *Wizard) fetchDoneLocked() {
	w.inflight--
	if w.inflight == 0 {
		w.idle.Broadcast()
	}
}

func (w *Wizard) fetchSlots(gen uint64, key slotKey) {
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	slots, err := w.backend.Slots(ctx, key.doctorID, key.date)

	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.fetchDoneLocked()
	if gen != w.slotGen || key != w.slotKey {
		w.observeSlotFetch(FetchStale)
		w.logger.Debug("discarding stale slot response", "doctor_id", key.doctorID, "date", key.date)
		return
	}
	if err != nil {
		w.slotState = SlotFailed
		w.notice = backendNotice(err)
		w.observeSlotFetch(FetchError)
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("slot fetch failed", "doctor_id", key.doctorID, "date", key.date, "error", err)
		}
		return
	}
	if slots == nil {
		slots = []string{}
	}
	w.slots = slots
	w.slotState = SlotReady
	w.observeSlotFetch(FetchApplied)
}

func (w *Wizard) observeSlotFetch(outcome string) {
	if w.observer != nil {
		w.observer.ObserveSlotFetch(outcome)
	}
}

func (w *Wizard) observeBooking(outcome string) {
	if w.observer != nil {
		w.observer.ObserveBooking(outcome)
	}
}
