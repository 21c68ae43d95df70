// Package clinicapi is a typed client for the clinic backend REST API.
package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	defaultTimeout  = 15 * time.Second
	maxErrorDetail  = 300
	maxResponseSize = 4 << 20
)

// CallObserver receives one observation per backend call.
type CallObserver interface {
	ObserveBackendCall(op, outcome string, seconds float64)
}

// Options tune a Client. The zero value is usable.
type Options struct {
	Timeout    time.Duration
	Routes     *Routes
	Location   *time.Location
	HTTPClient *http.Client
	Observer   CallObserver
}

// Client calls the clinic backend. It is safe for concurrent use; use
// WithSession to derive a client that authenticates as a given caller.
type Client struct {
	baseURL    string
	routes     Routes
	httpClient *http.Client
	loc        *time.Location
	session    Session
	observer   CallObserver
	tracer     trace.Tracer
	logger     *logging.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts Options, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	routes := DefaultRoutes()
	if opts.Routes != nil {
		routes = *opts.Routes
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		routes:     routes,
		httpClient: httpClient,
		loc:        loc,
		observer:   opts.Observer,
		tracer:     otel.Tracer("clinic.internal.clinicapi"),
		logger:     logger.Component("clinicapi"),
	}
}

// WithSession returns a copy of the client that sends s's bearer token.
func (c *Client) WithSession(s Session) *Client {
	cp := *c
	cp.session = s
	return &cp
}

// Session returns the caller identity bound to this client.
func (c *Client) Session() Session {
	return c.session
}

// ListDoctors returns every bookable doctor.
func (c *Client) ListDoctors(ctx context.Context) ([]Doctor, error) {
	var out []Doctor
	if err := c.doJSON(ctx, "list_doctors", http.MethodGet, c.routes.Doctors, nil, nil, &out); err != nil {
		return nil, err
	}
	doctors := make([]Doctor, 0, len(out))
	for _, d := range out {
		if d.ID <= 0 {
			continue
		}
		d.Department = strings.TrimSpace(d.Department)
		doctors = append(doctors, d)
	}
	return doctors, nil
}

// Slots returns the bookable "HH:MM" labels for a doctor on a date. An
// empty, non-nil slice means no availability.
func (c *Client) Slots(ctx context.Context, doctorID int64, date string) ([]string, error) {
	if doctorID <= 0 {
		return nil, fmt.Errorf("%w: doctor id %d", ErrInvalidRequest, doctorID)
	}
	if _, err := time.Parse(appointments.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidRequest, date)
	}
	q := url.Values{}
	q.Set("doctor_id", strconv.FormatInt(doctorID, 10))
	q.Set("date", date)

	var out slotsResponse
	if err := c.doJSON(ctx, "list_slots", http.MethodGet, c.routes.Slots, q, nil, &out); err != nil {
		return nil, err
	}
	slots := make([]string, 0, len(out.Slots))
	for _, s := range out.Slots {
		if s = strings.TrimSpace(s); s != "" {
			slots = append(slots, s)
		}
	}
	return slots, nil
}

// Book submits a patient booking.
func (c *Client) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if req.PatientID <= 0 || req.DoctorID <= 0 || req.Date == "" || req.TimeSlot == "" || req.Type == "" {
		return nil, fmt.Errorf("%w: incomplete booking", ErrInvalidRequest)
	}
	body, err := c.do(ctx, "book_appointment", http.MethodPost, c.routes.Book, nil, req)
	if err != nil {
		return nil, err
	}
	return c.bookingResult(body), nil
}

// BookForPatient books on behalf of a patient from the staff console.
func (c *Client) BookForPatient(ctx context.Context, req StaffBookingRequest) (*BookingResult, error) {
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientPhone = strings.TrimSpace(req.PatientPhone)
	if req.PatientName == "" || req.PatientPhone == "" || req.DoctorID <= 0 || req.Date == "" || req.TimeSlot == "" {
		return nil, fmt.Errorf("%w: patient name, phone, doctor, date and time are required", ErrInvalidRequest)
	}
	if req.Type == "" {
		req.Type = appointments.TypeClinicVisit
	}
	body, err := c.do(ctx, "staff_book_appointment", http.MethodPost, c.routes.StaffBook, nil, req)
	if err != nil {
		return nil, err
	}
	return c.bookingResult(body), nil
}

// BookLabForPatient orders a lab test from the staff console.
func (c *Client) BookLabForPatient(ctx context.Context, req StaffLabRequest) (*BookingResult, error) {
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientPhone = strings.TrimSpace(req.PatientPhone)
	req.TestName = strings.TrimSpace(req.TestName)
	if req.PatientName == "" || req.PatientPhone == "" || req.TestName == "" {
		return nil, fmt.Errorf("%w: patient name, phone and test name are required", ErrInvalidRequest)
	}
	body, err := c.do(ctx, "staff_book_lab", http.MethodPost, c.routes.StaffBookLab, nil, req)
	if err != nil {
		return nil, err
	}
	return c.bookingResult(body), nil
}

func (c *Client) bookingResult(body []byte) *BookingResult {
	res := &BookingResult{}
	if rec, err := appointments.DecodeRecord(body, c.loc); err == nil {
		res.Record = &rec
		res.ID = rec.ID
	}
	var msg messageResponse
	if err := json.Unmarshal(body, &msg); err == nil {
		res.Message = msg.Message
		if res.ID == 0 {
			res.ID = msg.ID
		}
	}
	return res
}

// ListAppointments returns every appointment (staff view). Malformed
// records are dropped and logged.
func (c *Client) ListAppointments(ctx context.Context) ([]appointments.Record, error) {
	return c.listAppointments(ctx, "list_appointments", c.routes.Appointments, nil)
}

// MyAppointments returns a patient's own appointments.
func (c *Client) MyAppointments(ctx context.Context, patientID int64) ([]appointments.Record, error) {
	if patientID <= 0 {
		return nil, fmt.Errorf("%w: patient id %d", ErrInvalidRequest, patientID)
	}
	q := url.Values{}
	q.Set("patient_id", strconv.FormatInt(patientID, 10))
	return c.listAppointments(ctx, "my_appointments", c.routes.MyAppointments, q)
}

func (c *Client) listAppointments(ctx context.Context, op, path string, q url.Values) ([]appointments.Record, error) {
	body, err := c.do(ctx, op, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	records, rejected, err := appointments.DecodeList(body, c.loc)
	if err != nil {
		return nil, fmt.Errorf("clinicapi: %s: %w", op, err)
	}
	for _, r := range rejected {
		c.logger.Warn("skipping malformed appointment", "op", op, "error", r)
	}
	return records, nil
}

// UpdateStatus applies a staff status change. The update is validated
// before anything is sent.
func (c *Client) UpdateStatus(ctx context.Context, update appointments.StatusUpdate) error {
	if err := update.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	_, err := c.do(ctx, "update_status", http.MethodPost, c.routes.UpdateStatus, nil, update)
	return err
}

// ListPatients returns patient profiles for the staff booking form.
func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	var out []Patient
	if err := c.doJSON(ctx, "list_patients", http.MethodGet, c.routes.Patients, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	body, err := c.do(ctx, op, method, path, q, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("clinicapi: %s: unmarshal response: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, in any) (body []byte, err error) {
	ctx, span := c.tracer.Start(ctx, "clinicapi."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("clinic.route", path))

	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
			span.RecordError(err)
		}
		if c.observer != nil {
			c.observer.ObserveBackendCall(op, outcome, time.Since(start).Seconds())
		}
	}()

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("clinicapi: %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("clinicapi: %s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clinicapi: %s: %w: %w", op, errTransport, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("clinicapi: %s: read response: %w: %w", op, errTransport, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	}
	c.logger.Debug("backend call", "op", op, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return body, nil
}

// errorDetail pulls a readable message out of an error body. FastAPI sends
// {"detail": "..."} or a list of validation issues under detail.
func errorDetail(body []byte) string {
	var env errorResponse
	if err := json.Unmarshal(body, &env); err == nil {
		switch d := env.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case []any:
			if len(d) > 0 {
				if m, ok := d[0].(map[string]any); ok {
					if msg, ok := m["msg"].(string); ok {
						return msg
					}
				}
			}
		}
		if env.Error != "" {
			return env.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorDetail {
		msg = msg[:maxErrorDetail]
	}
	return msg
}
