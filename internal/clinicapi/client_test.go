package clinicapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveBackendCall(op, outcome string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, op+":"+outcome)
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *recordingObserver) {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	obs := &recordingObserver{}
	c := New(ts.URL+"/", Options{Timeout: 2 * time.Second, Observer: obs}, logging.Discard())
	return c, obs
}

func TestListDoctors(t *testing.T) {
	c, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/doctors", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "full_name": "Dr. Ada", "department": "Cardiology"},
			{"id": 0, "full_name": "ghost", "department": "General"},
			{"id": 2, "full_name": "Dr. Bo", "department": " Neurology "},
		})
	})

	doctors, err := c.ListDoctors(context.Background())
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Dr. Ada", doctors[0].FullName)
	assert.Equal(t, "Neurology", doctors[1].Department)
	assert.Equal(t, []string{"list_doctors:ok"}, obs.calls)
}

func TestSlots_QueryAndEmpty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slots", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("doctor_id"))
		if r.URL.Query().Get("date") == "2026-10-20" {
			_, _ = w.Write([]byte(`{"slots":["09:00"," 09:30 ",""]}`))
			return
		}
		_, _ = w.Write([]byte(`{"slots":null}`))
	})

	slots, err := c.Slots(context.Background(), 7, "2026-10-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30"}, slots)

	slots, err = c.Slots(context.Background(), 7, "2026-10-21")
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSlots_RejectsBadInputWithoutCalling(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.Slots(context.Background(), 0, "2026-10-20")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = c.Slots(context.Background(), 3, "20/10/2026")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, called)
}

func TestBook_SendsPayloadAndToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2026-10-20", body["date_str"])
		assert.Equal(t, "10:30", body["time_slot"])
		assert.Equal(t, "online", body["type"])
		_, _ = w.Write([]byte(`{"id":55,"patient_id":9,"doctor_id":3,"appointment_time":"2026-10-20T10:30:00","type":"online","status":"pending","zoom_link":"https://meet.example/abc"}`))
	})
	c = c.WithSession(Session{PatientID: 9, Token: "tok-1"})

	res, err := c.Book(context.Background(), BookingRequest{PatientID: 9, DoctorID: 3, Date: "2026-10-20", TimeSlot: "10:30", Type: appointments.TypeOnlineVideo})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, int64(55), res.Record.ID)
	assert.Equal(t, "https://meet.example/abc", res.Record.MeetingLink)
}

func TestBook_MessageOnlyResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Booked"}`))
	})
	res, err := c.Book(context.Background(), BookingRequest{PatientID: 9, DoctorID: 3, Date: "2026-10-20", TimeSlot: "10:30", Type: appointments.TypeClinicVisit})
	require.NoError(t, err)
	assert.Nil(t, res.Record)
	assert.Equal(t, "Booked", res.Message)
}

func TestBook_ConflictIsNotRetryable(t *testing.T) {
	c, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"Slot already taken"}`))
	})
	_, err := c.Book(context.Background(), BookingRequest{PatientID: 9, DoctorID: 3, Date: "2026-10-20", TimeSlot: "10:30", Type: appointments.TypeClinicVisit})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "Slot already taken", apiErr.Detail)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, []string{"book_appointment:error"}, obs.calls)
}

func TestErrorDetail_ValidationList(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","time_slot"],"msg":"field required"}]}`))
	})
	_, err := c.ListPatients(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "field required", apiErr.Detail)
}

func TestServerErrorIsRetryable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := c.ListDoctors(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsNotFound(err))
}

func TestTransportErrorIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := New(url, Options{Timeout: time.Second}, logging.Discard())
	_, err := c.ListDoctors(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestListAppointments_SkipsMalformed(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"patient_id":2,"type":"clinic","status":"confirmed","appointment_time":"2026-10-20T09:00:00"},
			{"id":2,"patient_id":2,"type":"teleport","status":"pending"},
			{"id":3,"patient_id":4,"type":"lab_test","status":"pending","appointment_time":null}
		]`))
	})
	records, err := c.ListAppointments(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].ID)
	assert.Nil(t, records[1].Time)
}

func TestMyAppointments_PassesPatient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/my-appointments", r.URL.Path)
		assert.Equal(t, "12", r.URL.Query().Get("patient_id"))
		_, _ = w.Write([]byte(`[]`))
	})
	records, err := c.MyAppointments(context.Background(), 12)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = c.MyAppointments(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateStatus(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/update_status", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})

	err := c.UpdateStatus(context.Background(), appointments.StatusUpdate{ItemID: 4, NewStatus: appointments.StatusRescheduled, NewDate: "2026-10-22", NewTime: "11:00"})
	require.NoError(t, err)
	assert.Equal(t, "appointment", got["item_type"])
	assert.Equal(t, "rescheduled", got["new_status"])
	assert.Equal(t, "11:00", got["new_time"])
	assert.NotContains(t, got, "new_result")

	got = nil
	err = c.UpdateStatus(context.Background(), appointments.StatusUpdate{ItemID: 9, NewStatus: appointments.StatusCompleted, NewResult: "Negative"})
	require.NoError(t, err)
	assert.Equal(t, "completed", got["new_status"])
	assert.Equal(t, "Negative", got["new_result"])

	err = c.UpdateStatus(context.Background(), appointments.StatusUpdate{ItemID: 4, NewStatus: appointments.StatusRescheduled, NewDate: "2026-10-22"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, appointments.ErrRescheduleIncomplete)
}

func TestBookForPatient_RequiresContact(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/staff/appointments", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "clinic", body["type"])
		_, _ = w.Write([]byte(`{"message":"Booked for Jo"}`))
	})

	_, err := c.BookForPatient(context.Background(), StaffBookingRequest{PatientName: " ", PatientPhone: "555", DoctorID: 1, Date: "2026-10-20", TimeSlot: "09:00"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	res, err := c.BookForPatient(context.Background(), StaffBookingRequest{PatientName: "Jo", PatientPhone: "555", DoctorID: 1, Date: "2026-10-20", TimeSlot: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, "Booked for Jo", res.Message)
}

func TestBookLabForPatient(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/staff/lab-tests", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"Lab Request Booked","id":31}`))
	})

	_, err := c.BookLabForPatient(context.Background(), StaffLabRequest{PatientName: "Jo", PatientPhone: "555", TestName: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Nil(t, got)

	res, err := c.BookLabForPatient(context.Background(), StaffLabRequest{PatientName: " Jo ", PatientPhone: "555", TestName: "Lipid panel"})
	require.NoError(t, err)
	assert.Equal(t, int64(31), res.ID)
	assert.Equal(t, "Lab Request Booked", res.Message)
	assert.Nil(t, res.Record)
	assert.Equal(t, "Jo", got["patient_name"])
	assert.Equal(t, "Lipid panel", got["test_name"])
}

func TestWithSessionDoesNotMutateParent(t *testing.T) {
	c := New("http://example.invalid", Options{}, nil)
	child := c.WithSession(Session{PatientID: 3, Token: "x"})
	assert.Equal(t, int64(0), c.Session().PatientID)
	assert.Equal(t, int64(3), child.Session().PatientID)
}
