package clinicapi

import (
	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// Routes are the backend paths the client calls. The backend owns the
// contract; DefaultRoutes matches the deployed API.
type Routes struct {
	Doctors        string
	Slots          string
	Book           string
	Appointments   string
	MyAppointments string
	UpdateStatus   string
	Patients       string
	StaffBook      string
	StaffBookLab   string
}

// DefaultRoutes returns the standard backend paths.
func DefaultRoutes() Routes {
	return Routes{
		Doctors:        "/doctors",
		Slots:          "/slots",
		Book:           "/appointments",
		Appointments:   "/appointments",
		MyAppointments: "/my-appointments",
		UpdateStatus:   "/update_status",
		Patients:       "/patients",
		StaffBook:      "/staff/appointments",
		StaffBookLab:   "/staff/lab-tests",
	}
}

// Session identifies who is calling. It is passed explicitly to the client
// and the booking wizard instead of living in ambient storage.
type Session struct {
	PatientID int64  `json:"patient_id,omitempty"`
	Token     string `json:"-"`
	Role      string `json:"role,omitempty"`
}

// IsPatient reports whether the session can book for itself.
func (s Session) IsPatient() bool {
	return s.PatientID > 0
}

// Doctor is a bookable specialist.
type Doctor struct {
	ID         int64  `json:"id"`
	FullName   string `json:"full_name"`
	Department string `json:"department"`
}

// Patient is a staff-visible patient profile.
type Patient struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}

// BookingRequest is the patient booking payload.
type BookingRequest struct {
	PatientID int64             `json:"patient_id"`
	DoctorID  int64             `json:"doctor_id"`
	Date      string            `json:"date_str"`
	TimeSlot  string            `json:"time_slot"`
	Type      appointments.Type `json:"type"`
}

// StaffBookingRequest books on behalf of a walk-in patient identified by
// phone; the backend creates the patient profile when it is new.
type StaffBookingRequest struct {
	PatientName  string            `json:"patient_name"`
	PatientPhone string            `json:"patient_phone"`
	DoctorID     int64             `json:"doctor_id"`
	Date         string            `json:"date_str"`
	TimeSlot     string            `json:"time_slot"`
	Type         appointments.Type `json:"type"`
}

// StaffLabRequest orders a lab test for a walk-in patient. Lab tests have
// no doctor or slot; the backend files them under the test name.
type StaffLabRequest struct {
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
	TestName     string `json:"test_name"`
}

// BookingResult is what the backend returned for a booking. Record is nil
// when the backend only acknowledged with a message; ID is set whenever
// the backend reported one.
type BookingResult struct {
	Record  *appointments.Record
	ID      int64
	Message string
}

type slotsResponse struct {
	Slots []string `json:"slots"`
}

type messageResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

type errorResponse struct {
	Detail any    `json:"detail"`
	Error  string `json:"error"`
}
