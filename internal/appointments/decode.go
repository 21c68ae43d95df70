package appointments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// wireRecord mirrors the backend payload. Every field is optional on the
// wire; FromWire decides which absences are fatal for the record.
type wireRecord struct {
	ID              json.Number  `json:"id"`
	PatientID       json.Number  `json:"patient_id"`
	DoctorID        *json.Number `json:"doctor_id"`
	AppointmentTime *string      `json:"appointment_time"`
	Type            string       `json:"type"`
	Status          string       `json:"status"`
	PatientName     *string      `json:"patient_name"`
	PatientPhone    *string      `json:"patient_phone"`
	DoctorName      *string      `json:"doctor_name"`
	ZoomLink        *string      `json:"zoom_link"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp parses a backend timestamp. Naive timestamps are read in
// loc, which is the clinic's wall-clock zone.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("appointments: empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, s); err == nil {
				return t.In(loc), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("appointments: unparseable timestamp %q", s)
}

func (w wireRecord) toRecord(loc *time.Location) (Record, error) {
	id, err := w.ID.Int64()
	if err != nil || id <= 0 {
		return Record{}, ErrMissingID
	}
	patientID, err := w.PatientID.Int64()
	if err != nil || patientID <= 0 {
		return Record{}, fmt.Errorf("%w (id %d)", ErrMissingPatient, id)
	}
	typ, err := ParseType(w.Type)
	if err != nil {
		return Record{}, fmt.Errorf("id %d: %w", id, err)
	}
	status, err := ParseStatus(w.Status)
	if err != nil {
		return Record{}, fmt.Errorf("id %d: %w", id, err)
	}

	rec := Record{
		ID:           id,
		PatientID:    patientID,
		Type:         typ,
		Status:       status,
		PatientName:  deref(w.PatientName),
		PatientPhone: deref(w.PatientPhone),
		DoctorName:   deref(w.DoctorName),
		MeetingLink:  deref(w.ZoomLink),
	}
	if w.DoctorID != nil && *w.DoctorID != "" {
		if doctorID, err := w.DoctorID.Int64(); err == nil && doctorID > 0 {
			rec.DoctorID = &doctorID
		}
	}
	if w.AppointmentTime != nil {
		if t, err := ParseTimestamp(*w.AppointmentTime, loc); err == nil {
			rec.Time = &t
		}
	}
	return rec, nil
}

// DecodeRecord validates a single backend appointment object.
func DecodeRecord(data []byte, loc *time.Location) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("appointments: decode record: %w", err)
	}
	return w.toRecord(loc)
}

// DecodeList decodes a JSON array of appointments. Records that fail
// validation are skipped and reported in rejected; only a payload that is
// not an array at all returns err.
func DecodeList(data []byte, loc *time.Location) (records []Record, rejected []error, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Record{}, nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, nil, fmt.Errorf("appointments: decode list: %w", err)
	}
	records = make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := DecodeRecord(raw, loc)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
