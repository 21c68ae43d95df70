package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/doctors", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "full_name": "Dr. Ada", "department": "General"},
			{"id": 2, "full_name": "Dr. Lin", "department": "Cardiology"},
		})
	})
	mux.HandleFunc("/slots", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "2026-10-25" {
			_ = json.NewEncoder(w).Encode(map[string]any{"slots": []string{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"slots": []string{"09:00", "09:30"}})
	})
	mux.HandleFunc("/appointments", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "patient_id": 3, "patient_name": "Sam", "appointment_time": "2026-10-20T09:00:00", "type": "clinic", "status": "pending"},
			{"id": 2, "patient_id": 4, "appointment_time": "2026-10-21T19:30:00", "type": "online", "status": "confirmed"},
			{"id": 3, "patient_id": 5, "appointment_time": "2026-10-28T10:00:00", "type": "consultation", "status": "pending"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	srv := newBackend(t)
	var out bytes.Buffer
	c := &cli{
		out: &out,
		cfg: &appconfig.Config{
			BackendTimeout:     time.Second,
			ClinicTimezone:     "UTC",
			CalendarStartHour:  8,
			CalendarEndHour:    18,
			CalendarHourHeight: 80,
		},
		now: func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) },
	}
	root := c.rootCmd()
	root.SetArgs(append(args, "--backend", srv.URL))
	err := root.Execute()
	return out.String(), err
}

func TestWeekCommand(t *testing.T) {
	out, err := run(t, "week")
	require.NoError(t, err)
	assert.Contains(t, out, "Oct 19 - Oct 25")
	assert.Contains(t, out, "09:00 #1 clinic (pending)")
	assert.NotContains(t, out, "#2")
	assert.Contains(t, out, "not shown: out_of_hours=1 out_of_window=1")
	assert.Contains(t, out, "pending consultations 2")
}

func TestWeekCommandOffset(t *testing.T) {
	out, err := run(t, "week", "--offset", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Oct 26 - Nov 1")
	assert.Contains(t, out, "10:00 #3 consultation (pending)")
}

func TestMonthCommand(t *testing.T) {
	out, err := run(t, "month")
	require.NoError(t, err)
	assert.Contains(t, out, "October 2026")
	assert.Contains(t, out, "20(1)")
	assert.Contains(t, out, "28(1)")
}

func TestDoctorsCommand(t *testing.T) {
	out, err := run(t, "doctors", "--department", "cardiology")
	require.NoError(t, err)
	assert.Contains(t, out, "Dr. Lin")
	assert.NotContains(t, out, "Dr. Ada")
}

func TestSlotsCommand(t *testing.T) {
	out, err := run(t, "slots", "--doctor", "1")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19: 09:00 09:30\n", out)

	out, err = run(t, "slots", "--doctor", "1", "--date", "2026-10-25")
	require.NoError(t, err)
	assert.Equal(t, "no availability on 2026-10-25\n", out)

	_, err = run(t, "slots")
	assert.Error(t, err)
}

func TestBadRefRejected(t *testing.T) {
	_, err := run(t, "week", "--ref", "tomorrow")
	assert.Error(t, err)
}
