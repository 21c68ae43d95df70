package mainconfig

import (
	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/booking"
	"github.com/wolfman30/clinic-scheduler/internal/calendar"
	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// NewClinicClient centralizes backend client construction so the server and
// the CLI talk to the clinic API the same way.
func NewClinicClient(cfg *appconfig.Config, observer clinicapi.CallObserver, logger *logging.Logger) *clinicapi.Client {
	return clinicapi.New(cfg.BackendBaseURL, clinicapi.Options{
		Timeout:  cfg.BackendTimeout,
		Location: cfg.Location(),
		Observer: observer,
	}, logger)
}

// GridConfig maps the calendar settings onto the placement grid. Lab tests
// stay off the staff grid.
func GridConfig(cfg *appconfig.Config) calendar.GridConfig {
	return calendar.GridConfig{
		StartHour:    cfg.CalendarStartHour,
		EndHour:      cfg.CalendarEndHour,
		HourHeight:   cfg.CalendarHourHeight,
		ExcludeTypes: []appointments.Type{appointments.TypeLabTest},
		Location:     cfg.Location(),
	}
}

// Pricing returns the configured consultation fees.
func Pricing(cfg *appconfig.Config) booking.Pricing {
	return booking.Pricing{
		OnlineCents: int64(cfg.FeeOnlineCents),
		ClinicCents: int64(cfg.FeeClinicCents),
	}
}
