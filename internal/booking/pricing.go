package booking

import (
	"fmt"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
)

// Pricing holds the flat consultation fees in cents.
type Pricing struct {
	OnlineCents int64 `json:"online_cents"`
	ClinicCents int64 `json:"clinic_cents"`
}

// DefaultPricing is $25 online and $40 in clinic.
func DefaultPricing() Pricing {
	return Pricing{OnlineCents: 2500, ClinicCents: 4000}
}

// For returns the fee for a consultation type. Only online and clinic
// visits are bookable through the wizard.
func (p Pricing) For(t appointments.Type) (int64, error) {
	switch t {
	case appointments.TypeOnlineVideo:
		return p.OnlineCents, nil
	case appointments.TypeClinicVisit:
		return p.ClinicCents, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, t)
}

// FormatCents renders cents as dollars, dropping ".00".
func FormatCents(cents int64) string {
	if cents%100 == 0 {
		return fmt.Sprintf("$%d", cents/100)
	}
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// DefaultDepartments are the departments patients pick from.
var DefaultDepartments = []string{"General", "Cardiology", "Neurology", "Orthopedics"}
