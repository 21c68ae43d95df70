package appointments

import "sort"

// QueueStats are the staff sidebar counters.
type QueueStats struct {
	PendingConsultations int `json:"pending_consultations"`
	OpenLabTests         int `json:"open_lab_tests"`
}

// ComputeStats counts pending non-lab appointments and lab tests that are
// not yet completed.
func ComputeStats(records []Record) QueueStats {
	var s QueueStats
	for _, r := range records {
		if r.IsLabTest() {
			if r.Status != StatusCompleted {
				s.OpenLabTests++
			}
			continue
		}
		if r.Status == StatusPending {
			s.PendingConsultations++
		}
	}
	return s
}

// PendingConsultations returns up to limit pending non-lab records, earliest
// first. Records without a time sort last. limit <= 0 means no limit.
func PendingConsultations(records []Record, limit int) []Record {
	out := make([]Record, 0)
	for _, r := range records {
		if !r.IsLabTest() && r.Status == StatusPending {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Time, out[j].Time
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Filter keeps records matching keep.
func Filter(records []Record, keep func(Record) bool) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
