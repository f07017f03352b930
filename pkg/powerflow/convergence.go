package powerflow

import "time"

// ConvergenceEntry is the outcome of one solve.
type ConvergenceEntry struct {
	Time      time.Time `json:"time"`
	Converged bool      `json:"converged"`
}

// ConvergenceReport records every solve of a run so failed timesteps are
// reported rather than dropped.
type ConvergenceReport struct {
	Entries []ConvergenceEntry `json:"entries"`
}

// Record appends the outcome at t.
func (r *ConvergenceReport) Record(t time.Time, converged bool) {
	r.Entries = append(r.Entries, ConvergenceEntry{Time: t, Converged: converged})
}

// Failed returns the timesteps that did not converge.
func (r *ConvergenceReport) Failed() []time.Time {
	var out []time.Time
	for _, e := range r.Entries {
		if !e.Converged {
			out = append(out, e.Time)
		}
	}
	return out
}

// Rate returns the fraction of converged solves, or 1 for an empty report.
func (r *ConvergenceReport) Rate() float64 {
	if len(r.Entries) == 0 {
		return 1
	}
	return 1 - float64(len(r.Failed()))/float64(len(r.Entries))
}
