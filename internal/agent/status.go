package agent

import (
	"time"

	"ledstrip-controller/internal/scheduler"
)

// Status is the read-only snapshot served by the monitor.
type Status struct {
	Session       string    `json:"session"`
	Color         string    `json:"color,omitempty"`
	Hex           string    `json:"hex,omitempty"`
	Pixels        []string  `json:"pixels"`
	FramesFlushed uint64    `json:"frames_flushed"`
	FlushFailures uint64    `json:"flush_failures"`
	Rejected      uint64    `json:"rejected"`
	Checkpoints   []string  `json:"checkpoints"`
	LastCommandAt time.Time `json:"last_command_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`

	Schedules []scheduler.Schedule `json:"schedules"`
}

// Status reports the controller's current state.
func (a *Agent) Status() Status {
	st := a.state.Clone()
	out := Status{
		Session:       a.machine.State().String(),
		FramesFlushed: st.FramesFlushed,
		FlushFailures: st.FlushFailures,
		Rejected:      st.Rejected,
		Checkpoints:   st.Checkpoints,
		LastCommandAt: st.LastCommandAt,
		Schedules:     a.scheduler.Schedules(),
	}
	if st.HasColor {
		out.Color = st.LastColor.String()
		out.Hex = st.LastColor.Hex()
	}
	for _, c := range a.arbiter.Visible() {
		out.Pixels = append(out.Pixels, c.Hex())
	}
	if err := a.machine.LastError(); err != nil {
		out.LastError = err.Error()
	}
	return out
}
