package scheduler

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/core"
)

// Scheduler runs the availability heartbeat and the configured color schedules.
type Scheduler struct {
	cron      *cron.Cron
	store     map[cron.EntryID]config.ScheduleEntry
	apply     func(core.Color)
	heartbeat func()
	mu        sync.RWMutex
}

// NewScheduler creates a stopped scheduler. apply receives scheduled colors and
// heartbeat is called on every heartbeat tick.
func NewScheduler(apply func(core.Color), heartbeat func()) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		store:     make(map[cron.EntryID]config.ScheduleEntry),
		apply:     apply,
		heartbeat: heartbeat,
	}
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[Cron] Scheduler started.")
}

// Stop halts the ticker and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[Cron] Scheduler stopped.")
}

// SetHeartbeat registers the availability heartbeat. An empty spec disables it.
func (s *Scheduler) SetHeartbeat(spec string) (cron.EntryID, error) {
	if spec == "" {
		return 0, nil
	}
	id, err := s.cron.AddFunc(spec, s.heartbeat)
	if err != nil {
		return 0, fmt.Errorf("heartbeat schedule %q: %w", spec, err)
	}
	log.Printf("[Cron] Heartbeat scheduled: %s", spec)
	return id, nil
}

// Add schedules a color command such as "0,0,0".
func (s *Scheduler) Add(spec, command string) (cron.EntryID, error) {
	color, err := core.ParseColor([]byte(command))
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(spec, color) })
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.store[id] = config.ScheduleEntry{Spec: spec, Command: command}
	log.Printf("[Cron] Added schedule (ID %d): %s -> %s", id, spec, color)
	return id, nil
}

// Load adds every entry, stopping at the first invalid one.
func (s *Scheduler) Load(entries []config.ScheduleEntry) error {
	for _, e := range entries {
		if _, err := s.Add(e.Spec, e.Command); err != nil {
			return err
		}
	}
	return nil
}

// Schedule is a color schedule as reported to the monitor.
type Schedule struct {
	ID      cron.EntryID `json:"id"`
	Spec    string       `json:"spec"`
	Command string       `json:"command"`
	Next    time.Time    `json:"next,omitempty"`
}

// Schedules returns the color schedules ordered by id. Next is zero until Start.
func (s *Scheduler) Schedules() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Schedule, 0, len(s.store))
	for id, e := range s.store {
		out = append(out, Schedule{ID: id, Spec: e.Spec, Command: e.Command, Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) execute(spec string, c core.Color) {
	log.Printf("[Cron] Executing scheduled color %s (%s)", c, spec)
	s.apply(c)
}
