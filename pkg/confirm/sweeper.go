package confirm

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper runs ExpireStale on a cron schedule
type Sweeper struct {
	workflow *Workflow
	cron     *cron.Cron
	entryID  cron.EntryID
}

// NewSweeper creates a sweeper for the given workflow. The schedule is
// a standard five-field cron expression; "* * * * *" sweeps every
// minute.
func NewSweeper(workflow *Workflow, schedule string) (*Sweeper, error) {
	if workflow == nil {
		return nil, fmt.Errorf("workflow is required")
	}

	c := cron.New()
	s := &Sweeper{workflow: workflow, cron: c}

	entryID, err := c.AddFunc(schedule, s.sweep)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.entryID = entryID

	return s, nil
}

// Start begins sweeping in the background
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Msg("Confirmation sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Confirmation sweeper stopped")
}

func (s *Sweeper) sweep() {
	expired, err := s.workflow.ExpireStale(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Confirmation sweep failed")
		return
	}
	if len(expired) > 0 {
		log.Debug().Int("expired", len(expired)).Msg("Confirmation sweep completed")
	}
}
