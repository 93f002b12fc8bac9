package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/npezzotti/earth-board/internal/lifecycle"
	"github.com/robfig/cron/v3"
)

// DefaultRolloverSpec fires at midnight in the reference zone.
const DefaultRolloverSpec = "0 0 * * *"

var cronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

type Scheduler struct {
	log      *log.Logger
	cron     *cron.Cron
	schedule cron.Schedule
}

// NewScheduler schedules job on spec, evaluated in lifecycle.ReferenceZone.
// An overlapping run is skipped rather than queued.
func NewScheduler(logger *log.Logger, spec string, job cron.Job) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultRolloverSpec
	}

	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	cronLog := cron.PrintfLogger(logger)
	c := cron.New(
		cron.WithLocation(lifecycle.ReferenceZone),
		cron.WithParser(cronParser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	c.Schedule(schedule, job)

	return &Scheduler{
		log:      logger,
		cron:     c,
		schedule: schedule,
	}, nil
}

// Next returns the first run time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(lifecycle.ReferenceZone))
}

func (s *Scheduler) Start() {
	s.log.Printf("rollover scheduled, next run at %s", s.Next(time.Now()).Format(time.RFC3339))
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
