// Package jobs runs the daily canvas rollover on a schedule.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/earth-board/internal/lifecycle"
)

const defaultRolloverTimeout = 30 * time.Second

type Roller interface {
	Rollover(ctx context.Context) (lifecycle.RolloverResult, error)
}

// RolloverJob archives yesterday's canvas and opens today's. Failures are
// logged and left for the next run or a manual trigger.
type RolloverJob struct {
	log     *log.Logger
	roller  Roller
	timeout time.Duration
}

func NewRolloverJob(logger *log.Logger, roller Roller) *RolloverJob {
	return &RolloverJob{
		log:     logger,
		roller:  roller,
		timeout: defaultRolloverTimeout,
	}
}

// Run satisfies cron.Job.
func (j *RolloverJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.Execute(ctx)
}

func (j *RolloverJob) Execute(ctx context.Context) (lifecycle.RolloverResult, error) {
	j.log.Println("starting daily rollover")

	res, err := j.roller.Rollover(ctx)
	if err != nil {
		j.log.Printf("rollover failed: %v", err)
		return res, err
	}

	if res.Archived != nil {
		j.log.Printf("archived canvas %q (%s): %d objects, %d participants",
			res.Archived.Id, res.Archived.Date, res.Archived.ObjectCount, res.Archived.ParticipantCount)
	}
	for _, c := range res.AlsoArchived {
		j.log.Printf("also archived canvas %q (%s)", c.Id, c.Date)
	}

	if res.Reused {
		j.log.Printf("kept existing canvas %q (%s) for %s", res.Created.Id, res.Created.Name, res.Created.Date)
	} else {
		j.log.Printf("created canvas %q (%s) for %s", res.Created.Id, res.Created.Name, res.Created.Date)
	}

	return res, nil
}
