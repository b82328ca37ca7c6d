package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/crypto_academy/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const stipendRunTimeout = 5 * time.Minute

// StipendJob pays every stipend month that has fallen due.
type StipendJob struct {
	stipends *services.StipendService
	log      zerolog.Logger
	now      func() time.Time
}

func NewStipendJob(stipends *services.StipendService, log zerolog.Logger) *StipendJob {
	return &StipendJob{stipends: stipends, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (j *StipendJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), stipendRunTimeout)
	defer cancel()

	j.log.Info().Msg("running job: disburse stipends")
	paid, err := j.stipends.DisburseDue(ctx, j.now())
	if err != nil {
		j.log.Error().Err(err).Int("paid", paid).Msg("stipend disbursement failed")
		return
	}
	if paid == 0 {
		j.log.Info().Msg("no stipends due")
		return
	}
	j.log.Info().Int("paid", paid).Msg("stipends disbursed")
}

// NewScheduler returns a cron that logs through log, recovers panics and never
// overlaps runs of the same job.
func NewScheduler(log zerolog.Logger) *cron.Cron {
	cl := cronLogger{log: log}
	return cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

func Schedule(c *cron.Cron, spec string, job cron.Job) (cron.EntryID, error) {
	id, err := c.AddJob(spec, job)
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return id, nil
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
