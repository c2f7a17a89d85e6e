package workers

import (
	"context"

	"github.com/robfig/cron"

	"github.com/camden-git/civicregistry/logger"
)

const permitSweeperName = "PermitSweeper"

// PermitExpirer marks permits whose end date has passed as expired.
type PermitExpirer interface {
	ExpireEnded(ctx context.Context) (int64, error)
}

// PermitSweeper periodically expires ended temporary residence and absence permits.
type PermitSweeper struct {
	expirer  PermitExpirer
	schedule string
	cron     *cron.Cron
	log      *logger.Logger
}

func NewPermitSweeper(expirer PermitExpirer, schedule string, log *logger.Logger) *PermitSweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &PermitSweeper{
		expirer:  expirer,
		schedule: schedule,
		cron:     cron.New(),
		log:      log.Component("permit_sweeper"),
	}
}

// Start registers the sweep on its schedule and starts the scheduler.
func (s *PermitSweeper) Start() error {
	if err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		s.log.Errorf(err, "Could not schedule %s with %q", permitSweeperName, s.schedule)
		return err
	}
	s.cron.Start()
	s.log.Infof("%s scheduled with %q", permitSweeperName, s.schedule)
	return nil
}

// Sweep runs one expiry pass.
func (s *PermitSweeper) Sweep() {
	n, err := s.expirer.ExpireEnded(context.Background())
	if err != nil {
		s.log.Errorf(err, "Permit sweep failed")
		return
	}
	if n > 0 {
		s.log.Infof("Expired %d ended permits", n)
	}
}

func (s *PermitSweeper) Stop() {
	s.cron.Stop()
}
