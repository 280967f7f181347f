package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Poller runs one change-detection cycle.
type Poller interface {
	RunCycle(ctx context.Context)
}

// DigestRunner composes and sends the daily digest.
type DigestRunner interface {
	Run(ctx context.Context) error
}

// NotificationScheduler drives the poll loop and the daily digest off one cron engine.
// Both jobs are wrapped with Recover and SkipIfStillRunning, so a slow cycle is skipped
// instead of overlapping and a panic never takes the scheduler down.
type NotificationScheduler struct {
	cronEngine    *cron.Cron
	poller        Poller
	digest        DigestRunner
	logger        *logrus.Entry
	pollInterval  time.Duration
	pollTimeout   time.Duration
	digestSpec    string
	digestTimeout time.Duration

	ctx      context.Context
	pollID   cron.EntryID
	digestID cron.EntryID
}

func NewNotificationScheduler(
	poller Poller,
	digest DigestRunner,
	logger *logrus.Entry,
	loc *time.Location,
	pollInterval time.Duration, // e.g. 10s
	digestSpec string, // e.g. "0 9 * * *" (09:00 local)
) *NotificationScheduler {
	if loc == nil {
		loc = time.Local
	}
	cronLogger := cron.PrintfLogger(logger.WithField("component", "cron"))
	pollTimeout := pollInterval * 5
	if pollTimeout < 30*time.Second {
		pollTimeout = 30 * time.Second
	}
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		poller:        poller,
		digest:        digest,
		logger:        logger,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		digestSpec:    digestSpec,
		digestTimeout: 5 * time.Minute, // Digest enriches every arrival, allow it more time
	}
}

// Start registers both jobs, kicks off one poll cycle right away and starts the engine.
// Jobs derive their contexts from ctx, so cancelling it aborts in-flight work.
func (s *NotificationScheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting notification scheduler...")
	s.ctx = ctx

	if s.pollInterval < time.Second {
		return fmt.Errorf("poll interval must be at least 1s, got %s", s.pollInterval)
	}
	s.pollID = s.cronEngine.Schedule(cron.Every(s.pollInterval), cron.FuncJob(s.runPoll))

	var err error
	s.digestID, err = s.cronEngine.AddFunc(s.digestSpec, s.runDigest)
	if err != nil {
		return fmt.Errorf("could not add digest cron job %q: %w", s.digestSpec, err)
	}

	s.cronEngine.Start()

	// First cycle seeds the trackers without waiting a full interval.
	go s.cronEngine.Entry(s.pollID).WrappedJob.Run()

	s.logger.WithFields(logrus.Fields{
		"poll_interval": s.pollInterval.String(),
		"digest_spec":   s.digestSpec,
		"next_digest":   s.cronEngine.Entry(s.digestID).Schedule.Next(time.Now().In(s.cronEngine.Location())),
	}).Info("Notification scheduler started with jobs.")
	return nil
}

func (s *NotificationScheduler) runPoll() {
	ctx, cancel := context.WithTimeout(s.ctx, s.pollTimeout)
	defer cancel()
	s.poller.RunCycle(ctx)
}

func (s *NotificationScheduler) runDigest() {
	s.logger.Info("Cron job triggered for daily digest.")
	ctx, cancel := context.WithTimeout(s.ctx, s.digestTimeout)
	defer cancel()
	if err := s.digest.Run(ctx); err != nil {
		s.logger.WithError(err).Error("Error during daily digest")
	}
}

// Stop stops scheduling new runs and waits for running jobs to finish.
func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Notification scheduler gracefully stopped.")
}
