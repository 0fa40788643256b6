// Package scheduler runs the recurring RCON tasks: player polling,
// autosave and the daily restart.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/protocol"
	"github.com/energizer-project/palrcon/internal/server"
	"github.com/energizer-project/palrcon/internal/util"
)

// Actor is recorded on moderation events issued by the scheduler.
const Actor = "scheduler"

// Target is the set of operations the scheduler drives. server.Manager
// implements it.
type Target interface {
	Poll(ctx context.Context) (*protocol.PlayerList, server.Diff, error)
	Save(ctx context.Context, actor string) (*protocol.Response, error)
	Broadcast(ctx context.Context, actor, message string) (*protocol.Response, error)
	Shutdown(ctx context.Context, actor string, seconds int, message string, save bool) (*protocol.Response, error)
}

// Options configures the Scheduler. A zero interval disables its loop and
// an empty DailyRestart disables the restart.
type Options struct {
	PollInterval     time.Duration
	AutosaveInterval time.Duration
	DailyRestart     string
	RestartWarning   time.Duration
	RestartMessage   string
	// CommandTimeout bounds each task. Zero means none.
	CommandTimeout time.Duration
}

// OptionsFromConfig maps the scheduler config section.
func OptionsFromConfig(s config.SchedulerConfig, commandTimeout time.Duration) Options {
	return Options{
		PollInterval:     time.Duration(s.PollIntervalSec) * time.Second,
		AutosaveInterval: time.Duration(s.AutosaveIntervalSec) * time.Second,
		DailyRestart:     s.DailyRestart,
		RestartWarning:   time.Duration(s.RestartWarningSec) * time.Second,
		RestartMessage:   s.RestartMessage,
		CommandTimeout:   commandTimeout,
	}
}

// Scheduler runs periodic tasks against a Target.
type Scheduler struct {
	target Target
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Scheduler.
func New(target Target, opts Options) *Scheduler {
	return &Scheduler{
		target: target,
		opts:   opts,
		logger: util.ComponentLogger("scheduler"),
		now:    time.Now,
	}
}

// Run starts every enabled loop and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.DailyRestart != "" {
		if _, _, err := parseClock(s.opts.DailyRestart); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			s.logger.Debug().Str("task", name).Msg("task loop exited")
		}()
	}

	if s.opts.PollInterval > 0 {
		start("poll", func(ctx context.Context) { s.every(ctx, s.opts.PollInterval, true, s.poll) })
	}
	if s.opts.AutosaveInterval > 0 {
		start("autosave", func(ctx context.Context) { s.every(ctx, s.opts.AutosaveInterval, false, s.save) })
	}
	if s.opts.DailyRestart != "" {
		start("daily_restart", s.runDailyRestartLoop)
	}

	s.logger.Info().
		Dur("poll_interval", s.opts.PollInterval).
		Dur("autosave_interval", s.opts.AutosaveInterval).
		Str("daily_restart", s.opts.DailyRestart).
		Msg("scheduler started")

	<-ctx.Done()
	wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, immediate bool, task func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if immediate {
		s.runTask(ctx, task)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTask(ctx, task)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, task func(context.Context)) {
	if s.opts.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CommandTimeout)
		defer cancel()
	}
	task(ctx)
}

func (s *Scheduler) poll(ctx context.Context) {
	list, _, err := s.target.Poll(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Msg("player poll failed")
		}
		return
	}
	s.logger.Debug().Int("players", list.Count()).Msg("players polled")
}

func (s *Scheduler) save(ctx context.Context) {
	resp, err := s.target.Save(ctx, Actor)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Msg("autosave failed")
	case !resp.Successful:
		s.logger.Warn().Str("response", resp.Message).Msg("autosave rejected")
	default:
		s.logger.Info().Msg("world saved")
	}
}

func (s *Scheduler) runDailyRestartLoop(ctx context.Context) {
	for {
		next, err := NextDailyRun(s.now(), s.opts.DailyRestart)
		if err != nil {
			s.logger.Error().Err(err).Msg("invalid daily restart time")
			return
		}
		wait := next.Sub(s.now())

		s.logger.Info().
			Time("next_run", next).
			Dur("wait", wait).
			Msg("daily restart scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runTask(ctx, s.restart)
		}
	}
}

// restart warns the players and schedules a shutdown with save. The
// process supervisor is expected to bring the server back.
func (s *Scheduler) restart(ctx context.Context) {
	seconds := int(s.opts.RestartWarning / time.Second)
	message := s.opts.RestartMessage
	if message == "" {
		message = "Daily restart"
	}

	notice := fmt.Sprintf("%s in %d seconds", message, seconds)
	if _, err := s.target.Broadcast(ctx, Actor, notice); err != nil {
		s.logger.Warn().Err(err).Msg("restart notice failed")
	}

	resp, err := s.target.Shutdown(ctx, Actor, seconds, message, true)
	switch {
	case err != nil:
		s.logger.Error().Err(err).Msg("daily restart failed")
	case !resp.Successful:
		s.logger.Warn().Str("response", resp.Message).Msg("daily restart rejected")
	default:
		s.logger.Info().Int("seconds", seconds).Msg("daily restart issued")
	}
}

// NextDailyRun returns the first time after now at the wall clock time
// clock ("HH:MM") in now's location.
func NextDailyRun(now time.Time, clock string) (time.Time, error) {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

func parseClock(clock string) (int, int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("daily restart %q: expected HH:MM", clock)
	}
	return t.Hour(), t.Minute(), nil
}
