// Package scheduler fires automatic feeds when feeding schedules come due.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"finfare-backend/config"
	"finfare-backend/internal/feeding"
	"finfare-backend/internal/model"
	"finfare-backend/internal/parse"
)

// Store is the schedule persistence the scheduler needs.
type Store interface {
	ListFeedingSchedules(ctx context.Context) ([]model.FeedingSchedule, error)
	MarkScheduleRun(ctx context.Context, id int64, at time.Time) error
}

// Feeder runs one feed transaction.
type Feeder interface {
	FeedNow(ctx context.Context, req feeding.Request) (feeding.Result, error)
}

// Service scans the schedules on a fixed interval. A schedule is due when its
// time of day falls in (previous tick, this tick] and it has not run since.
type Service struct {
	cfg    config.SchedulerConfig
	store  Store
	feeder Feeder
	loc    *time.Location
	now    func() time.Time

	mu       sync.Mutex
	lastTick time.Time
}

// NewService creates the scheduler. It fails on an unknown timezone.
func NewService(cfg config.SchedulerConfig, st Store, feeder Feeder) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		feeder: feeder,
		loc:    loc,
		now:    time.Now,
	}, nil
}

// Run ticks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Info().Msg("feeding scheduler is disabled; not starting")
		return
	}
	log.Info().Dur("interval", s.cfg.Interval).Str("timezone", s.loc.String()).Msg("starting feeding scheduler")

	s.TickOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("feeding scheduler shutting down")
			return
		case <-timer.C:
			s.TickOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// TickOnce runs every schedule that came due since the previous tick. The
// first tick looks back one interval.
func (s *Service) TickOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.loc)
	prev := s.lastTick
	if prev.IsZero() {
		prev = now.Add(-s.cfg.Interval)
	}
	s.lastTick = now

	schedules, err := s.store.ListFeedingSchedules(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list feeding schedules")
		return
	}

	ran := 0
	for i := range schedules {
		sch := &schedules[i]
		occurrence, due := s.dueAt(sch, prev, now)
		if !due {
			continue
		}
		log.Debug().Int64("schedule_id", sch.ID).Time("occurrence", occurrence).Msg("feeding schedule due")
		s.runSchedule(ctx, sch, now)
		ran++
	}
	if ran > 0 {
		log.Info().Int("schedules", ran).Msg("scheduler tick finished")
	}
}

// dueAt returns the occurrence of sch inside (prev, now] that has not run yet.
func (s *Service) dueAt(sch *model.FeedingSchedule, prev, now time.Time) (time.Time, bool) {
	tod, err := parse.ParseTimeOfDay(sch.ScheduledTime)
	if err != nil {
		log.Warn().Err(err).Int64("schedule_id", sch.ID).Msg("skipping schedule with invalid time")
		return time.Time{}, false
	}

	last := truncateDay(now)
	for day := truncateDay(prev); !day.After(last); day = day.AddDate(0, 0, 1) {
		occurrence := tod.On(day)
		if !occurrence.After(prev) || occurrence.After(now) {
			continue
		}
		if sch.LastRunAt != nil && !sch.LastRunAt.Before(occurrence) {
			continue
		}
		return occurrence, true
	}
	return time.Time{}, false
}

// runSchedule feeds for one schedule and stamps it whatever the outcome.
func (s *Service) runSchedule(ctx context.Context, sch *model.FeedingSchedule, now time.Time) {
	defer func() {
		if err := s.store.MarkScheduleRun(ctx, sch.ID, now); err != nil {
			log.Error().Err(err).Int64("schedule_id", sch.ID).Msg("failed to stamp feeding schedule")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("schedule_id", sch.ID).Msg("scheduled feed panicked")
		}
	}()

	res, err := s.feeder.FeedNow(ctx, feeding.Request{
		AquariumID: sch.AquariumID,
		FoodType:   sch.FoodType,
		Source:     model.SourceSchedule,
	})
	if err != nil {
		log.Error().Err(err).Int64("schedule_id", sch.ID).Int64("aquarium_id", sch.AquariumID).Msg("scheduled feed failed")
		return
	}
	log.Info().Int64("schedule_id", sch.ID).Int64("aquarium_id", sch.AquariumID).Str("status", res.Status).Msg("scheduled feed done")
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
