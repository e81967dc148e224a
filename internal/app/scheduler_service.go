package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/config"
	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/geo"
	"github.com/dokzlo13/lifxd/internal/ledger"
	"github.com/dokzlo13/lifxd/internal/scheduler"
	"github.com/dokzlo13/lifxd/internal/storage"
)

// SchedulerService wraps the scheduler and the retention loop that prunes
// the ledger and expired script keys.
type SchedulerService struct {
	cfg       *config.Config
	Scheduler *scheduler.Scheduler // nil when disabled
	ledger    *ledger.Ledger
	kv        *storage.KV
}

// NewSchedulerService creates the scheduler and registers the schedules
// from the config file. Lua scripts may add more before Start.
func NewSchedulerService(cfg *config.Config, bus *eventbus.Bus, l *ledger.Ledger, kv *storage.KV) (*SchedulerService, error) {
	s := &SchedulerService{cfg: cfg, ledger: l, kv: kv}
	if !cfg.Scheduler.Enabled {
		return s, nil
	}

	s.Scheduler = scheduler.New(bus, l, cfg.Scheduler.Timezone)
	if loc := cfg.Scheduler.Location; loc != nil {
		calc, err := geo.NewCalculator(loc.Latitude, loc.Longitude)
		if err != nil {
			return nil, err
		}
		s.Scheduler.SetLocation(calc)
	}
	if err := s.loadConfigSchedules(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SchedulerService) loadConfigSchedules() error {
	for _, sc := range s.cfg.Scheduler.Schedules {
		if sc.Every > 0 {
			if err := s.Scheduler.DefinePeriodic(sc.ID, sc.Every.Duration(), sc.Action, sc.Args, sc.Tag); err != nil {
				return err
			}
			continue
		}

		policy, err := scheduler.ParseMisfirePolicy(sc.Misfire)
		if err != nil {
			return err
		}
		if sc.Sun != "" {
			err = s.Scheduler.DefineSun(sc.ID, sc.Sun, sc.Offset.Duration(), sc.Action, sc.Args, sc.Tag, policy)
		} else {
			err = s.Scheduler.Define(sc.ID, sc.At, sc.Action, sc.Args, sc.Tag, policy)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// IsEnabled returns whether the scheduler is enabled.
func (s *SchedulerService) IsEnabled() bool {
	return s.Scheduler != nil
}

// Start runs boot recovery, the scheduler loop and the ledger cleanup.
func (s *SchedulerService) Start(ctx context.Context) {
	go s.runRetention(ctx)

	if s.Scheduler == nil {
		log.Info().Msg("Scheduler is disabled")
		return
	}

	s.Scheduler.RunBootRecovery()
	log.Info().Str("schedules", s.Scheduler.Describe()).Msg("Schedules loaded")

	go func() {
		if err := s.Scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduler error")
		}
	}()
}

// runRetention periodically deletes ledger entries past the retention period
// and expired kv keys.
func (s *SchedulerService) runRetention(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
			if s.kv == nil {
				continue
			}
			if expired, err := s.kv.DeleteExpired(); err != nil {
				log.Error().Err(err).Msg("Failed to cleanup expired kv keys")
			} else if expired > 0 {
				log.Debug().Int64("deleted", expired).Msg("Cleaned up expired kv keys")
			}
		}
	}
}
