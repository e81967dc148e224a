package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/config"
	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/lifx"
	"github.com/dokzlo13/lifxd/internal/storage"
)

// LIFXService wraps the LIFX client, the resource cache and the event bus
// that carries webhook, schedule and rate-limit events.
type LIFXService struct {
	cfg *config.Config

	Client *lifx.Client
	Cache  *storage.Cache
	Bus    *eventbus.Bus

	mu     sync.Mutex
	resume *time.Timer
}

// minResumeDelay bounds how often an exhausted budget is retried when the
// API reports a reset time that has already passed.
const minResumeDelay = time.Second

// NewLIFXService creates the client and bus. No request is made until Start.
func NewLIFXService(cfg *config.Config, cache *storage.Cache) *LIFXService {
	bus := eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s := &LIFXService{
		cfg:   cfg,
		Cache: cache,
		Bus:   bus,
	}

	s.Client = lifx.NewClient(cfg.LIFX.Token,
		lifx.WithBaseURL(cfg.LIFX.BaseURL),
		lifx.WithTimeout(cfg.LIFX.Timeout.Duration()),
		lifx.WithUserAgent(cfg.LIFX.UserAgent),
		lifx.WithRateLimitHook(func(rl lifx.RateLimit) {
			bus.Publish(eventbus.NewEvent(eventbus.EventTypeRateLimit, map[string]any{
				"limit":     rl.Limit,
				"remaining": rl.Remaining,
				"reset":     rl.Reset,
			}))
			if rl.Remaining <= 0 {
				s.scheduleResume(rl)
			}
		}),
	)

	return s
}

// scheduleResume re-applies the configured token once the rate-limit window
// resets. The client refuses every call while its snapshot is exhausted and
// only forgets the snapshot when the token is set.
func (s *LIFXService) scheduleResume(rl lifx.RateLimit) {
	delay := max(time.Until(rl.ResetTime()), minResumeDelay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resume != nil {
		s.resume.Stop()
	}
	s.resume = time.AfterFunc(delay, func() {
		current := s.Client.RateLimit()
		if current == nil || current.Remaining > 0 {
			return
		}
		s.Client.SetToken(s.cfg.LIFX.Token)
		log.Info().Time("reset", rl.ResetTime()).Msg("Rate limit window reset, resuming requests")
	})
	log.Warn().Dur("resume_in", delay).Msg("Rate limit exhausted, pausing requests")
}

// Start checks the token by listing lights and warms the light cache.
func (s *LIFXService) Start(ctx context.Context) error {
	lights, err := s.Client.ListLights(ctx, "all")
	if err != nil {
		if lifx.IsAPIError(err, 401, 403) {
			return err
		}
		// the daemon stays useful without the initial listing
		log.Warn().Err(err).Str("kind", string(lifx.KindOf(err))).Msg("Failed to list lights on startup")
		return nil
	}

	if err := s.Cache.StoreLights(lights); err != nil {
		log.Error().Err(err).Msg("Failed to cache lights")
	}
	log.Info().Int("lights", len(lights)).Str("api", s.Client.BaseURL()).Msg("Connected to LIFX cloud")
	return nil
}

// Close releases all resources.
func (s *LIFXService) Close() {
	s.mu.Lock()
	if s.resume != nil {
		s.resume.Stop()
	}
	s.mu.Unlock()

	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.Client != nil {
		s.Client.Close()
	}
}
