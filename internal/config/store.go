package config

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
)

// Store holds a hot-swappable config snapshot. Readers get a consistent view
// per call; SIGHUP swaps in a fresh one without touching in-flight probes.
type Store struct {
	v atomic.Pointer[Config]
}

func NewStore(cfg Config) *Store {
	s := &Store{}
	s.v.Store(&cfg)
	return s
}

// Current returns the active snapshot. Callers must not mutate it.
func (s *Store) Current() *Config { return s.v.Load() }

// Reload re-reads the environment into a new snapshot.
func (s *Store) Reload() *Config {
	cfg := Load()
	s.v.Store(&cfg)
	return &cfg
}

// WatchSIGHUP reloads on SIGHUP until ctx is cancelled.
func (s *Store) WatchSIGHUP(ctx context.Context, log *zap.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			cfg := s.Reload()
			log.Info("config_reloaded",
				zap.Int("outage_threshold", cfg.OutageThreshold),
				zap.Bool("verify_outages", cfg.VerifyOutages),
				zap.Duration("check_interval", cfg.CheckInterval),
			)
		}
	}
}
