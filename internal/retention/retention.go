package retention

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/manpreetbhatti/codecollab/internal/room"
)

const passTimeout = time.Minute

type Config struct {
	Interval time.Duration
	// MaxVersions caps each live room's history; 0 keeps everything
	MaxVersions int
	// RoomIdleTTL evicts rooms that have been empty this long; 0 never evicts
	RoomIdleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
	}
}

func (c Config) Enabled() bool {
	return c.MaxVersions > 0 || c.RoomIdleTTL > 0
}

// Report summarizes one retention pass
type Report struct {
	Pruned  int
	Evicted []string
}

// Service periodically trims version history and evicts idle rooms
type Service struct {
	rooms    *room.Registry
	config   Config
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(rooms *room.Registry, config Config) *Service {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Service{
		rooms:  rooms,
		config: config,
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("🗜️ Retention service started (interval: %v, max versions: %d, idle ttl: %v)",
		s.config.Interval, s.config.MaxVersions, s.config.RoomIdleTTL)
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	log.Println("🗜️ Retention service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
			s.RunOnce(ctx)
			cancel()
		}
	}
}

// RunOnce prunes history first so rooms about to be evicted are trimmed too
func (s *Service) RunOnce(ctx context.Context) Report {
	var report Report

	if s.config.MaxVersions > 0 {
		for _, r := range s.rooms.Rooms() {
			if ctx.Err() != nil {
				break
			}
			n, err := r.PruneHistory(ctx, s.config.MaxVersions)
			if err != nil {
				log.Printf("Retention: failed to prune room %s: %v", r.ID, err)
				continue
			}
			report.Pruned += n
		}
	}

	if s.config.RoomIdleTTL > 0 {
		report.Evicted = s.rooms.EvictIdle(s.config.RoomIdleTTL)
	}

	if report.Pruned > 0 || len(report.Evicted) > 0 {
		log.Printf("🗜️ Retention pruned %d versions, evicted %d rooms", report.Pruned, len(report.Evicted))
	}
	return report
}
