package scheduler

import (
	"log"
	"sync"
	"time"
)

// Scheduler runs the background sync jobs: a full sync on a long
// interval and a light refresh on a short one. Jobs only run while the
// session is unlocked, a tick arriving mid-run is dropped rather than
// queued, and the light job yields when a full sync ran recently.

// Job is one background task.
type Job func()

// Config wires the scheduler's dependencies.
type Config struct {
	FullInterval  time.Duration
	LightInterval time.Duration
	FullSync      Job
	LightSync     Job
	// SessionActive gates every run; nil means always active.
	SessionActive func() bool
}

type Scheduler struct {
	cfg    Config
	logger *log.Logger

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
	fullRunning  bool
	lightRunning bool
	lastFullSync time.Time
}

func New(cfg Config) *Scheduler {
	if cfg.FullInterval <= 0 {
		cfg.FullInterval = 60 * time.Minute
	}
	if cfg.LightInterval <= 0 {
		cfg.LightInterval = 15 * time.Minute
	}
	return &Scheduler{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[SYNC-SCHED] ", log.LstdFlags),
	}
}

// Start launches the two job loops. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.loop(s.cfg.FullInterval, s.runFull)
	go s.loop(s.cfg.LightInterval, s.runLight)

	s.logger.Printf("started (full every %s, light every %s)",
		s.cfg.FullInterval, s.cfg.LightInterval)
}

// Stop signals both loops and returns without waiting for an in-flight
// job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.logger.Printf("stopped")
}

// Wait blocks until both loops have exited. Test helper and shutdown
// aid; Stop itself never blocks.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(interval time.Duration, run func()) {
	defer s.wg.Done()

	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			run()
		}
	}
}

// RunFullNow triggers a full sync outside the ticker, with the same
// gating. Used after login so data is fresh immediately.
func (s *Scheduler) RunFullNow() {
	go s.runFull()
}

func (s *Scheduler) runFull() {
	if !s.sessionActive() {
		return
	}

	s.mu.Lock()
	if s.fullRunning {
		s.mu.Unlock()
		s.logger.Printf("full sync still running, skipping tick")
		return
	}
	s.fullRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fullRunning = false
		s.lastFullSync = time.Now()
		s.mu.Unlock()
	}()

	if s.cfg.FullSync != nil {
		s.cfg.FullSync()
	}
}

func (s *Scheduler) runLight() {
	if !s.sessionActive() {
		return
	}

	s.mu.Lock()
	if s.lightRunning || s.fullRunning {
		s.mu.Unlock()
		return
	}
	// A recent full sync covers everything the light pass would do.
	if !s.lastFullSync.IsZero() && time.Since(s.lastFullSync) < s.cfg.LightInterval {
		s.mu.Unlock()
		s.logger.Printf("full sync ran recently, skipping light sync")
		return
	}
	s.lightRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.lightRunning = false
		s.mu.Unlock()
	}()

	if s.cfg.LightSync != nil {
		s.cfg.LightSync()
	}
}

func (s *Scheduler) sessionActive() bool {
	if s.cfg.SessionActive == nil {
		return true
	}
	return s.cfg.SessionActive()
}
