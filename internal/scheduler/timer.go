package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cimillas/stockhold/internal/clock"
	"go.uber.org/zap"
)

// TimerScheduler runs reclaims from in-process timers. Pending timers are
// lost on restart; the periodic sweep covers them.
type TimerScheduler struct {
	reclaimer Reclaimer
	clock     clock.Clock
	logger    *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

func NewTimerScheduler(reclaimer Reclaimer, clk clock.Clock, logger *zap.Logger) *TimerScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerScheduler{
		reclaimer: reclaimer,
		clock:     clk,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
	}
}

func (s *TimerScheduler) ScheduleReclaim(_ context.Context, holdID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if prev, ok := s.timers[holdID]; ok {
		prev.Stop()
	}

	s.timers[holdID] = time.AfterFunc(at.Sub(s.clock.Now()), func() {
		s.mu.Lock()
		delete(s.timers, holdID)
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		if _, err := s.reclaimer.ReclaimExpiredHold(context.Background(), holdID); err != nil {
			s.logger.Error("timer reclaim failed", zap.String("hold_id", holdID), zap.Error(err))
		}
	})
	return nil
}

// Pending reports how many reclaims are still waiting for their timer.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops pending timers and waits for running reclaims to finish.
func (s *TimerScheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
