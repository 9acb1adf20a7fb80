package changerequest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/redmoon-ch/unchain/pkg/appcontext"
	"github.com/redmoon-ch/unchain/pkg/metrics"
	"github.com/redmoon-ch/unchain/pkg/redis"
	"github.com/redmoon-ch/unchain/pkg/repositories"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

// ErrSchedulerAlreadyRunning is returned when starting a running scheduler
var ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

const (
	// DefaultPollInterval is how often the scheduler scans for due requests
	DefaultPollInterval = time.Minute

	// leadershipKey is the redis lock that elects one instance per cycle
	leadershipKey = "scheduler:change-requests"

	leadershipTTL = 50 * time.Second

	// schedulerActor is the audit identity for scheduled applies
	schedulerActor = "scheduler"
)

// Scheduler applies approved change requests whose scheduled time has
// passed. A redis lock elects one instance per cycle, so running multiple
// replicas is safe; applies go through the same serialized path as
// interactive requests.
type Scheduler struct {
	service *Service
	crs     repositories.ChangeRequestRepo
	locker  *redis.Locker
	logger  ectologger.Logger

	interval time.Duration
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler. interval <= 0 uses the default.
func NewScheduler(service *Service, crs repositories.ChangeRequestRepo, locker *redis.Locker, logger ectologger.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		service:  service,
		crs:      crs,
		locker:   locker,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the poll loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedC = make(chan struct{})
	s.mu.Unlock()

	go s.pollLoop(ctx)

	s.logger.WithContext(ctx).Info("Change request scheduler started")
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Change request scheduler stopped")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Change request scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestScheduler.runCycle")
	defer span.End()

	lock, err := s.locker.Acquire(ctx, leadershipKey, leadershipTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			// Another instance owns this cycle.
			metrics.SchedulerCycles.WithLabelValues("skipped").Inc()
			return
		}
		s.logger.WithContext(ctx).WithError(err).Error("Failed to acquire scheduler leadership lock")
		metrics.SchedulerCycles.WithLabelValues("error").Inc()
		return
	}
	defer lock.Release(ctx)

	due, err := s.crs.ListDueScheduled(ctx, time.Now())
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list due change requests")
		metrics.SchedulerCycles.WithLabelValues("error").Inc()
		return
	}
	metrics.SchedulerCycles.WithLabelValues("ok").Inc()

	if len(due) == 0 {
		return
	}

	s.logger.WithContext(ctx).Infof("Applying %d scheduled change requests", len(due))
	actorCtx := appcontext.SetUserName(ctx, schedulerActor)

	for _, cr := range due {
		if _, err := s.service.Apply(actorCtx, cr.ID); err != nil {
			// The failure is recorded on the request; it stays Approved
			// and out of the due list until someone reschedules it.
			s.logger.WithContext(ctx).WithError(err).Warnf("Scheduled apply of change request %s failed", cr.ID)
			metrics.SchedulerAppliedTotal.WithLabelValues("error").Inc()
			continue
		}
		metrics.SchedulerAppliedTotal.WithLabelValues("ok").Inc()
	}
}
