package timescheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) AddNow(lifetime int64) int64 {
	return time.Now().Add(time.Duration(lifetime) * time.Second).Unix()
}

func (s *service) AfterNow(expiry int64) bool {
	return time.Unix(expiry, 0).After(time.Now())
}

func (s *service) ScheduleTaskOnce(at int64, task func()) error {
	delay := time.Until(time.Unix(at, 0))
	if delay <= 0 {
		log.Debugf("task scheduled in the past (%d), running it now", at)
		go task()
		return nil
	}

	// gocron works in whole seconds, round up so the task never runs before at.
	seconds := int(math.Ceil(delay.Seconds()))
	if _, err := s.scheduler.Every(seconds).Seconds().WaitForSchedule().LimitRunsTo(1).Do(task); err != nil {
		return fmt.Errorf("failed to schedule task at %d: %s", at, err)
	}
	return nil
}

func (s *service) ScheduleRecurringTask(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}
	if _, err := s.scheduler.Every(interval).SingletonMode().Do(task); err != nil {
		return fmt.Errorf("failed to schedule recurring task: %s", err)
	}
	return nil
}
