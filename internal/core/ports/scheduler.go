package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()
	// AddNow returns the unix timestamp lifetime seconds from now.
	AddNow(lifetime int64) int64
	AfterNow(expiry int64) bool
	// ScheduleTaskOnce runs the task once at the given unix timestamp.
	ScheduleTaskOnce(at int64, task func()) error
	// ScheduleRecurringTask runs the task every interval, starting right away.
	ScheduleRecurringTask(interval time.Duration, task func()) error
}

// BlockNotifier calls the registered handlers every time the chain tip advances.
type BlockNotifier interface {
	Start()
	Stop()
	OnNewBlock(handler func(height int64))
}
