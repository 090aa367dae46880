package scheduler_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/arkade-os/pegd/internal/infrastructure/explorer/esplora"
	blockscheduler "github.com/arkade-os/pegd/internal/infrastructure/scheduler/block"
	timescheduler "github.com/arkade-os/pegd/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

func TestScheduleTask(t *testing.T) {
	t.Parallel()

	scheduler := timescheduler.NewScheduler()
	scheduler.Start()
	t.Cleanup(scheduler.Stop)

	t.Run("once", func(t *testing.T) {
		var called atomic.Bool
		at := scheduler.AddNow(2)
		require.True(t, scheduler.AfterNow(at))

		err := scheduler.ScheduleTaskOnce(at, func() { called.Store(true) })
		require.NoError(t, err)

		require.False(t, called.Load())
		require.Eventually(t, called.Load, 4*time.Second, 50*time.Millisecond)
	})

	t.Run("once never runs early", func(t *testing.T) {
		// Schedule late in a wall clock second, when rounding to the closest second
		// would shorten the delay.
		now := time.Now()
		start := now.Truncate(time.Second).Add(800 * time.Millisecond)
		if start.Before(now) {
			start = start.Add(time.Second)
		}
		time.Sleep(time.Until(start))

		var calledAt atomic.Int64
		at := time.Now().Unix() + 2
		err := scheduler.ScheduleTaskOnce(at, func() { calledAt.Store(time.Now().UnixNano()) })
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return calledAt.Load() > 0
		}, 5*time.Second, 50*time.Millisecond)
		require.GreaterOrEqual(t, calledAt.Load(), time.Unix(at, 0).UnixNano())
	})

	t.Run("in the past", func(t *testing.T) {
		var called atomic.Bool
		at := scheduler.AddNow(-10)
		require.False(t, scheduler.AfterNow(at))

		err := scheduler.ScheduleTaskOnce(at, func() { called.Store(true) })
		require.NoError(t, err)
		require.Eventually(t, called.Load, time.Second, 10*time.Millisecond)
	})

	t.Run("recurring", func(t *testing.T) {
		var count atomic.Int32
		err := scheduler.ScheduleRecurringTask(time.Second, func() { count.Add(1) })
		require.NoError(t, err)

		// The first run happens right away.
		require.Eventually(t, func() bool {
			return count.Load() >= 1
		}, 500*time.Millisecond, 10*time.Millisecond)
		require.Eventually(t, func() bool {
			return count.Load() >= 2
		}, 3*time.Second, 50*time.Millisecond)

		require.Error(t, scheduler.ScheduleRecurringTask(0, func() {}))
	})
}

func TestBlockNotifier(t *testing.T) {
	t.Parallel()

	notifier := newBlockNotifier(t)

	heights := make(chan int64, 10)
	notifier.OnNewBlock(func(height int64) { heights <- height })
	notifier.Start()
	t.Cleanup(notifier.Stop)

	var first, second int64
	select {
	case first = <-heights:
	case <-time.After(3 * time.Second):
		t.Fatal("no block notified")
	}
	select {
	case second = <-heights:
	case <-time.After(3 * time.Second):
		t.Fatal("no block notified")
	}
	require.Greater(t, second, first)

	// Stop is idempotent.
	notifier.Stop()
}

func newBlockNotifier(t *testing.T) ports.BlockNotifier {
	// mock esplora server for block tip endpoint
	var blockHeight int64 = 99
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/blocks/tip/height" {
			w.WriteHeader(http.StatusOK)
			height := atomic.AddInt64(&blockHeight, 1)
			// nolint:errcheck
			fmt.Fprintf(w, "%d", height)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(func() {
		mockServer.Close()
	})

	explorer, err := esplora.NewExplorer(mockServer.URL)
	require.NoError(t, err)

	notifier, err := blockscheduler.NewBlockNotifier(
		explorer,
		blockscheduler.WithTickerInterval(time.Millisecond*200),
	)
	if err != nil {
		t.Fatalf("failed to create block notifier: %v", err)
	}
	return notifier
}
