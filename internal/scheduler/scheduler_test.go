package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	s := New(Options{Interval: 5 * time.Millisecond, RunImmediately: true}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if ticks.Add(1) == 2 {
				return errors.New("tick failure must not stop the loop")
			}
			if ticks.Load() >= 4 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("应以 context.Canceled 结束, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未按时退出")
	}
	if ticks.Load() < 4 {
		t.Fatalf("期望至少 4 次 tick, 实际 %d", ticks.Load())
	}
}

func TestStartupDelayHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应立即返回, 实际 %v", err)
	}
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2025, 1, 1, 10, 7, 30, 0, time.UTC)

	if got := s.nextTick(now); !got.Equal(time.Date(2025, 1, 1, 10, 10, 0, 0, time.UTC)) {
		t.Fatalf("对齐后的下一个时间点不正确: %s", got)
	}
	if got := s.slotStart(now); !got.Equal(time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC)) {
		t.Fatalf("slot 起点不正确: %s", got)
	}

	loose := New(Options{Interval: time.Minute}, zerolog.Nop())
	if got := loose.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("未对齐时应为 now+interval: %s", got)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("interval 为 0 时应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
