package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingNotifier struct {
	got []Notice
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notice) error {
	r.got = append(r.got, n)
	return r.err
}

func steppingClock() func() time.Time {
	t := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestBoardPostListDismiss(t *testing.T) {
	board := NewBoard(BoardOptions{Now: steppingClock()}, nil, testLogger())

	first := board.Post(context.Background(), KindNetwork, "product:1", "offline")
	second := board.Post(context.Background(), KindTraining, "product:2", "training failed")
	if first.ID == second.ID {
		t.Fatalf("通知 ID 应唯一: %s", first.ID)
	}

	list := board.List()
	if len(list) != 2 {
		t.Fatalf("期望 2 条通知, 实际 %d", len(list))
	}
	if list[0].ID != second.ID {
		t.Fatalf("最新的通知应排在最前")
	}

	if !board.Dismiss(first.ID) {
		t.Fatalf("首次关闭应成功")
	}
	if board.Dismiss(first.ID) {
		t.Fatalf("重复关闭应返回 false")
	}
	if n := len(board.List()); n != 1 {
		t.Fatalf("关闭后期望 1 条通知, 实际 %d", n)
	}
}

func TestBoardEvictsOldest(t *testing.T) {
	board := NewBoard(BoardOptions{Capacity: 2, Now: steppingClock()}, nil, testLogger())
	oldest := board.Post(context.Background(), KindInfo, "", "a")
	board.Post(context.Background(), KindInfo, "", "b")
	board.Post(context.Background(), KindInfo, "", "c")

	list := board.List()
	if len(list) != 2 {
		t.Fatalf("容量为 2 时应保留 2 条, 实际 %d", len(list))
	}
	for _, n := range list {
		if n.ID == oldest.ID {
			t.Fatalf("最旧的通知应被淘汰")
		}
	}
}

func TestBoardForwardFailureKeepsNotice(t *testing.T) {
	forward := &recordingNotifier{err: errors.New("telegram down")}
	board := NewBoard(BoardOptions{}, forward, testLogger())

	notice := board.Post(context.Background(), KindNetwork, "category:3", "offline")
	if len(forward.got) != 1 || forward.got[0].ID != notice.ID {
		t.Fatalf("通知应转发一次: %#v", forward.got)
	}
	if n := len(board.List()); n != 1 {
		t.Fatalf("转发失败时通知仍应保留, 实际 %d", n)
	}
}
