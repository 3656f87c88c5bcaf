package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind classifies a notice.
type Kind string

const (
	KindNetwork  Kind = "network_failure"
	KindTraining Kind = "training_failure"
	KindInfo     Kind = "info"
)

// Notice is a dismissible message shown next to the chart.
type Notice struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	TargetKey string    `json:"target_key,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// BoardOptions parameterise a Board.
type BoardOptions struct {
	// Capacity bounds the number of retained notices; the oldest are evicted.
	Capacity int
	Now      func() time.Time
}

// Board holds the active notices. Safe for concurrent use.
type Board struct {
	mu       sync.Mutex
	notices  map[string]Notice
	capacity int
	now      func() time.Time
	forward  Notifier
	logger   zerolog.Logger
}

// NewBoard builds a board. forward may be nil.
func NewBoard(opts BoardOptions, forward Notifier, logger zerolog.Logger) *Board {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 50
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Board{
		notices:  make(map[string]Notice),
		capacity: capacity,
		now:      now,
		forward:  forward,
		logger:   logger.With().Str("component", "notices").Logger(),
	}
}

// Post records a notice and forwards it when a notifier is configured.
// Forwarding failures are logged; the notice is kept regardless.
func (b *Board) Post(ctx context.Context, kind Kind, targetKey, message string) Notice {
	notice := Notice{
		ID:        uuid.NewString(),
		Kind:      kind,
		TargetKey: targetKey,
		Message:   message,
		CreatedAt: b.now(),
	}

	b.mu.Lock()
	b.notices[notice.ID] = notice
	b.evictLocked()
	b.mu.Unlock()

	b.logger.Warn().Str("notice_id", notice.ID).Str("kind", string(kind)).Str("target", targetKey).Msg(message)

	if b.forward != nil {
		if err := b.forward.Notify(ctx, notice); err != nil {
			b.logger.Error().Err(err).Str("notice_id", notice.ID).Msg("forward notice failed")
		}
	}
	return notice
}

// List returns the active notices, newest first.
func (b *Board) List() []Notice {
	b.mu.Lock()
	out := make([]Notice, 0, len(b.notices))
	for _, n := range b.notices {
		out = append(out, n)
	}
	b.mu.Unlock()

	sortNewestFirst(out)
	return out
}

// Dismiss removes a notice. It reports whether the notice existed.
func (b *Board) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.notices[id]; !ok {
		return false
	}
	delete(b.notices, id)
	return true
}

func (b *Board) evictLocked() {
	if len(b.notices) <= b.capacity {
		return
	}
	all := make([]Notice, 0, len(b.notices))
	for _, n := range b.notices {
		all = append(all, n)
	}
	sortNewestFirst(all)
	for _, n := range all[b.capacity:] {
		delete(b.notices, n.ID)
	}
}

func sortNewestFirst(notices []Notice) {
	sort.SliceStable(notices, func(i, j int) bool {
		if notices[i].CreatedAt.Equal(notices[j].CreatedAt) {
			return notices[i].ID < notices[j].ID
		}
		return notices[i].CreatedAt.After(notices[j].CreatedAt)
	})
}
