// Package livefeed pushes ledger updates and heartbeats to connected
// observers. Publishing never blocks the ledger write that triggered it.
package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-credledger/core"
)

const (
	FrameConnected    = "connected"
	FrameLedgerUpdate = "ledger.update"
	FrameHeartbeat    = "heartbeat"
)

var ErrClosed = errors.New("livefeed: subscriber closed")

type Frame struct {
	Type   string            `json:"type"`
	Entry  *core.LedgerEvent `json:"entry,omitempty"`
	Totals *core.DailyTotals `json:"totals,omitempty"`
	At     string            `json:"at,omitempty"`
}

// Subscriber receives encoded frames. Send must not block; an error removes
// the subscriber from the feed.
type Subscriber interface {
	Send(frame []byte) error
	Close() error
}

type TotalsSource interface {
	DailyTotals(ctx context.Context) (core.DailyTotals, error)
}

type Option func(*Broadcaster)

func WithLogger(logger glog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

func WithHeartbeatInterval(interval time.Duration) Option {
	return func(b *Broadcaster) {
		if interval > 0 {
			b.heartbeat = interval
		}
	}
}

func WithQueueSize(size int) Option {
	return func(b *Broadcaster) {
		if size > 0 {
			b.queueSize = size
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *Broadcaster) {
		if clock != nil {
			b.clock = clock
		}
	}
}

type Broadcaster struct {
	logger    glog.Logger
	totals    TotalsSource
	heartbeat time.Duration
	queueSize int
	clock     func() time.Time

	queue chan core.LedgerEvent

	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}

	dropped atomic.Int64
}

// New builds a broadcaster. totals may be nil, in which case update frames
// carry only the entry.
func New(totals TotalsSource, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		totals:      totals,
		heartbeat:   core.DefaultHeartbeatInterval,
		queueSize:   core.DefaultFeedQueueSize,
		clock:       func() time.Time { return time.Now().UTC() },
		subscribers: map[Subscriber]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.logger = glog.Ensure(b.logger)
	b.queue = make(chan core.LedgerEvent, b.queueSize)
	return b
}

// Publish enqueues event for fan-out. A full queue drops the event.
func (b *Broadcaster) Publish(event core.LedgerEvent) {
	if b == nil {
		return
	}
	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
		b.logger.Warn("live feed queue full, dropping update", "ledger_event_id", event.ID, "queue_size", b.queueSize)
	}
}

func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Register adds sub and sends the connected acknowledgment. A subscriber that
// cannot take the acknowledgment is closed and not registered.
func (b *Broadcaster) Register(sub Subscriber) error {
	if sub == nil {
		return errors.New("livefeed: subscriber is required")
	}
	frame, err := json.Marshal(Frame{Type: FrameConnected, At: core.FormatTimestamp(b.clock())})
	if err != nil {
		return err
	}
	if err := sub.Send(frame); err != nil {
		_ = sub.Close()
		return err
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	count := len(b.subscribers)
	b.mu.Unlock()
	b.logger.Info("live feed subscriber connected", "subscribers", count)
	return nil
}

// Unregister removes sub. It is safe to call more than once.
func (b *Broadcaster) Unregister(sub Subscriber) {
	b.mu.Lock()
	_, ok := b.subscribers[sub]
	delete(b.subscribers, sub)
	count := len(b.subscribers)
	b.mu.Unlock()
	if ok {
		_ = sub.Close()
		b.logger.Info("live feed subscriber disconnected", "subscribers", count)
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Run consumes published events and emits heartbeats until ctx is done, then
// closes every subscriber.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()
	defer b.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.queue:
			b.broadcastUpdate(ctx, event)
		case <-ticker.C:
			b.Heartbeat()
		}
	}
}

// Heartbeat sends one heartbeat frame to every subscriber.
func (b *Broadcaster) Heartbeat() {
	frame, err := json.Marshal(Frame{Type: FrameHeartbeat, At: core.FormatTimestamp(b.clock())})
	if err != nil {
		b.logger.Error("live feed heartbeat encode failed", "error", err)
		return
	}
	b.broadcast(frame)
}

func (b *Broadcaster) broadcastUpdate(ctx context.Context, event core.LedgerEvent) {
	frame := Frame{Type: FrameLedgerUpdate, Entry: &event}
	if b.totals != nil {
		totals, err := b.totals.DailyTotals(ctx)
		if err != nil {
			b.logger.Warn("live feed totals refresh failed", "ledger_event_id", event.ID, "error", err)
		} else {
			frame.Totals = &totals
		}
	}
	data, err := json.Marshal(frame)
	if err != nil {
		b.logger.Error("live feed update encode failed", "ledger_event_id", event.ID, "error", err)
		return
	}
	b.broadcast(data)
}

func (b *Broadcaster) broadcast(frame []byte) {
	for _, sub := range b.snapshot() {
		if err := sub.Send(frame); err != nil {
			b.logger.Warn("live feed send failed, dropping subscriber", "error", err)
			b.Unregister(sub)
		}
	}
}

func (b *Broadcaster) snapshot() []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		out = append(out, sub)
	}
	return out
}

func (b *Broadcaster) closeAll() {
	for _, sub := range b.snapshot() {
		b.Unregister(sub)
	}
}

var _ core.LedgerNotifier = (*Broadcaster)(nil)
