// Package server streams exchange states to JSON-RPC subscribers: a full state when
// they subscribe, then one diff per committed transaction.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/differ"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/rpc"
)

const DefaultBufferSize = 64

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type StateDiffer interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// Config holds the dependencies of a Streamer.
type Config struct {
	Chain     *chain.Chain
	Factories []*dmm.Factory
	Differ    StateDiffer
	Logger    Logger
	// BufferSize is the number of events queued per subscriber. A subscriber that falls
	// further behind skips ahead to a full state.
	BufferSize int
}

func (c *Config) validate() error {
	if c.Chain == nil {
		return errors.New("chain is required")
	}
	if len(c.Factories) == 0 {
		return errors.New("at least one factory is required")
	}
	if c.Differ == nil {
		return errors.New("differ is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.BufferSize < 0 {
		return errors.New("buffer size cannot be negative")
	}
	return nil
}

type subscriber struct {
	events chan *jsonrpc.SubscriptionEvent
	resync atomic.Bool
}

// Streamer snapshots the chain after every committed transaction and broadcasts the
// change to its subscribers. Transactions committed while a snapshot is taken are
// folded into the next one.
type Streamer struct {
	chain      *chain.Chain
	factories  []*dmm.Factory
	differ     StateDiffer
	logger     Logger
	bufferSize int

	wake    chan struct{}
	pending atomic.Int64
	done    chan struct{}
	stop    sync.Once

	mu          sync.RWMutex
	current     *engine.State
	subscribers map[uint64]*subscriber
	nextID      uint64
}

func NewStreamer(cfg *Config) (*Streamer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid streamer configuration: %w", err)
	}
	bufferSize := cfg.BufferSize
	if bufferSize == 0 {
		bufferSize = DefaultBufferSize
	}
	return &Streamer{
		chain:       cfg.Chain,
		factories:   cfg.Factories,
		differ:      cfg.Differ,
		logger:      cfg.Logger,
		bufferSize:  bufferSize,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		subscribers: make(map[uint64]*subscriber),
	}, nil
}

// Run publishes states until ctx is done. It returns nil on cancellation.
func (s *Streamer) Run(ctx context.Context) error {
	unsubscribe := s.chain.Subscribe(s.onReceipt)
	defer unsubscribe()
	defer s.stop.Do(func() { close(s.done) })

	s.publish()
	s.logger.Info("state streamer started", "block", s.chain.BlockNumber())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("state streamer stopped")
			return nil
		case <-s.wake:
			s.publish()
		}
	}
}

func (s *Streamer) onReceipt(r chain.Receipt) {
	s.pending.Add(int64(len(r.Events)))
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// State returns the last published state, or nil before Run has published one.
func (s *Streamer) State() *engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribers returns the number of connected subscribers.
func (s *Streamer) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

func encode(kind string, payload any) (*jsonrpc.SubscriptionEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", kind, err)
	}
	return &jsonrpc.SubscriptionEvent{Type: kind, Payload: raw, SentAt: time.Now().UnixNano()}, nil
}

func (s *Streamer) publish() {
	next := stateops.Snapshot(s.chain, s.factories)
	next.Block.EventCount = int(s.pending.Swap(0))

	s.mu.Lock()
	prev := s.current
	if prev != nil && prev.Block.Number == next.Block.Number {
		s.mu.Unlock()
		return
	}
	s.current = next
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	var fullEvent *jsonrpc.SubscriptionEvent
	full := func() *jsonrpc.SubscriptionEvent {
		if fullEvent == nil {
			ev, err := encode(jsonrpc.EventFull, next)
			if err != nil {
				s.logger.Error("failed to encode state", "block", next.Block.Number, "error", err)
				return nil
			}
			fullEvent = ev
		}
		return fullEvent
	}

	var diffEvent *jsonrpc.SubscriptionEvent
	if prev != nil {
		diff, err := s.differ.Diff(prev, next)
		if err == nil {
			diffEvent, err = encode(jsonrpc.EventDiff, diff)
		}
		if err != nil {
			s.logger.Error("failed to diff states, resending full state", "fromBlock", prev.Block.Number, "toBlock", next.Block.Number, "error", err)
		}
	}

	for _, sub := range subs {
		ev := diffEvent
		if ev == nil || sub.resync.Load() {
			if ev = full(); ev == nil {
				sub.resync.Store(true)
				continue
			}
		}
		select {
		case sub.events <- ev:
			if ev.Type == jsonrpc.EventFull {
				sub.resync.Store(false)
			}
		default:
			sub.resync.Store(true)
		}
	}
	s.logger.Debug("state published", "block", next.Block.Number, "events", next.Block.EventCount, "subscribers", len(subs))
}

func (s *Streamer) subscribe() (uint64, *subscriber, error) {
	sub := &subscriber{events: make(chan *jsonrpc.SubscriptionEvent, s.bufferSize)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		ev, err := encode(jsonrpc.EventFull, s.current)
		if err != nil {
			return 0, nil, err
		}
		sub.events <- ev
	}
	id := s.nextID
	s.nextID++
	s.subscribers[id] = sub
	return id, sub, nil
}

func (s *Streamer) unsubscribe(id uint64) {
	s.mu.Lock()
	delete(s.subscribers, id)
	s.mu.Unlock()
}

// StreamService is the JSON-RPC face of a Streamer.
type StreamService struct {
	streamer *Streamer
}

// Service returns the JSON-RPC service to register under jsonrpc.RpcNamespace.
func (s *Streamer) Service() *StreamService {
	return &StreamService{streamer: s}
}

// SubscribeStateStream sends the current state, then every change to it.
func (svc *StreamService) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	s := svc.streamer
	id, sub, err := s.subscribe()
	if err != nil {
		return nil, err
	}

	rpcSub := notifier.CreateSubscription()
	s.logger.Info("state stream subscribed", "subscription", rpcSub.ID)
	go func() {
		defer s.unsubscribe(id)
		for {
			select {
			case ev := <-sub.events:
				if err := notifier.Notify(rpcSub.ID, ev); err != nil {
					s.logger.Warn("failed to notify subscriber", "subscription", rpcSub.ID, "error", err)
					return
				}
			case <-rpcSub.Err():
				s.logger.Info("state stream unsubscribed", "subscription", rpcSub.ID)
				return
			case <-s.done:
				return
			}
		}
	}()
	return rpcSub, nil
}
