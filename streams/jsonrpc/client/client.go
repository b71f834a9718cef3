package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/differ"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-playground/validator/v10"
)

// Reconnect delays used when Config leaves them unset.
const (
	DefaultReconnectDelay    = time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
)

var validate = validator.New()

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc applies diff on top of prevState and returns the resulting state.
// prevState must not be modified.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (newState *engine.State, err error)

// DecoderFunc turns the raw data of one protocol into its typed value.
type DecoderFunc func(schema engine.ProtocolSchema, data json.RawMessage) (any, error)

// Config holds the configuration for the client.
type Config struct {
	URL              string           `validate:"required,url"`
	Logger           Logger           `validate:"required"`
	BufferSize       uint             `validate:"min=1"`
	StatePatcher     StatePatcherFunc `validate:"required"`
	StateDecoder     DecoderFunc      `validate:"required"`
	StateDiffDecoder DecoderFunc      `validate:"required"`

	// ReconnectDelay is the wait after the first failed attempt. It doubles on every
	// further failure up to MaxReconnectDelay. Zero picks the defaults.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// backoff hands out doubling reconnect delays.
type backoff struct {
	first, ceiling, next time.Duration
}

func newBackoff(first, ceiling time.Duration) *backoff {
	if first <= 0 {
		first = DefaultReconnectDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultMaxReconnectDelay
	}
	ceiling = max(ceiling, first)
	return &backoff{first: first, ceiling: ceiling, next: first}
}

// delay returns the current delay and doubles the next one.
func (b *backoff) delay() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.ceiling)
	return d
}

func (b *backoff) reset() { b.next = b.first }

// wait sleeps for the current delay and reports false if ctx ended first.
func (b *backoff) wait(ctx context.Context) bool {
	timer := time.NewTimer(b.delay())
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// StreamProcessor rebuilds the exchange state from stream messages. It keeps the
// last emitted state as the base of the next diff and knows nothing of the transport.
type StreamProcessor struct {
	lastState        *engine.State
	statePatcher     StatePatcherFunc
	stateDecoder     DecoderFunc
	stateDiffDecoder DecoderFunc
	stateCh          chan *engine.State
	logger           Logger
}

// NewStreamProcessor returns a processor that queues up to bufferSize states.
func NewStreamProcessor(
	logger Logger,
	bufferSize uint,
	statePatcher StatePatcherFunc,
	stateDecoder DecoderFunc,
	stateDiffDecoder DecoderFunc,
) *StreamProcessor {
	return &StreamProcessor{
		logger:           logger,
		stateCh:          make(chan *engine.State, bufferSize),
		statePatcher:     statePatcher,
		stateDecoder:     stateDecoder,
		stateDiffDecoder: stateDiffDecoder,
	}
}

// State returns a read-only channel for receiving new states.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.stateCh
}

// ProcessMessage decodes one subscription event and emits the state it produces.
// Rejected messages leave the last state untouched.
func (sp *StreamProcessor) ProcessMessage(msg json.RawMessage) error {
	start := time.Now()
	var event jsonrpc.SubscriptionEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case jsonrpc.EventFull:
		return sp.handleFullState(event, start)
	case jsonrpc.EventDiff:
		return sp.handleDiff(event, start)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFullState(event jsonrpc.SubscriptionEvent, start time.Time) error {
	var wire wireState
	if err := json.Unmarshal(event.Payload, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}

	state := &engine.State{
		ChainID:   wire.ChainID,
		Timestamp: wire.Timestamp,
		Block:     wire.Block,
		Protocols: make(map[engine.ProtocolID]engine.ProtocolState, len(wire.Protocols)),
	}
	err := decodeProtocols(wire.Protocols, sp.stateDecoder, func(id engine.ProtocolID, p rawProtocol, data any) {
		state.Protocols[id] = engine.ProtocolState{
			Meta:              p.Meta,
			SyncedBlockNumber: p.SyncedBlockNumber,
			Schema:            p.Schema,
			Data:              data,
			Error:             p.Error,
		}
	})
	if err != nil {
		return fmt.Errorf("failed to decode state for %w", err)
	}

	sp.emit(state, time.Since(start), event.SentAt, jsonrpc.EventFull)
	return nil
}

func (sp *StreamProcessor) handleDiff(event jsonrpc.SubscriptionEvent, start time.Time) error {
	var wire wireStateDiff
	if err := json.Unmarshal(event.Payload, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}
	if sp.lastState == nil {
		return fmt.Errorf("received diff before full state; from_block: %d, to_block: %d", wire.FromBlock, wire.ToBlock.Number)
	}

	// A diff must start at the block of the last emitted state. Anything else is
	// dropped; the next full state resynchronizes the stream.
	if last := sp.lastState.Block.Number; wire.FromBlock != last {
		sp.logger.Warn("discarding out of order diff",
			"last_block", last,
			"from_block", wire.FromBlock,
			"to_block", wire.ToBlock.Number,
		)
		return nil
	}

	diff := &differ.StateDiff{
		FromBlock: wire.FromBlock,
		ToBlock:   wire.ToBlock,
		Timestamp: wire.Timestamp,
		Protocols: make(map[engine.ProtocolID]differ.ProtocolDiff, len(wire.Protocols)),
	}
	err := decodeProtocols(wire.Protocols, sp.stateDiffDecoder, func(id engine.ProtocolID, p rawProtocol, data any) {
		diff.Protocols[id] = differ.ProtocolDiff{
			Meta:              p.Meta,
			SyncedBlockNumber: p.SyncedBlockNumber,
			Schema:            p.Schema,
			Data:              data,
			Error:             p.Error,
		}
	})
	if err != nil {
		return fmt.Errorf("failed to decode diff data for %w", err)
	}

	next, err := sp.statePatcher(sp.lastState, diff)
	if err != nil {
		return fmt.Errorf("failed to patch state: %w", err)
	}
	next.Timestamp = diff.Timestamp

	sp.emit(next, time.Since(start), event.SentAt, jsonrpc.EventDiff)
	return nil
}

// decodeProtocols runs decode over the raw data of every protocol and hands the
// result to put.
func decodeProtocols(
	raw map[engine.ProtocolID]rawProtocol,
	decode DecoderFunc,
	put func(id engine.ProtocolID, p rawProtocol, data any),
) error {
	for id, p := range raw {
		data, err := decode(p.Schema, p.Data)
		if err != nil {
			return fmt.Errorf("protocol %s: %w", id, err)
		}
		put(id, p, data)
	}
	return nil
}

// emit records state as the base for the next diff and hands it to the consumer.
func (sp *StreamProcessor) emit(state *engine.State, took time.Duration, sentAt int64, kind string) {
	sp.logger.Debug("state processed", append([]any{
		"block", state.Block.Number,
		"type", kind,
		"events", state.Block.EventCount,
		"protocols", len(state.Protocols),
		"errors", failedProtocols(state),
	}, newLatency(state.Block, took, sentAt, time.Now()).attrs()...)...)
	sp.lastState = state
	sp.stateCh <- state
}

func failedProtocols(state *engine.State) int {
	n := 0
	for _, p := range state.Protocols {
		if p.Error != "" {
			n++
		}
	}
	return n
}

// latency splits the age of a state between the server, the wire and this process.
type latency struct {
	total, server, transport, processing time.Duration
}

func newLatency(block engine.BlockSummary, took time.Duration, sentAt int64, now time.Time) latency {
	sent := time.Unix(0, sentAt)
	return latency{
		total:      now.Sub(time.Unix(int64(block.Timestamp), 0)),
		server:     sent.Sub(time.Unix(0, block.ReceivedAt)),
		transport:  now.Add(-took).Sub(sent),
		processing: took,
	}
}

func (l latency) attrs() []any {
	return []any{
		"latency_total_ms", l.total.Milliseconds(),
		"latency_server_ms", l.server.Milliseconds(),
		"latency_transport_ms", l.transport.Milliseconds(),
		"latency_proc_ms", l.processing.Milliseconds(),
	}
}

// Client follows the state stream of a server over a websocket and reconnects
// until its context ends.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
	url       string
	backoff   *backoff
}

// NewClient validates cfg and starts following the stream in the background.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher, cfg.StateDecoder, cfg.StateDiffDecoder),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
		url:       cfg.URL,
		backoff:   newBackoff(cfg.ReconnectDelay, cfg.MaxReconnectDelay),
	}
	go c.run(ctx)
	return c, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err returns the channel of fatal errors. It is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run keeps one subscription open at a time. A dropped connection or subscription
// is retried after the next backoff delay.
func (c *Client) run(ctx context.Context) {
	// stateCh stays open; closing errCh is the stop signal.
	defer close(c.errCh)
	for ctx.Err() == nil {
		err := c.follow(ctx)
		if ctx.Err() != nil {
			break
		}
		delay := c.backoff.next
		c.logger.Warn("state stream interrupted, reconnecting", "url", c.url, "error", err, "delay", delay)
		if !c.backoff.wait(ctx) {
			break
		}
	}
	c.logger.Info("state stream client stopped", "url", c.url)
}

// follow dials the server, subscribes to the state stream and feeds every message
// to the processor until the subscription fails.
func (c *Client) follow(ctx context.Context) error {
	conn, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	messages := make(chan json.RawMessage)
	sub, err := conn.Subscribe(ctx, jsonrpc.RpcNamespace, messages, jsonrpc.StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("subscribed to state stream", "url", c.url)
	c.backoff.reset()
	for {
		select {
		case msg := <-messages:
			if err := c.processor.ProcessMessage(msg); err != nil {
				c.logger.Error("dropping stream message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				return errors.New("subscription closed by server")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
