package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/prometheus/client_golang/prometheus"
)

type ProtocolDiffer func(old, new any) (diff any, err error)

// emptier is implemented by protocol diffs that can tell they carry no change.
type emptier interface {
	IsEmpty() bool
}

// StateDifferConfig holds all the individual differ functions and dependencies.
type StateDifferConfig struct {
	// One differ per schema (data contract), not per protocol identity.
	ProtocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
	Registry        prometheus.Registerer
	Logger          Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, d := range c.ProtocolDiffers {
		if d == nil {
			return fmt.Errorf("config: differ for schema %q is nil", schema)
		}
	}
	return nil
}

// StateDiffer computes StateDiffs with one ProtocolDiffer per schema.
type StateDiffer struct {
	metrics         *Metrics
	logger          Logger
	protocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	protocolDiffers := make(map[engine.ProtocolSchema]ProtocolDiffer, len(cfg.ProtocolDiffers))
	for schema, protocolDiffer := range cfg.ProtocolDiffers {
		protocolDiffers[schema] = protocolDiffer
	}

	return &StateDiffer{
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		protocolDiffers: protocolDiffers,
	}, nil
}

// Diff compares two error-free states of the same chain. Every protocol of new must
// exist in old.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues(totalLabel))
	defer totalTimer.ObserveDuration()

	if old.HasErrors() || new.HasErrors() {
		return nil, errors.New("state differ received a state with errors")
	}
	if old.ChainID != new.ChainID {
		return nil, fmt.Errorf("cannot diff chain %d against chain %d", old.ChainID, new.ChainID)
	}

	protocolDiffs := make(map[engine.ProtocolID]ProtocolDiff)
	for protocolID, newProtocolState := range new.Protocols {
		oldProtocolState, ok := old.Protocols[protocolID]
		if !ok {
			return nil, fmt.Errorf("protocolID %s does not exist in old state", protocolID)
		}

		differFunc, exists := d.protocolDiffers[newProtocolState.Schema]
		if !exists {
			return nil, fmt.Errorf("no differ registered for schema %q", newProtocolState.Schema)
		}
		timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues(string(newProtocolState.Schema)))
		diffData, err := differFunc(oldProtocolState.Data, newProtocolState.Data)
		timer.ObserveDuration()
		if err != nil {
			d.metrics.diffErrors.WithLabelValues(string(newProtocolState.Schema)).Inc()
			return nil, fmt.Errorf("diff protocol %s: %w", protocolID, err)
		}
		if e, ok := diffData.(emptier); ok && e.IsEmpty() && oldProtocolState.Meta.Name == newProtocolState.Meta.Name {
			d.metrics.skipped.Inc()
			continue
		}

		protocolDiffs[protocolID] = ProtocolDiff{
			Meta:              newProtocolState.Meta,
			SyncedBlockNumber: newProtocolState.SyncedBlockNumber,
			Schema:            newProtocolState.Schema,
			Data:              diffData,
		}
	}

	d.logger.Debug("state diffed", "fromBlock", old.Block.Number, "toBlock", new.Block.Number, "protocols", len(protocolDiffs))
	return &StateDiff{
		Timestamp: uint64(time.Now().UnixNano()),
		FromBlock: old.Block.Number,
		ToBlock:   new.Block,
		Protocols: protocolDiffs,
	}, nil
}
