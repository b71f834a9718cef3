package stateops

import (
	"encoding/json"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/differ"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/patcher"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	poolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry"
	tokenpoolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenpoolregistry"
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps bundles the operations on exchange states:
// 1. Differ: the delta between two states, computed by the streaming server.
// 2. Patcher: a delta applied to the previous state, used by clients.
// 3. Decoders: JSON payloads turned back into the typed data of each schema.
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	protocolDiffers := map[engine.ProtocolSchema]differ.ProtocolDiffer{
		tokenregistry.Schema: func(old, new any) (any, error) {
			o, n, err := cast[[]tokenregistry.Token](old, new)
			if err != nil {
				return nil, err
			}
			return tokenregistry.Differ(o, n), nil
		},
		poolregistry.Schema: func(old, new any) (any, error) {
			o, n, err := cast[poolregistry.PoolRegistry](old, new)
			if err != nil {
				return nil, err
			}
			return poolregistry.Differ(o, n), nil
		},
		tokenpoolregistry.Schema: func(old, new any) (any, error) {
			o, n, err := cast[*tokenpoolregistry.TokenPoolRegistryView](old, new)
			if err != nil {
				return nil, err
			}
			return tokenpoolregistry.TokenPoolRegistryDiffer(o, n), nil
		},
		dmm.Schema: func(old, new any) (any, error) {
			o, n, err := cast[[]dmm.PoolView](old, new)
			if err != nil {
				return nil, err
			}
			return dmm.Differ(o, n), nil
		},
	}

	protocolPatchers := map[engine.ProtocolSchema]patcher.PatcherFunc{
		tokenregistry.Schema: func(prevState, diff any) (any, error) {
			prev, _ := prevState.([]tokenregistry.Token)
			d, ok := diff.(tokenregistry.TokenSystemDiff)
			if !ok {
				return nil, fmt.Errorf("unexpected diff type %T", diff)
			}
			return tokenregistry.Patcher(prev, d)
		},
		poolregistry.Schema: func(prevState, diff any) (any, error) {
			prev, _ := prevState.(poolregistry.PoolRegistry)
			d, ok := diff.(poolregistry.PoolRegistryDiff)
			if !ok {
				return nil, fmt.Errorf("unexpected diff type %T", diff)
			}
			return poolregistry.Patcher(prev, d)
		},
		tokenpoolregistry.Schema: func(prevState, diff any) (any, error) {
			prev, _ := prevState.(*tokenpoolregistry.TokenPoolRegistryView)
			d, ok := diff.(tokenpoolregistry.TokenPoolRegistryDiff)
			if !ok {
				return nil, fmt.Errorf("unexpected diff type %T", diff)
			}
			return tokenpoolregistry.TokenPoolRegistryPatcher(prev, d)
		},
		dmm.Schema: func(prevState, diff any) (any, error) {
			prev, _ := prevState.([]dmm.PoolView)
			d, ok := diff.(dmm.DMMSystemDiff)
			if !ok {
				return nil, fmt.Errorf("unexpected diff type %T", diff)
			}
			return dmm.Patcher(prev, d)
		},
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		ProtocolDiffers: protocolDiffers,
		Logger:          logger,
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: protocolPatchers,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}

// cast asserts both sides of a differ call to the data type of a schema.
func cast[T any](old, new any) (T, T, error) {
	var zero T
	o, ok := old.(T)
	if !ok {
		return zero, zero, fmt.Errorf("unexpected old state type %T", old)
	}
	n, ok := new.(T)
	if !ok {
		return zero, zero, fmt.Errorf("unexpected new state type %T", new)
	}
	return o, n, nil
}

func decode[T any](data json.RawMessage) (any, error) {
	var typedData T
	if err := json.Unmarshal(data, &typedData); err != nil {
		return nil, err
	}
	return typedData, nil
}

// DecodeStateJSON decodes the data of a full protocol state.
func (ops *StateOps) DecodeStateJSON(
	schema engine.ProtocolSchema,
	data json.RawMessage,
) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		return decode[[]tokenregistry.Token](data)
	case poolregistry.Schema:
		return decode[poolregistry.PoolRegistry](data)
	case tokenpoolregistry.Schema:
		return decode[*tokenpoolregistry.TokenPoolRegistryView](data)
	case dmm.Schema:
		return decode[[]dmm.PoolView](data)
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}

// DecodeStateDiffJSON decodes the data of a protocol diff.
func (ops *StateOps) DecodeStateDiffJSON(
	schema engine.ProtocolSchema,
	data json.RawMessage,
) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		return decode[tokenregistry.TokenSystemDiff](data)
	case poolregistry.Schema:
		return decode[poolregistry.PoolRegistryDiff](data)
	case tokenpoolregistry.Schema:
		return decode[tokenpoolregistry.TokenPoolRegistryDiff](data)
	case dmm.Schema:
		return decode[dmm.DMMSystemDiff](data)
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}
