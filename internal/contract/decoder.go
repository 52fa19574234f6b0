package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"timelockWatcher/internal/model"
)

// LockDecoder decodes the lock and unlock events of one contract.
type LockDecoder struct {
	contractABI abi.ABI
	spec        model.EventSpec
	kinds       map[common.Hash]model.EventKind
	topics      []common.Hash
}

// NewLockDecoder builds a decoder for the events named in spec.
// Both events must exist in the ABI and carry the configured arguments.
func NewLockDecoder(contractABI abi.ABI, spec model.EventSpec) (*LockDecoder, error) {
	d := &LockDecoder{
		contractABI: contractABI,
		spec:        spec,
		kinds:       make(map[common.Hash]model.EventKind, 2),
	}
	if !spec.Enabled {
		return d, nil
	}
	if spec.Frozen == spec.Unfrozen {
		return nil, fmt.Errorf("frozen and unfrozen events must differ, both are %s", spec.Frozen)
	}

	for _, entry := range []struct {
		name string
		kind model.EventKind
	}{
		{spec.Frozen, model.EventLocked},
		{spec.Unfrozen, model.EventUnlocked},
	} {
		event, ok := contractABI.Events[entry.name]
		if !ok {
			return nil, fmt.Errorf("event %s not found in abi", entry.name)
		}
		if !hasInput(event, spec.AddressArg) {
			return nil, fmt.Errorf("event %s has no argument %s", entry.name, spec.AddressArg)
		}
		if !hasInput(event, spec.AmountArg) {
			return nil, fmt.Errorf("event %s has no argument %s", entry.name, spec.AmountArg)
		}
		d.kinds[event.ID] = entry.kind
		d.topics = append(d.topics, event.ID)
	}

	return d, nil
}

// Topics returns the topic0 filter for the decoded events.
func (d *LockDecoder) Topics() []common.Hash {
	out := make([]common.Hash, len(d.topics))
	copy(out, d.topics)
	return out
}

// CanDecode reports whether topic0 is one of the decoded events.
func (d *LockDecoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.kinds[topic0]
	return ok
}

// Decode converts a chain log into a RawLogEvent.
func (d *LockDecoder) Decode(log types.Log) (model.RawLogEvent, error) {
	if len(log.Topics) == 0 {
		return model.RawLogEvent{}, fmt.Errorf("missing topics")
	}
	kind, ok := d.kinds[log.Topics[0]]
	if !ok {
		return model.RawLogEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}
	event, err := d.contractABI.EventByID(log.Topics[0])
	if err != nil {
		return model.RawLogEvent{}, err
	}

	values := make(map[string]interface{}, len(event.Inputs))
	if err := event.Inputs.UnpackIntoMap(values, log.Data); err != nil {
		return model.RawLogEvent{}, fmt.Errorf("unpack %s data: %w", event.Name, err)
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return model.RawLogEvent{}, fmt.Errorf("%s expects %d indexed topics, got %d", event.Name, len(indexed), len(log.Topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return model.RawLogEvent{}, fmt.Errorf("parse %s topics: %w", event.Name, err)
	}

	addr, ok := values[d.spec.AddressArg].(common.Address)
	if !ok {
		return model.RawLogEvent{}, fmt.Errorf("%s.%s unexpected type %T", event.Name, d.spec.AddressArg, values[d.spec.AddressArg])
	}
	amount, ok := values[d.spec.AmountArg].(*big.Int)
	if !ok {
		return model.RawLogEvent{}, fmt.Errorf("%s.%s unexpected type %T", event.Name, d.spec.AmountArg, values[d.spec.AmountArg])
	}

	return model.RawLogEvent{
		Kind:        kind,
		EventName:   event.Name,
		Address:     addr,
		Amount:      amount,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
	}, nil
}

func hasInput(event abi.Event, name string) bool {
	for _, input := range event.Inputs {
		if input.Name == name {
			return true
		}
	}
	return false
}
