package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"timelockWatcher/internal/contract"
	"timelockWatcher/internal/model"
	"timelockWatcher/internal/storage"
)

const (
	defaultFrozenEvent   = "TokensFrozen"
	defaultUnfrozenEvent = "TokensUnfrozen"
	defaultAddressArg    = "addr"
	defaultAmountArg     = "amt"
)

// Watches validates the contracts list and builds the watch descriptors
// together with the table allow-list they define.
func Watches(entries []ContractConfig) ([]model.ContractWatch, *storage.Tables, error) {
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("contracts list is empty")
	}

	names := make([]string, 0, len(entries))
	watches := make([]model.ContractWatch, 0, len(entries))
	for i, entry := range entries {
		watch, err := buildWatch(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("contracts[%d]: %w", i, err)
		}
		names = append(names, watch.Table)
		watches = append(watches, watch)
	}

	tables, err := storage.NewTables(names...)
	if err != nil {
		return nil, nil, err
	}
	return watches, tables, nil
}

func buildWatch(entry ContractConfig) (model.ContractWatch, error) {
	table := strings.TrimSpace(entry.Table)
	if !storage.ValidTableName(table) {
		return model.ContractWatch{}, fmt.Errorf("invalid table name %q", entry.Table)
	}

	address := strings.TrimSpace(entry.Address)
	if !common.IsHexAddress(address) {
		return model.ContractWatch{}, fmt.Errorf("table %s: invalid contract address %q", table, entry.Address)
	}

	parsedABI, err := contract.LoadABI(entry.ABI)
	if err != nil {
		return model.ContractWatch{}, fmt.Errorf("table %s: %w", table, err)
	}

	events := model.EventSpec{
		Enabled:    entry.EventsEnabled == nil || *entry.EventsEnabled,
		Frozen:     orDefault(entry.FrozenEvent, defaultFrozenEvent),
		Unfrozen:   orDefault(entry.UnfrozenEvent, defaultUnfrozenEvent),
		AddressArg: orDefault(entry.AddressArg, defaultAddressArg),
		AmountArg:  orDefault(entry.AmountArg, defaultAmountArg),
	}
	if events.Frozen == events.Unfrozen {
		return model.ContractWatch{}, fmt.Errorf("table %s: frozen and unfrozen events are both %s", table, events.Frozen)
	}
	if events.Enabled {
		if _, err := contract.NewLockDecoder(parsedABI, events); err != nil {
			return model.ContractWatch{}, fmt.Errorf("table %s: %w", table, err)
		}
	}

	decimals := model.DefaultDecimals
	if entry.Decimals != nil {
		decimals = *entry.Decimals
	}
	if decimals > 36 {
		return model.ContractWatch{}, fmt.Errorf("table %s: decimals %d out of range", table, decimals)
	}

	return model.ContractWatch{
		Table:      table,
		Address:    common.HexToAddress(address),
		ABI:        parsedABI,
		Events:     events,
		StartBlock: entry.StartBlock,
		Decimals:   decimals,
		Interval:   entry.Interval,
	}, nil
}

func orDefault(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
