package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind is the normalized kind of a lock event.
type EventKind string

const (
	EventLocked   EventKind = "Locked"
	EventUnlocked EventKind = "Unlocked"
)

// Accumulator names the running total a delta adds to.
type Accumulator string

const (
	AccumulatorFrozen   Accumulator = "frozen"
	AccumulatorUnfrozen Accumulator = "unfrozen"
)

// RawLogEvent is one decoded lock event as emitted on chain.
type RawLogEvent struct {
	Kind        EventKind
	EventName   string
	Address     common.Address
	Amount      *big.Int
	BlockNumber uint64
	TxHash      common.Hash
	TxIndex     uint
	LogIndex    uint
}

// BalanceDelta is the effect of one RawLogEvent in display units.
type BalanceDelta struct {
	Address     string
	Amount      uint64
	Accumulator Accumulator
	BlockNumber uint64
}
