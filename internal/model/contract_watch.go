package model

import (
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultDecimals is the fixed-point scale of lock amounts (10^8).
const DefaultDecimals uint8 = 8

// EventSpec names the lock events of a contract and their arguments.
type EventSpec struct {
	Enabled    bool
	Frozen     string
	Unfrozen   string
	AddressArg string
	AmountArg  string
}

// ContractWatch is the static descriptor of one watched contract.
type ContractWatch struct {
	Table      string
	Address    common.Address
	ABI        abi.ABI
	Events     EventSpec
	StartBlock uint64
	Decimals   uint8
	Interval   time.Duration
}
