package balance

import (
	"fmt"
	"math/big"

	"timelockWatcher/internal/model"
)

// ToDisplayUnits converts a raw on-chain amount into whole display units,
// dividing by 10^decimals and rounding half up. The result always fits a
// signed 64-bit column.
func ToDisplayUnits(raw *big.Int, decimals uint8) (uint64, error) {
	if raw == nil {
		return 0, fmt.Errorf("amount is nil")
	}
	if raw.Sign() < 0 {
		return 0, fmt.Errorf("amount %s is negative", raw)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quotient, remainder := new(big.Int).QuoRem(raw, scale, new(big.Int))
	if remainder.Lsh(remainder, 1).Cmp(scale) >= 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	if !quotient.IsInt64() {
		return 0, fmt.Errorf("amount %s overflows bigint after scaling", raw)
	}
	return quotient.Uint64(), nil
}

// Extract turns a decoded event into the delta it applies to its address.
func Extract(table string, event model.RawLogEvent, decimals uint8) (model.BalanceDelta, error) {
	fail := func(err error) (model.BalanceDelta, error) {
		raw := ""
		if event.Amount != nil {
			raw = event.Amount.String()
		}
		return model.BalanceDelta{}, &model.ConversionError{
			Table:       table,
			Address:     event.Address.Hex(),
			BlockNumber: event.BlockNumber,
			TxHash:      event.TxHash.Hex(),
			LogIndex:    event.LogIndex,
			Raw:         raw,
			Err:         err,
		}
	}

	var accumulator model.Accumulator
	switch event.Kind {
	case model.EventLocked:
		accumulator = model.AccumulatorFrozen
	case model.EventUnlocked:
		accumulator = model.AccumulatorUnfrozen
	default:
		return fail(fmt.Errorf("unknown event kind %q", event.Kind))
	}

	amount, err := ToDisplayUnits(event.Amount, decimals)
	if err != nil {
		return fail(err)
	}
	return model.BalanceDelta{
		Address:     event.Address.Hex(),
		Amount:      amount,
		Accumulator: accumulator,
		BlockNumber: event.BlockNumber,
	}, nil
}
