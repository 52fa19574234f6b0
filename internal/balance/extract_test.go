package balance

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"timelockWatcher/internal/model"
)

func TestToDisplayUnits(t *testing.T) {
	cases := []struct {
		raw  int64
		want uint64
	}{
		{raw: 0, want: 0},
		{raw: 30000000, want: 0},
		{raw: 49999999, want: 0},
		{raw: 50000000, want: 1},
		{raw: 100000000, want: 1},
		{raw: 150000000, want: 2},
		{raw: 249999999, want: 2},
		{raw: 1234500000000, want: 12345},
	}
	for _, tc := range cases {
		got, err := ToDisplayUnits(big.NewInt(tc.raw), model.DefaultDecimals)
		if err != nil {
			t.Fatalf("raw %d: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("raw %d: expected %d, got %d", tc.raw, tc.want, got)
		}
	}
}

func TestToDisplayUnitsZeroDecimals(t *testing.T) {
	got, err := ToDisplayUnits(big.NewInt(42), 0)
	if err != nil || got != 42 {
		t.Fatalf("expected 42, got %d (%v)", got, err)
	}
}

func TestToDisplayUnitsRejectsInvalid(t *testing.T) {
	if _, err := ToDisplayUnits(nil, 8); err == nil {
		t.Fatalf("expected error for nil amount")
	}
	if _, err := ToDisplayUnits(big.NewInt(-1), 8); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	if _, err := ToDisplayUnits(huge, 8); err == nil {
		t.Fatalf("expected overflow error")
	}

	// 2^63 display units fits uint64 but not the signed BIGINT columns.
	beyondInt64 := new(big.Int).Mul(new(big.Int).Lsh(big.NewInt(1), 63), big.NewInt(100000000))
	if _, err := ToDisplayUnits(beyondInt64, 8); err == nil {
		t.Fatalf("expected error for amount above max int64")
	}
	maxInt64 := new(big.Int).Mul(big.NewInt(math.MaxInt64), big.NewInt(100000000))
	got, err := ToDisplayUnits(maxInt64, 8)
	if err != nil || got != math.MaxInt64 {
		t.Fatalf("expected max int64, got %d (%v)", got, err)
	}
}

func TestExtract(t *testing.T) {
	holder := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	locked := model.RawLogEvent{
		Kind:        model.EventLocked,
		Address:     holder,
		Amount:      big.NewInt(150000000),
		BlockNumber: 10,
	}
	delta, err := Extract("timelock", locked, 8)
	if err != nil {
		t.Fatalf("extract locked: %v", err)
	}
	want := model.BalanceDelta{Address: holder.Hex(), Amount: 2, Accumulator: model.AccumulatorFrozen, BlockNumber: 10}
	if delta != want {
		t.Fatalf("expected %+v, got %+v", want, delta)
	}

	unlocked := locked
	unlocked.Kind = model.EventUnlocked
	delta, err = Extract("timelock", unlocked, 8)
	if err != nil {
		t.Fatalf("extract unlocked: %v", err)
	}
	if delta.Accumulator != model.AccumulatorUnfrozen || delta.Amount != 2 {
		t.Fatalf("unexpected unlocked delta %+v", delta)
	}
}

func TestExtractReturnsConversionError(t *testing.T) {
	event := model.RawLogEvent{
		Kind:        model.EventLocked,
		Address:     common.HexToAddress("0xbb"),
		Amount:      big.NewInt(-5),
		BlockNumber: 7,
		LogIndex:    3,
	}
	_, err := Extract("timelock", event, 8)
	var convErr *model.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if convErr.Table != "timelock" || convErr.BlockNumber != 7 || convErr.LogIndex != 3 || convErr.Raw != "-5" {
		t.Fatalf("unexpected conversion error %+v", convErr)
	}

	event.Amount = big.NewInt(1)
	event.Kind = "Burned"
	if _, err := Extract("timelock", event, 8); !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError for unknown kind, got %v", err)
	}
}

func TestExtractRejectsAmountAboveInt64(t *testing.T) {
	event := model.RawLogEvent{
		Kind:        model.EventLocked,
		Address:     common.HexToAddress("0xcc"),
		Amount:      new(big.Int).Mul(new(big.Int).Lsh(big.NewInt(1), 63), big.NewInt(100000000)),
		BlockNumber: 9,
	}
	_, err := Extract("timelock", event, 8)
	var convErr *model.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
}
