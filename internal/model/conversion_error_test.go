package model

import (
	"errors"
	"strings"
	"testing"
)

func TestConversionErrorUnwrap(t *testing.T) {
	cause := errors.New("amount overflows uint64")
	err := error(&ConversionError{
		Table:       "timelock_contract_1",
		Address:     "0x1111111111111111111111111111111111111111",
		BlockNumber: 42,
		TxHash:      "0xabc",
		LogIndex:    3,
		Raw:         "1000",
		Err:         cause,
	})

	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause")
	}
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError")
	}
	for _, part := range []string{"timelock_contract_1", "block 42", "0x1111111111111111111111111111111111111111", "\"1000\""} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("error %q missing %q", err.Error(), part)
		}
	}
}
