package model

import "fmt"

// ConversionError records a log that could not be turned into a balance delta.
type ConversionError struct {
	Table       string
	Address     string
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
	Raw         string
	Err         error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s log at block %d (tx %s, index %d, address %s, raw %q): %v",
		e.Table, e.BlockNumber, e.TxHash, e.LogIndex, e.Address, e.Raw, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
