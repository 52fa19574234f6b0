package storage

import (
	"errors"
	"fmt"
)

// StoreError reports a failed store operation on a table.
type StoreError struct {
	Table string
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a StoreError, or nil when err is nil.
func Wrap(table, op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Table: table, Op: op, Err: err}
}
