package indexer

import "fmt"

// FetchError reports that logs for a contract could not be retrieved.
type FetchError struct {
	Table string
	From  uint64
	To    uint64
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s logs [%d, %d]: %v", e.Table, e.From, e.To, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
