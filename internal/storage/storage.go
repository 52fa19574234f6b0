package storage

import (
	"context"
	"fmt"
	"regexp"

	"timelockWatcher/internal/model"
)

// TableWriter mutates one balance table inside a rebuild transaction.
type TableWriter interface {
	// Clear removes every row of the table.
	Clear(ctx context.Context) error
	// UpsertDelta adds delta to its accumulator, creating the row on first use.
	UpsertDelta(ctx context.Context, delta model.BalanceDelta) error
	// UpsertTotal recomputes the TOTAL row from all address rows.
	UpsertTotal(ctx context.Context, latestBlock uint64) error
	// RecomputeNet sets net_amount on every address row.
	RecomputeNet(ctx context.Context) error
}

// Store persists balance tables.
type Store interface {
	EnsureTable(ctx context.Context, table string) error
	// Rebuild runs fn in one transaction; nothing fn wrote is visible
	// unless it returns nil.
	Rebuild(ctx context.Context, table string, fn func(TableWriter) error) error
	// Rows returns the table ordered by address with the TOTAL row last.
	Rows(ctx context.Context, table string) ([]model.AddressBalanceRow, error)
}

// StateStore persists the last reconciled block per name.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidTableName reports whether name is usable as an unquoted identifier.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// Tables is the allow-list of table identifiers a store may touch.
type Tables struct {
	names map[string]struct{}
}

// NewTables validates names and builds an allow-list from them.
func NewTables(names ...string) (*Tables, error) {
	t := &Tables{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if !ValidTableName(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
		if _, ok := t.names[name]; ok {
			return nil, fmt.Errorf("duplicate table name %q", name)
		}
		t.names[name] = struct{}{}
	}
	return t, nil
}

// Check rejects tables that are not on the allow-list.
func (t *Tables) Check(name string) error {
	if t == nil {
		return fmt.Errorf("table %q is not configured", name)
	}
	if _, ok := t.names[name]; !ok {
		return fmt.Errorf("table %q is not configured", name)
	}
	return nil
}
