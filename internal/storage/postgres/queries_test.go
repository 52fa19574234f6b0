package postgres

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"timelockWatcher/internal/storage"
)

func TestIdentifierRequiresAllowList(t *testing.T) {
	tables, err := storage.NewTables("timelock")
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	s := &Store{allowed: tables}

	ident, err := s.identifier("timelock")
	if err != nil {
		t.Fatalf("identifier: %v", err)
	}
	if ident != `"timelock"` {
		t.Fatalf("expected quoted identifier, got %s", ident)
	}
	if _, err := s.identifier(`timelock"; DROP TABLE users; --`); err == nil {
		t.Fatalf("expected rejection of unlisted table")
	}
}

func TestQueriesUseIdentifierAndBindParameters(t *testing.T) {
	ident := pgx.Identifier{"timelock"}.Sanitize()

	for name, query := range map[string]string{
		"create": createBalanceTableSQL(ident),
		"clear":  clearSQL(ident),
		"upsert": upsertDeltaSQL(ident),
		"total":  upsertTotalSQL(ident),
		"net":    recomputeNetSQL(ident),
	} {
		if !strings.Contains(query, `"timelock"`) {
			t.Fatalf("%s: identifier missing:\n%s", name, query)
		}
	}

	if !strings.HasPrefix(clearSQL(ident), "TRUNCATE TABLE") {
		t.Fatalf("unexpected clear statement %s", clearSQL(ident))
	}
	if !strings.Contains(upsertDeltaSQL(ident), "ON CONFLICT (address)") {
		t.Fatalf("upsert must resolve conflicts on address")
	}
	if strings.Count(upsertTotalSQL(ident), `"timelock"`) != 2 {
		t.Fatalf("total must read and write the same table")
	}
	if !strings.Contains(createBalanceTableSQL(ident), "net_amount BIGINT") {
		t.Fatalf("net_amount must be a signed column")
	}
}

func TestToInt64(t *testing.T) {
	if v, err := toInt64(42); err != nil || v != 42 {
		t.Fatalf("expected 42, got %d %v", v, err)
	}
	if _, err := toInt64(1 << 63); err == nil {
		t.Fatalf("expected overflow error")
	}
}
