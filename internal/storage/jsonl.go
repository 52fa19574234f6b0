package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"timelockWatcher/internal/model"
)

// SnapshotRecord is one exported balance row.
type SnapshotRecord struct {
	Table      string `json:"table"`
	ExportedAt string `json:"exported_at"`
	model.AddressBalanceRow
}

// JsonlSnapshot exports reconciled tables as JSON lines. In append mode
// every table goes to one growing file; in table mode each table gets its
// own file under a directory, replaced whole on every export.
type JsonlSnapshot struct {
	path     string
	perTable bool
	mu       sync.Mutex
	now      func() time.Time
}

// NewJsonlSnapshot appends every export to the file at path.
func NewJsonlSnapshot(path string) *JsonlSnapshot {
	return &JsonlSnapshot{path: path, now: time.Now}
}

// NewJsonlTableSnapshot writes <dir>/<table>.jsonl, replacing the previous
// export of that table.
func NewJsonlTableSnapshot(dir string) *JsonlSnapshot {
	return &JsonlSnapshot{path: dir, perTable: true, now: time.Now}
}

// Path returns the file an export of table lands in.
func (s *JsonlSnapshot) Path(table string) string {
	if s.perTable {
		return filepath.Join(s.path, table+".jsonl")
	}
	return s.path
}

// PutRows exports the rows of table.
func (s *JsonlSnapshot) PutRows(table string, rows []model.AddressBalanceRow) error {
	if s.perTable {
		if !ValidTableName(table) {
			return fmt.Errorf("invalid table name %q", table)
		}
	} else if len(rows) == 0 {
		return nil
	}

	target := s.Path(table)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.perTable {
		return s.replace(target, table, rows)
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()
	return s.encode(file, table, rows)
}

// replace writes a sibling temp file and renames it over target, so a
// reader never sees a partial table.
func (s *JsonlSnapshot) replace(target, table string, rows []model.AddressBalanceRow) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+table+"-*.jsonl")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.encode(tmp, table, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}

func (s *JsonlSnapshot) encode(w io.Writer, table string, rows []model.AddressBalanceRow) error {
	exportedAt := s.now().UTC().Format(time.RFC3339Nano)
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	for _, row := range rows {
		if err := enc.Encode(SnapshotRecord{Table: table, ExportedAt: exportedAt, AddressBalanceRow: row}); err != nil {
			return fmt.Errorf("encode %s row %s: %w", table, row.Address, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
