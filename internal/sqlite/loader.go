// JSONL export and import of every declared table.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cast"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

// Export writes one <table>.jsonl file per declared table into dir. Each
// line holds the id and every column in stored form. Files are replaced
// atomically.
func (b *Backend) Export(dir string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrDetached
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, table := range b.order {
		rows, err := b.dumpLocked(table)
		if err != nil {
			return err
		}
		if err := writeRows(dumpPath(dir, table), rows); err != nil {
			return fmt.Errorf("exporting %s: %w", table, err)
		}
	}
	return nil
}

func (b *Backend) dumpLocked(table string) ([]row, error) {
	cols := b.columnsLocked(table)
	names := []string{"id"}
	for _, c := range cols {
		names = append(names, quoteIdent(c.Name))
	}
	rs, err := b.db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY id",
		strings.Join(names, ", "), quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("dumping %s: %w", table, err)
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		raw := make([]any, len(names))
		dest := make([]any, len(names))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		obj := make(row, len(names))
		obj["id"] = raw[0]
		for i, c := range cols {
			v := raw[i+1]
			if bs, ok := v.([]byte); ok {
				v = string(bs)
			}
			obj[c.Name] = v
		}
		out = append(out, obj)
	}
	return out, rs.Err()
}

// Import loads <table>.jsonl files from dir into the declared tables and
// returns the number of rows written. Loading is transactional: all files
// load or none do. Missing files are skipped, malformed lines and unknown
// fields are ignored, and rows whose id already exists are replaced.
func (b *Backend) Import(dir string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return 0, types.ErrDetached
	}

	tx, err := b.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, table := range b.order {
		rows, err := readRows(dumpPath(dir, table))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", table, err)
		}
		if len(rows) == 0 {
			continue
		}
		n, err := insertRows(tx, table, b.columnsLocked(table), rows)
		if err != nil {
			return 0, fmt.Errorf("loading %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing load transaction: %w", err)
	}
	return total, nil
}

// insertRows writes dumped rows into table, replacing rows with the same
// id. Only the id and the listed columns are used; extra fields are ignored.
func insertRows(tx *sql.Tx, table string, columns []types.Column, rows []row) (int, error) {
	names := []string{"id"}
	placeholders := []string{"?"}
	for _, c := range columns {
		names = append(names, quoteIdent(c.Name))
		placeholders = append(placeholders, "?")
	}
	insertSQL := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quoteIdent(table),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	)

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	n := 0
	for _, r := range rows {
		id := cast.ToInt64(r["id"])
		args := []any{id}
		for _, c := range columns {
			args = append(args, toColumnValue(c.Type, r[c.Name]))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return n, fmt.Errorf("inserting %s %d: %w", table, id, err)
		}
		n++
	}
	return n, nil
}
