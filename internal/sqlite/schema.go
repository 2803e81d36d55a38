package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/bindery/pkg/types"
)

// sqlType maps a column type name to a SQLite storage class.
func sqlType(t string) string {
	switch t {
	case "integer", "boolean":
		return "INTEGER"
	case "float":
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// columnsLocked returns the declared columns of table followed by the
// foreign keys its parents point at. The caller must hold b.mu.
func (b *Backend) columnsLocked(table string) []types.Column {
	def := b.defs[table]
	cols := append([]types.Column(nil), def.Columns...)
	for _, fk := range b.fks[table] {
		declared := false
		for _, c := range def.Columns {
			if c.Name == fk {
				declared = true
			}
		}
		if !declared {
			cols = append(cols, types.Column{Name: fk, Type: "integer"})
		}
	}
	return cols
}

// columnLocked finds a column of table by name. The caller must hold b.mu.
func (b *Backend) columnLocked(table, name string) (types.Column, bool) {
	for _, c := range b.columnsLocked(table) {
		if c.Name == name {
			return c, true
		}
	}
	return types.Column{}, false
}

// createTableLocked creates the table if missing and adds columns declared
// since it was created. The caller must hold b.mu write lock.
func (b *Backend) createTableLocked(def types.TableDef) error {
	cols := b.columnsLocked(def.Name)

	parts := []string{"id INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, c := range cols {
		parts = append(parts, quoteIdent(c.Name)+" "+sqlType(c.Type))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n);",
		quoteIdent(def.Name), strings.Join(parts, ",\n    "))
	if _, err := b.db.Exec(ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", def.Name, err)
	}

	existing, err := b.tableColumnsLocked(def.Name)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if existing[c.Name] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			quoteIdent(def.Name), quoteIdent(c.Name), sqlType(c.Type))
		if _, err := b.db.Exec(alter); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", def.Name, c.Name, err)
		}
	}

	for _, fk := range b.fks[def.Name] {
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s);",
			quoteIdent("idx_"+def.Name+"_"+fk), quoteIdent(def.Name), quoteIdent(fk))
		if _, err := b.db.Exec(idx); err != nil {
			return fmt.Errorf("indexing %s.%s: %w", def.Name, fk, err)
		}
	}
	return nil
}

// tableColumnsLocked reads the column names SQLite has for table.
func (b *Backend) tableColumnsLocked(table string) (map[string]bool, error) {
	rows, err := b.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning columns of %s: %w", table, err)
		}
		out[name] = true
	}
	return out, rows.Err()
}
