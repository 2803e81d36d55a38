// Row files: one JSON object per line, keyed by column name plus "id".
package sqlite

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cast"
)

// row is one table row as written to and read from a dump.
type row map[string]any

// readRows parses a dump file. Numbers decode as json.Number so integer ids
// and columns keep their precision. Blank and malformed lines are skipped,
// as are rows without a positive integer id.
func readRows(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var rows []row
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var r row
		if err := dec.Decode(&r); err != nil {
			continue
		}
		if id, err := cast.ToInt64E(r["id"]); err != nil || id <= 0 {
			continue
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return rows, nil
}

// writeRows replaces path with rows. The file is written to a temp file in
// the same directory, synced and renamed over path, so readers see the old
// dump or the new one and never a partial file.
func writeRows(path string, rows []row) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rows-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding row %v: %w", r["id"], err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// dumpPath returns the dump file of table inside dir.
func dumpPath(dir, table string) string {
	return filepath.Join(dir, table+".jsonl")
}
