package sqlite

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// readJSONL returns each non-empty, parseable line of the file at path.
// Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		records = append(records, json.RawMessage(bytes.Clone(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL writes records to path with the temp-file, fsync, rename
// pattern so a reader never sees a partial file.
func writeJSONL(path string, records []json.RawMessage) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err = w.Write(rec); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if err = w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// ExportJSONL writes every row of the declared table to path, one JSON
// object per line keyed by column name. It returns the number of rows.
func (db *DB) ExportJSONL(ctx context.Context, table, path string) (int, error) {
	t := db.schema.Table(table)
	if t == nil {
		return 0, types.Configf(db.schema.Name, "table %s is not declared", table)
	}
	cur, err := db.Run(ctx, &types.Query{Table: t}, nil)
	if err != nil {
		return 0, err
	}
	records := make([]json.RawMessage, 0, cur.Len())
	for _, row := range cur.Rows {
		obj := make(map[string]any, len(cur.Columns))
		for i, col := range cur.Columns {
			obj[col] = row[i]
		}
		rec, err := json.Marshal(obj)
		if err != nil {
			return 0, fmt.Errorf("encoding %s row: %w", table, err)
		}
		records = append(records, rec)
	}
	if err := writeJSONL(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ImportJSONL inserts one row per line of path into the declared table.
// Keys that are not columns of the table are dropped. Malformed lines are
// skipped. It returns the number of rows inserted.
func (db *DB) ImportJSONL(ctx context.Context, table, path string) (int, error) {
	t := db.schema.Table(table)
	if t == nil {
		return 0, types.Configf(db.schema.Name, "table %s is not declared", table)
	}
	records, err := readJSONL(path)
	if err != nil {
		return 0, err
	}
	rows := make([]Insert, 0, len(records))
	for _, rec := range records {
		values, err := decodeRow(rec, t)
		if err != nil {
			continue
		}
		rows = append(rows, Insert{Table: table, Values: values})
	}
	ids, err := db.InsertAll(ctx, rows)
	n := 0
	for _, id := range ids {
		if id >= 0 {
			n++
		}
	}
	return n, err
}

var errNotObject = errors.New("record is not a JSON object")

func decodeRow(rec json.RawMessage, t *types.Table) (types.Values, error) {
	dec := json.NewDecoder(bytes.NewReader(rec))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	values := make(types.Values, len(obj))
	for k, v := range obj {
		if t.Column(k) == nil {
			continue
		}
		if num, ok := v.(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				v = i
			} else if f, err := num.Float64(); err == nil {
				v = f
			}
		}
		values[k] = v
	}
	return values, nil
}
