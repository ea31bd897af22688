package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// seriesColumn is the header of the second key column. Historical files may
// use a different schema-level name; Load accepts whatever the file carries.
const seriesColumn = "metric"

// Load parses the wide CSV at path into a table. A missing file yields an
// empty table. The first two columns are the key (date, series); every
// remaining column is an entity. Empty and "NaN" cells are absent, not zero.
// Unparsable non-empty cells are dropped with a warning.
func Load(path string) (*Table, error) {
	t := New()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return t, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "table: read header of %s", path)
	}
	if len(header) < 2 {
		return nil, eris.Errorf("table: %s: header needs date and series columns, got %d columns", path, len(header))
	}
	entities := header[2:]

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			zap.L().Warn("table: skipping unreadable row",
				zap.String("path", path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		if len(record) < 2 || record[0] == "" || record[1] == "" {
			continue
		}
		date, series := record[0], record[1]

		for i, entity := range entities {
			col := i + 2
			if col >= len(record) {
				break
			}
			cell := record[col]
			if cell == "" || cell == "NaN" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				zap.L().Warn("table: dropping unparsable cell",
					zap.String("path", path),
					zap.Int("line", line),
					zap.String("entity", entity),
					zap.String("cell", cell),
				)
				continue
			}
			t.Upsert(date, series, entity, v)
		}
	}

	return t, nil
}

// Write emits the table to path as a wide CSV, replacing the destination
// atomically. Rows are sorted by (date, series rank); entity columns follow
// entityOrder with any extra entities found in the table appended
// alphabetically, so columns from prior runs are never dropped. Cells use
// fixed 10-decimal formatting so repeated runs produce byte-stable output.
func Write(path string, t *Table, seriesOrder, entityOrder []string) error {
	header := make([]string, 0, 2+len(entityOrder))
	header = append(header, "date", seriesColumn)

	declared := make(map[string]struct{}, len(entityOrder))
	for _, entity := range entityOrder {
		entity = NormalizeEntity(entity)
		declared[entity] = struct{}{}
		header = append(header, entity)
	}
	var extras []string
	for _, entity := range t.Entities() {
		if _, ok := declared[entity]; !ok {
			extras = append(extras, entity)
		}
	}
	sort.Strings(extras)
	header = append(header, extras...)
	columns := header[2:]

	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return eris.Wrap(err, "table: write header")
		}

		record := make([]string, len(header))
		for _, key := range t.SortedKeys(seriesOrder) {
			record[0] = key.Date
			record[1] = key.Series
			row := t.Row(key.Date, key.Series)
			for i, entity := range columns {
				if v, ok := row[entity]; ok {
					record[i+2] = fmt.Sprintf("%.10f", v)
				} else {
					record[i+2] = ""
				}
			}
			if err := cw.Write(record); err != nil {
				return eris.Wrap(err, "table: write row")
			}
		}

		cw.Flush()
		return eris.Wrap(cw.Error(), "table: flush")
	})
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place, so a failed run never leaves a partial file
// visible at path.
func writeAtomic(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "table: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "table: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if err := fn(tmp); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "table: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "table: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "table: rename into %s", path)
	}
	return nil
}

// WriteCSV writes arbitrary records (header first) through the same atomic
// temp-and-rename path as Write. Used for audit artifacts.
func WriteCSV(path string, header []string, records [][]string) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return eris.Wrap(err, "table: write header")
		}
		for _, record := range records {
			if err := cw.Write(record); err != nil {
				return eris.Wrap(err, "table: write record")
			}
		}
		cw.Flush()
		return eris.Wrap(cw.Error(), "table: flush")
	})
}
