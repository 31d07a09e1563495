// Package worklist streams the ordered (identifier, name) work
// sequence from a CSV export. Rows are yielded lazily so multi-
// hundred-thousand row inputs never load into memory at once.
package worklist

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column names looked up in the header row.
const (
	numberColumn = "kvk_number"
	nameColumn   = "company_name"
)

// Item is one unit of work: a raw, not yet normalized identifier and
// its display name.
type Item struct {
	RawNumber string
	Name      string
}

// Reader streams Items from a CSV file in order.
type Reader struct {
	file      *os.File
	csv       *csv.Reader
	numberIdx int
	nameIdx   int
}

// Open opens path and reads its header row to locate the identifier
// and name columns.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open worklist: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read worklist header: %w", err)
	}

	numberIdx, nameIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case numberColumn:
			numberIdx = i
		case nameColumn:
			nameIdx = i
		}
	}
	if numberIdx < 0 || nameIdx < 0 {
		f.Close()
		return nil, fmt.Errorf("worklist %s: header must contain %q and %q columns", path, numberColumn, nameColumn)
	}

	return &Reader{file: f, csv: r, numberIdx: numberIdx, nameIdx: nameIdx}, nil
}

// Next returns the next item in sequence, or io.EOF when the input is
// exhausted.
func (r *Reader) Next() (Item, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return Item{}, io.EOF
	}
	if err != nil {
		return Item{}, fmt.Errorf("read worklist row: %w", err)
	}
	item := Item{}
	if r.numberIdx < len(record) {
		item.RawNumber = strings.TrimSpace(record[r.numberIdx])
	}
	if r.nameIdx < len(record) {
		item.Name = strings.TrimSpace(record[r.nameIdx])
	}
	return item, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
