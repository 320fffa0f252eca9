package degiro

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/username/trackfolio/backend/src/currency"
)

var ErrEmptyFile = errors.New("CSV file is empty or invalid")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one non-blank data record. Line is 1-based and counts the header line.
type Row struct {
	Line   int
	Fields []string
}

func newCSVReader(r io.Reader) *csv.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1 // Arity is checked per row so every bad row gets its own diagnostic
	return reader
}

// ReadRows reads the header and every non-blank data row.
// On a malformed record it returns the rows read so far together with the *csv.ParseError.
func ReadRows(r io.Reader) ([]string, []Row, error) {
	reader := newCSVReader(r)

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrEmptyFile
		}
		return nil, nil, err
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return header, rows, nil
		}
		if err != nil {
			return header, rows, err
		}
		if isBlankRecord(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, Row{Line: line, Fields: record})
	}
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if currency.Clean(f) != "" {
			return false
		}
	}
	return true
}

// cleanField trims and de-quotes field col of record; missing columns read as blank.
func cleanField(record []string, col int) string {
	if col >= len(record) {
		return ""
	}
	return strings.TrimSpace(currency.Clean(record[col]))
}
