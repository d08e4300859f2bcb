package roster

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// noNameSentinel is the tabular cell value meaning "no name on file".
const noNameSentinel = "null"

const utf8BOM = "\ufeff"

// Parse decodes r according to format.
func Parse(format Format, r io.Reader) ([]Entry, error) {
	switch format {
	case FormatFlat:
		return ParseFlat(r)
	case FormatTabular:
		return ParseTabular(r)
	default:
		return nil, fmt.Errorf("unknown roster format %q", format)
	}
}

// ParseFlat reads one email per line. Lines are trimmed; blank lines are
// skipped.
func ParseFlat(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, utf8BOM)
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entries = append(entries, Entry{Email: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading flat roster: %w", err)
	}
	return entries, nil
}

// ParseTabular reads CSV with a header row. The email column is required;
// the name column is optional. Header names are matched case-insensitively.
// Rows with an empty email are skipped.
func ParseTabular(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("tabular roster is empty: missing header row")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := colIndex[key]; !dup {
			colIndex[key] = i
		}
	}

	emailIdx, ok := colIndex["email"]
	if !ok {
		return nil, errors.New("tabular roster has no email column")
	}
	nameIdx, hasNameCol := colIndex["name"]

	var entries []Entry
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line, err)
		}

		email := field(record, emailIdx)
		if email == "" {
			continue
		}
		entry := Entry{Email: email}
		if hasNameCol {
			if name := field(record, nameIdx); name != "" && name != noNameSentinel {
				entry.Name = name
				entry.HasName = true
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
