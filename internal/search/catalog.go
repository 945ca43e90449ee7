package search

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// ErrNoTable is returned when a catalog file contains no Markdown table.
var ErrNoTable = errors.New("catalog: no markdown table found")

// Record is one catalog row keyed by normalized column name: lower-cased
// with spaces, dashes and underscores removed ("Price Buy" -> "pricebuy").
type Record map[string]string

// Get returns the first non-empty value among keys.
func (r Record) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// ReadCatalogFile reads the first Markdown table in the file at path.
func ReadCatalogFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCatalog(f)
}

// ReadCatalog flattens the first Markdown table in r into records. The first
// table row is the header; separator rows ("| --- | :-: |") are skipped and
// text outside the table is ignored. Rows shorter than the header leave the
// missing columns empty; extra cells are dropped.
func ReadCatalog(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var header []string
	out := []Record{}
	inTable := false

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") || len(line) < 2 {
			if inTable {
				// first table only
				break
			}
			continue
		}
		inTable = true

		cells := splitRow(line)
		if isSeparator(cells) {
			continue
		}
		if header == nil {
			header = make([]string, len(cells))
			for i, c := range cells {
				header[i] = normalizeKey(c)
			}
			continue
		}

		rec := make(Record, len(header))
		empty := true
		for i, key := range header {
			if key == "" || i >= len(cells) {
				continue
			}
			rec[key] = cells[i]
			if cells[i] != "" {
				empty = false
			}
		}
		if !empty {
			out = append(out, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if header == nil {
		return nil, ErrNoTable
	}
	return out, nil
}

func splitRow(line string) []string {
	raw := strings.Split(line[1:len(line)-1], "|")
	cells := make([]string, len(raw))
	for i, c := range raw {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		tmp := strings.ReplaceAll(c, ":", "")
		tmp = strings.ReplaceAll(tmp, "-", "")
		if strings.TrimSpace(tmp) != "" {
			return false
		}
	}
	return true
}

func normalizeKey(s string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
}
