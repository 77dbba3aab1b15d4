package extract

import (
	"context"
	"encoding/csv"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
)

func readPlain(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read file")
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	return string(data), nil
}

// readCSV renders one line per record with cells separated by " | ".
func readCSV(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse csv")
	}
	return joinRows(records), nil
}

func joinRows(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		line := strings.TrimSpace(strings.Join(row, " | "))
		if strings.Trim(line, " |") == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// readRTF strips control words and groups that carry no body text.
func readRTF(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read rtf")
	}
	return stripRTF(string(data)), nil
}

var rtfSkipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "header": true, "footer": true, "listtable": true,
	"listoverridetable": true, "generator": true, "xmlnstbl": true,
}

func stripRTF(src string) string {
	type group struct{ skip bool }
	var (
		out   strings.Builder
		stack []group
		skip  bool
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			stack = append(stack, group{skip: skip})
		case '}':
			if n := len(stack); n > 0 {
				skip = stack[n-1].skip
				stack = stack[:n-1]
			}
		case '\\':
			if i+1 >= len(src) {
				continue
			}
			next := src[i+1]
			switch {
			case next == '\\' || next == '{' || next == '}':
				if !skip {
					out.WriteByte(next)
				}
				i++
			case next == '*':
				skip = true
				i++
			case next == '\'':
				// \'hh is a code page byte; keep ASCII only
				if i+3 < len(src) {
					if b, ok := hexByte(src[i+2], src[i+3]); ok && b < 0x80 && !skip {
						out.WriteByte(b)
					}
				}
				i += 3
			case isLetter(next):
				j := i + 1
				for j < len(src) && isLetter(src[j]) {
					j++
				}
				word := src[i+1 : j]
				for j < len(src) && (src[j] == '-' || (src[j] >= '0' && src[j] <= '9')) {
					j++
				}
				if j < len(src) && src[j] == ' ' {
					j++
				}
				i = j - 1
				if rtfSkipDestinations[word] {
					skip = true
					continue
				}
				if skip {
					continue
				}
				switch word {
				case "par", "line", "sect", "page":
					out.WriteByte('\n')
				case "tab":
					out.WriteByte('\t')
				}
			default:
				i++
			}
		case '\r', '\n':
		default:
			if !skip {
				out.WriteByte(c)
			}
		}
	}
	return out.String()
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func hexByte(a, b byte) (byte, bool) {
	hi, ok1 := hexVal(a)
	lo, ok2 := hexVal(b)
	return hi<<4 | lo, ok1 && ok2
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
